package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/pkg/models"
)

// Memory is a Store kept in process memory. All sub-stores share one lock.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]*models.Entry
	grants   map[string][]models.Grant
	users    map[string]*models.User
	sessions map[string]*models.Session
	orphans  map[string]*models.OrphanedBlob

	// FailEntryCreate, when set, is returned by Entries().Create.
	FailEntryCreate error
}

func NewMemory() *Memory {
	return &Memory{
		entries:  map[string]*models.Entry{},
		grants:   map[string][]models.Grant{},
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
		orphans:  map[string]*models.OrphanedBlob{},
	}
}

func (m *Memory) Entries() Entries   { return memEntries{m} }
func (m *Memory) Users() Users       { return memUsers{m} }
func (m *Memory) Sessions() Sessions { return memSessions{m} }
func (m *Memory) Orphans() Orphans   { return memOrphans{m} }
func (m *Memory) Close() error       { return nil }

type memEntries struct{ m *Memory }

func (r memEntries) copyOf(e *models.Entry) models.Entry {
	c := *e
	if e.ShareLink != nil {
		link := *e.ShareLink
		c.ShareLink = &link
	}
	c.SharedWith = slices.Clone(r.m.grants[e.ID])
	if c.SharedWith == nil {
		c.SharedWith = []models.Grant{}
	}
	return c
}

func (r memEntries) collect(match func(*models.Entry) bool) []models.Entry {
	res := []models.Entry{}
	for _, e := range r.m.entries {
		if match(e) {
			res = append(res, r.copyOf(e))
		}
	}
	sortNewest(res)
	return res
}

func sortNewest(items []models.Entry) {
	slices.SortFunc(items, func(a, b models.Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r memEntries) nameTaken(ownerID string, parentID *string, kind models.Kind, name, exceptID string) bool {
	for _, e := range r.m.entries {
		if e.ID != exceptID && e.OwnerID == ownerID && e.Kind == kind && e.Name == name && sameParent(e.ParentID, parentID) {
			return true
		}
	}
	return false
}

func (r memEntries) Create(_ context.Context, e *models.Entry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.FailEntryCreate != nil {
		return r.m.FailEntryCreate
	}
	if _, ok := r.m.entries[e.ID]; ok || r.nameTaken(e.OwnerID, e.ParentID, e.Kind, e.Name, "") {
		return database.ErrKeyConflict
	}
	c := *e
	c.SharedWith = nil
	r.m.entries[e.ID] = &c
	return nil
}

func (r memEntries) Get(_ context.Context, id string) (*models.Entry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	e, ok := r.m.entries[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := r.copyOf(e)
	return &c, nil
}

func (r memEntries) NameTaken(_ context.Context, ownerID string, parentID *string, kind models.Kind, name string) (bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.nameTaken(ownerID, parentID, kind, name, ""), nil
}

func (r memEntries) List(_ context.Context, ownerID string, f ListFilter, offset, limit int) ([]models.Entry, int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	all := r.collect(func(e *models.Entry) bool {
		return e.OwnerID == ownerID &&
			(f.Kind == "" || e.Kind == f.Kind) &&
			(f.ParentID == nil || sameParent(e.ParentID, f.ParentID))
	})
	total := len(all)
	if offset >= total {
		return []models.Entry{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r memEntries) Search(_ context.Context, ownerID string, f SearchFilter) ([]models.Entry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	q := strings.ToLower(f.Query)
	return r.collect(func(e *models.Entry) bool {
		if e.OwnerID != ownerID {
			return false
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Name), q) {
			return false
		}
		if f.FileType != "" && (e.FileType == nil || *e.FileType != f.FileType) {
			return false
		}
		return f.ParentID == nil || sameParent(e.ParentID, f.ParentID)
	}), nil
}

func (r memEntries) granted(entryID, userID string) bool {
	return slices.ContainsFunc(r.m.grants[entryID], func(g models.Grant) bool { return g.UserID == userID })
}

func (r memEntries) SharedWith(_ context.Context, userID string, limit int) ([]models.Entry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	res := r.collect(func(e *models.Entry) bool { return r.granted(e.ID, userID) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r memEntries) Children(_ context.Context, parentID string) ([]models.Entry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.collect(func(e *models.Entry) bool { return e.ParentID != nil && *e.ParentID == parentID }), nil
}

func (r memEntries) hasChildren(id string) bool {
	for _, e := range r.m.entries {
		if e.ParentID != nil && *e.ParentID == id {
			return true
		}
	}
	return false
}

func (r memEntries) HasChildren(_ context.Context, id string) (bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.hasChildren(id), nil
}

func (r memEntries) IsGrantee(_ context.Context, entryID, userID string) (bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.granted(entryID, userID), nil
}

func (r memEntries) Update(_ context.Context, id, name string, parentID *string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.entries[id]
	if !ok {
		return database.ErrNotFound
	}
	if r.nameTaken(e.OwnerID, parentID, e.Kind, name, id) {
		return database.ErrKeyConflict
	}
	if parentID != nil {
		p := *parentID
		parentID = &p
	}
	e.Name = name
	e.ParentID = parentID
	return nil
}

func (r memEntries) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.entries[id]; !ok {
		return database.ErrNotFound
	}
	if r.hasChildren(id) {
		return ErrHasChildren
	}
	delete(r.m.entries, id)
	delete(r.m.grants, id)
	return nil
}

func (r memEntries) DeleteByOwner(_ context.Context, ownerID string) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ids := []string{}
	for id, e := range r.m.entries {
		if e.OwnerID != ownerID {
			continue
		}
		if e.StorageID != nil {
			ids = append(ids, *e.StorageID)
		}
		delete(r.m.entries, id)
		delete(r.m.grants, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r memEntries) AddGrant(_ context.Context, entryID string, g models.Grant) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.entries[entryID]; !ok {
		return false, database.ErrNotFound
	}
	if r.granted(entryID, g.UserID) {
		return false, nil
	}
	r.m.grants[entryID] = append(r.m.grants[entryID], g)
	return true, nil
}

func (r memEntries) SetShareLink(_ context.Context, entryID string, link *models.ShareLink) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.entries[entryID]
	if !ok {
		return database.ErrNotFound
	}
	if link == nil {
		e.ShareLink = nil
		return nil
	}
	c := *link
	e.ShareLink = &c
	return nil
}

func (r memEntries) ListFiles(_ context.Context, afterID string, limit int) ([]models.Entry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	res := []models.Entry{}
	for _, e := range r.m.entries {
		if e.Kind == models.KindFile && e.ID > afterID {
			res = append(res, r.copyOf(e))
		}
	}
	slices.SortFunc(res, func(a, b models.Entry) int { return strings.Compare(a.ID, b.ID) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type memUsers struct{ m *Memory }

func (r memUsers) conflict(u *models.User) bool {
	for _, o := range r.m.users {
		if o.ID != u.ID && (strings.EqualFold(o.Email, u.Email) || o.PhoneNumber == u.PhoneNumber) {
			return true
		}
	}
	return false
}

func (r memUsers) Create(_ context.Context, u *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[u.ID]; ok || r.conflict(u) {
		return database.ErrKeyConflict
	}
	c := *u
	r.m.users[u.ID] = &c
	return nil
}

func (r memUsers) Get(_ context.Context, id string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, u := range r.m.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r memUsers) ExistsByEmailOrPhone(_ context.Context, email, phone string) (bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.conflict(&models.User{Email: email, PhoneNumber: phone}), nil
}

func (r memUsers) Update(_ context.Context, u *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[u.ID]; !ok {
		return database.ErrNotFound
	}
	if r.conflict(u) {
		return database.ErrKeyConflict
	}
	c := *u
	r.m.users[u.ID] = &c
	return nil
}

// deleteUser removes the user and everything that cascades from it.
func (m *Memory) deleteUser(id string) {
	delete(m.users, id)
	for eid, e := range m.entries {
		if e.OwnerID == id {
			delete(m.entries, eid)
			delete(m.grants, eid)
		}
	}
	for eid, gs := range m.grants {
		m.grants[eid] = slices.DeleteFunc(gs, func(g models.Grant) bool { return g.UserID == id })
	}
	for h, s := range m.sessions {
		if s.UserID == id {
			delete(m.sessions, h)
		}
	}
}

func (r memUsers) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[id]; !ok {
		return database.ErrNotFound
	}
	r.m.deleteUser(id)
	return nil
}

func (r memUsers) DeleteUnverifiedBefore(_ context.Context, t time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, u := range r.m.users {
		if !u.IsVerified && u.OTPExpiresAt != nil && u.OTPExpiresAt.Before(t) {
			r.m.deleteUser(id)
			n++
		}
	}
	return n, nil
}

type memSessions struct{ m *Memory }

func (r memSessions) Create(_ context.Context, s *models.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[s.TokenHash]; ok {
		return database.ErrKeyConflict
	}
	c := *s
	r.m.sessions[s.TokenHash] = &c
	return nil
}

func (r memSessions) GetByHash(_ context.Context, hash string) (*models.Session, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.sessions[hash]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r memSessions) Rotate(_ context.Context, oldHash string, next *models.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[oldHash]; !ok {
		return database.ErrNotFound
	}
	if _, ok := r.m.sessions[next.TokenHash]; ok {
		return database.ErrKeyConflict
	}
	delete(r.m.sessions, oldHash)
	c := *next
	r.m.sessions[next.TokenHash] = &c
	return nil
}

func (r memSessions) DeleteByHash(_ context.Context, hash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.sessions, hash)
	return nil
}

func (r memSessions) DeleteByUser(_ context.Context, userID, exceptHash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for h, s := range r.m.sessions {
		if s.UserID == userID && h != exceptHash {
			delete(r.m.sessions, h)
		}
	}
	return nil
}

type memOrphans struct{ m *Memory }

func (r memOrphans) Add(_ context.Context, storageID, reason string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.orphans[storageID]; !ok {
		r.m.orphans[storageID] = &models.OrphanedBlob{StorageID: storageID, Reason: reason, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (r memOrphans) List(_ context.Context, limit int) ([]models.OrphanedBlob, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	res := make([]models.OrphanedBlob, 0, len(r.m.orphans))
	for _, o := range r.m.orphans {
		res = append(res, *o)
	}
	slices.SortFunc(res, func(a, b models.OrphanedBlob) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.StorageID, b.StorageID)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r memOrphans) Remove(_ context.Context, storageID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.orphans, storageID)
	return nil
}

func (r memOrphans) MarkFailed(_ context.Context, storageID, msg string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if o, ok := r.m.orphans[storageID]; ok {
		o.Attempts++
		o.LastError = &msg
	}
	return nil
}
