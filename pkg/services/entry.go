package services

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tgdrive/filebox/internal/category"
	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/storage"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/store"
)

const (
	defaultPage        = 1
	defaultPageSize    = 20
	defaultRecentLimit = 10
	maxPageSize        = 100
)

type EntryService struct {
	entries store.Entries
	orphans store.Orphans
	objects storage.ObjectStore
	cnf     *config.FilesConfig
	now     Clock
}

func NewEntryService(st store.Store, objects storage.ObjectStore, cnf *config.FilesConfig, now Clock) *EntryService {
	return &EntryService{
		entries: st.Entries(),
		orphans: st.Orphans(),
		objects: objects,
		cnf:     cnf,
		now:     now,
	}
}

type UploadInput struct {
	Name string
	// ParentID is nil or empty for the root.
	ParentID     *string
	DeclaredMIME string
	Size         int64
	Body         io.ReadSeeker
}

func normalizeParent(parentID *string) *string {
	if parentID == nil || strings.TrimSpace(*parentID) == "" {
		return nil
	}
	p := strings.TrimSpace(*parentID)
	return &p
}

// resolveParent checks that parentID names a folder owned by ownerID.
func (s *EntryService) resolveParent(ctx context.Context, ownerID string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.entries.Get(ctx, *parentID)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return notFound(ErrParentNotFound)
		}
		return unexpected(err, "get parent")
	}
	if parent.OwnerID != ownerID {
		return notFound(ErrParentNotFound)
	}
	if !parent.IsFolder() {
		return badRequest(ErrParentNotFolder)
	}
	return nil
}

func (s *EntryService) checkName(ctx context.Context, ownerID string, parentID *string, kind models.Kind, name string) error {
	taken, err := s.entries.NameTaken(ctx, ownerID, parentID, kind, name)
	if err != nil {
		return unexpected(err, "check name")
	}
	if taken {
		return badRequest(ErrDuplicateName)
	}
	return nil
}

// Upload stores the blob and then records it. If recording fails the blob is
// deleted again, or logged as orphaned when that delete fails too.
func (s *EntryService) Upload(ctx context.Context, ownerID string, in *UploadInput) (*models.Entry, error) {
	if in.Body == nil {
		return nil, badRequest(ErrFileRequired)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, badRequest(ErrNameRequired)
	}
	if s.cnf.MaxUploadSize > 0 && in.Size > s.cnf.MaxUploadSize {
		return nil, badRequest(ErrFileTooLarge)
	}
	parentID := normalizeParent(in.ParentID)
	if err := s.resolveParent(ctx, ownerID, parentID); err != nil {
		return nil, err
	}
	if err := s.checkName(ctx, ownerID, parentID, models.KindFile, name); err != nil {
		return nil, err
	}

	mimeType, err := category.DetectMIME(in.Body, in.DeclaredMIME, name)
	if err != nil {
		return nil, unexpected(err, "detect mime")
	}
	fileType := string(category.FromMIME(mimeType))

	now := s.now()
	folder := fmt.Sprintf("user_%s/%s", ownerID, now.Format("2006/01/02"))
	obj, err := s.objects.Store(ctx, in.Body, in.Size, folder, mimeType)
	if err != nil {
		return nil, unexpected(err, "store blob")
	}

	size := in.Size
	entry := &models.Entry{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		Kind:       models.KindFile,
		ParentID:   parentID,
		FileType:   &fileType,
		MimeType:   &mimeType,
		SizeBytes:  &size,
		StorageURL: &obj.URL,
		StorageID:  &obj.ID,
		SharedWith: []models.Grant{},
		CreatedAt:  now,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		s.releaseBlob(context.WithoutCancel(ctx), obj.ID, "upload: "+err.Error())
		if database.IsKeyConflictErr(err) {
			return nil, badRequest(ErrDuplicateName)
		}
		return nil, unexpected(err, "create entry")
	}
	return entry, nil
}

// releaseBlob deletes a blob that no record points to.
func (s *EntryService) releaseBlob(ctx context.Context, storageID, reason string) {
	lg := logging.FromContext(ctx)
	err := s.objects.Delete(ctx, storageID)
	if err == nil {
		return
	}
	lg.Warn("blob.release", zap.String("storage_id", storageID), zap.Error(err))
	if err := s.orphans.Add(ctx, storageID, reason); err != nil {
		lg.Error("blob.orphan", zap.String("storage_id", storageID), zap.Error(err))
	}
}

func (s *EntryService) CreateFolder(ctx context.Context, ownerID, name string, parentID *string) (*models.Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, badRequest(ErrNameRequired)
	}
	parentID = normalizeParent(parentID)
	if err := s.resolveParent(ctx, ownerID, parentID); err != nil {
		return nil, err
	}
	if err := s.checkName(ctx, ownerID, parentID, models.KindFolder, name); err != nil {
		return nil, err
	}
	entry := &models.Entry{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		Kind:       models.KindFolder,
		ParentID:   parentID,
		SharedWith: []models.Grant{},
		CreatedAt:  s.now(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		if database.IsKeyConflictErr(err) {
			return nil, badRequest(ErrDuplicateName)
		}
		return nil, unexpected(err, "create folder")
	}
	return entry, nil
}

type ListParams struct {
	Page  int
	Limit int
	Kind  models.Kind
	// ParentID filters on the direct parent when set.
	ParentID *string
}

type ListResult struct {
	Items []models.Entry
	Total int
	Page  int
	Limit int
}

func (s *EntryService) List(ctx context.Context, ownerID string, p ListParams) (*ListResult, error) {
	page, limit := p.Page, p.Limit
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	items, total, err := s.entries.List(ctx, ownerID, store.ListFilter{Kind: p.Kind, ParentID: p.ParentID},
		(page-1)*limit, limit)
	if err != nil {
		return nil, unexpected(err, "list entries")
	}
	if len(items) == 0 && !s.cnf.EmptyListOK {
		return nil, notFound(ErrEmptyList)
	}
	return &ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// mergeUnique appends the entries of b missing from a.
func mergeUnique(a, b []models.Entry) []models.Entry {
	seen := make(map[string]struct{}, len(a)+len(b))
	res := make([]models.Entry, 0, len(a)+len(b))
	for _, list := range [][]models.Entry{a, b} {
		for _, e := range list {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			res = append(res, e)
		}
	}
	return res
}

// Search returns the caller's entries matching f followed by every entry
// shared with the caller. Shared entries are not filtered.
func (s *EntryService) Search(ctx context.Context, userID string, f store.SearchFilter) ([]models.Entry, error) {
	f.ParentID = normalizeParent(f.ParentID)
	var owned, shared []models.Entry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		owned, err = s.entries.Search(gctx, userID, f)
		return err
	})
	g.Go(func() (err error) {
		shared, err = s.entries.SharedWith(gctx, userID, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, unexpected(err, "search entries")
	}
	return mergeUnique(owned, shared), nil
}

// Recent returns the newest owned and shared entries, at most limit of them.
func (s *EntryService) Recent(ctx context.Context, userID string, limit int) ([]models.Entry, error) {
	if limit < 1 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxPageSize)
	var owned, shared []models.Entry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		owned, _, err = s.entries.List(gctx, userID, store.ListFilter{}, 0, limit)
		return err
	})
	g.Go(func() (err error) {
		shared, err = s.entries.SharedWith(gctx, userID, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, unexpected(err, "recent entries")
	}
	res := mergeUnique(owned, shared)
	slices.SortStableFunc(res, func(a, b models.Entry) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// owned returns the entry when userID owns it. Anything else is reported as
// not found.
func (s *EntryService) owned(ctx context.Context, userID, id string) (*models.Entry, error) {
	e, err := s.entries.Get(ctx, id)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, notFound(ErrEntryNotFound)
		}
		return nil, unexpected(err, "get entry")
	}
	if e.OwnerID != userID {
		return nil, notFound(ErrEntryNotFound)
	}
	return e, nil
}

func (s *EntryService) Delete(ctx context.Context, userID, id string) (*models.Entry, error) {
	e, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if e.IsFolder() {
		has, err := s.entries.HasChildren(ctx, id)
		if err != nil {
			return nil, unexpected(err, "check children")
		}
		if has {
			return nil, badRequest(ErrNotEmpty)
		}
	} else if e.StorageID != nil {
		if err := s.objects.Delete(ctx, *e.StorageID); err != nil {
			return nil, unexpected(err, "delete blob")
		}
	}
	if err := s.entries.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, store.ErrHasChildren):
			return nil, badRequest(ErrNotEmpty)
		case database.IsRecordNotFoundErr(err):
			return nil, notFound(ErrEntryNotFound)
		}
		return nil, unexpected(err, "delete entry")
	}
	return e, nil
}

// FolderDetails returns a folder the caller owns or was granted.
func (s *EntryService) FolderDetails(ctx context.Context, userID, id string) (*models.Entry, error) {
	e, err := s.entries.Get(ctx, id)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, notFound(ErrEntryNotFound)
		}
		return nil, unexpected(err, "get entry")
	}
	if !e.IsFolder() {
		return nil, notFound(ErrEntryNotFound)
	}
	if e.OwnerID != userID {
		granted, err := s.entries.IsGrantee(ctx, id, userID)
		if err != nil {
			return nil, unexpected(err, "check grant")
		}
		if !granted {
			return nil, notFound(ErrEntryNotFound)
		}
	}
	return e, nil
}

// Update renames and/or moves an entry. A nil name keeps the name; a nil
// parentID keeps the parent and an empty one moves the entry to the root.
func (s *EntryService) Update(ctx context.Context, ownerID, id string, name, parentID *string) (*models.Entry, error) {
	e, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	newName := e.Name
	if name != nil {
		newName = strings.TrimSpace(*name)
		if newName == "" {
			return nil, badRequest(ErrNameRequired)
		}
	}
	newParent := e.ParentID
	if parentID != nil {
		newParent = normalizeParent(parentID)
		if err := s.resolveParent(ctx, ownerID, newParent); err != nil {
			return nil, err
		}
		if err := s.checkCycle(ctx, e.ID, newParent); err != nil {
			return nil, err
		}
	}
	if newName == e.Name && sameParent(newParent, e.ParentID) {
		return e, nil
	}
	if err := s.checkName(ctx, ownerID, newParent, e.Kind, newName); err != nil {
		return nil, err
	}
	if err := s.entries.Update(ctx, id, newName, newParent); err != nil {
		switch {
		case database.IsKeyConflictErr(err):
			return nil, badRequest(ErrDuplicateName)
		case database.IsRecordNotFoundErr(err):
			return nil, notFound(ErrEntryNotFound)
		}
		return nil, unexpected(err, "update entry")
	}
	e.Name, e.ParentID = newName, newParent
	return e, nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// checkCycle walks up from parentID and fails if it meets id.
func (s *EntryService) checkCycle(ctx context.Context, id string, parentID *string) error {
	seen := map[string]struct{}{}
	for cur := parentID; cur != nil; {
		if *cur == id {
			return badRequest(ErrCycle)
		}
		if _, ok := seen[*cur]; ok {
			return unexpected(errors.Errorf("ancestor loop at %s", *cur), "check cycle")
		}
		seen[*cur] = struct{}{}
		p, err := s.entries.Get(ctx, *cur)
		if err != nil {
			return unexpected(err, "get ancestor")
		}
		cur = p.ParentID
	}
	return nil
}

// PurgeOwner removes every entry of the owner and releases their blobs.
func (s *EntryService) PurgeOwner(ctx context.Context, ownerID string) error {
	ids, err := s.entries.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return unexpected(err, "delete entries")
	}
	for _, id := range ids {
		s.releaseBlob(ctx, id, "account deleted")
	}
	logging.FromContext(ctx).Info("entries.purged", zap.String("owner", ownerID), zap.Int("blobs", len(ids)))
	return nil
}
