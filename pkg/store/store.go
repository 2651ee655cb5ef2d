// Package store persists users, entries, grants, sessions and the orphaned
// blob ledger. Postgres is the production backend; Memory backs the "memory"
// data source and tests.
package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/tgdrive/filebox/pkg/models"
)

// ErrHasChildren is returned when a folder that still has children is deleted.
var ErrHasChildren = errors.New("entry has children")

type ListFilter struct {
	Kind     models.Kind
	ParentID *string
}

type SearchFilter struct {
	// Query is matched as a case-insensitive substring of the name.
	Query    string
	FileType string
	ParentID *string
}

type Entries interface {
	// Create fails with database.ErrKeyConflict when a sibling with the same
	// owner, parent, kind and name exists.
	Create(ctx context.Context, e *models.Entry) error
	// Get returns the entry with its grants loaded.
	Get(ctx context.Context, id string) (*models.Entry, error)
	NameTaken(ctx context.Context, ownerID string, parentID *string, kind models.Kind, name string) (bool, error)
	// List returns one page of the owner's entries, newest first, and the
	// number of entries matching f.
	List(ctx context.Context, ownerID string, f ListFilter, offset, limit int) ([]models.Entry, int, error)
	Search(ctx context.Context, ownerID string, f SearchFilter) ([]models.Entry, error)
	// SharedWith returns entries granted to userID, newest first. A limit of
	// zero or less returns all of them.
	SharedWith(ctx context.Context, userID string, limit int) ([]models.Entry, error)
	Children(ctx context.Context, parentID string) ([]models.Entry, error)
	HasChildren(ctx context.Context, id string) (bool, error)
	IsGrantee(ctx context.Context, entryID, userID string) (bool, error)
	Update(ctx context.Context, id, name string, parentID *string) error
	Delete(ctx context.Context, id string) error
	// DeleteByOwner removes every entry of the owner and returns the storage
	// ids of the removed files.
	DeleteByOwner(ctx context.Context, ownerID string) ([]string, error)
	// AddGrant reports false when the grantee already had access.
	AddGrant(ctx context.Context, entryID string, g models.Grant) (bool, error)
	// SetShareLink replaces the entry's link. A nil link clears it.
	SetShareLink(ctx context.Context, entryID string, link *models.ShareLink) error
	// ListFiles pages through all files ordered by id.
	ListFiles(ctx context.Context, afterID string, limit int) ([]models.Entry, error)
}

type Users interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	// GetByEmail matches the address case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id string) error
	// DeleteUnverifiedBefore removes unverified accounts whose code expired
	// before t.
	DeleteUnverifiedBefore(ctx context.Context, t time.Time) (int64, error)
}

type Sessions interface {
	Create(ctx context.Context, s *models.Session) error
	GetByHash(ctx context.Context, hash string) (*models.Session, error)
	// Rotate atomically replaces the session identified by oldHash with next.
	Rotate(ctx context.Context, oldHash string, next *models.Session) error
	DeleteByHash(ctx context.Context, hash string) error
	// DeleteByUser removes the user's sessions except the one with exceptHash.
	DeleteByUser(ctx context.Context, userID, exceptHash string) error
}

type Orphans interface {
	Add(ctx context.Context, storageID, reason string) error
	List(ctx context.Context, limit int) ([]models.OrphanedBlob, error)
	Remove(ctx context.Context, storageID string) error
	MarkFailed(ctx context.Context, storageID, msg string) error
}

type Store interface {
	Entries() Entries
	Users() Users
	Sessions() Sessions
	Orphans() Orphans
	Close() error
}

// EscapeLike escapes the LIKE metacharacters in s.
func EscapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
