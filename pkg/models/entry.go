package models

import "time"

type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

type Entry struct {
	ID         string
	OwnerID    string
	Name       string
	Kind       Kind
	ParentID   *string
	FileType   *string
	MimeType   *string
	SizeBytes  *int64
	StorageURL *string
	StorageID  *string
	ShareLink  *ShareLink
	SharedWith []Grant
	CreatedAt  time.Time
}

type Grant struct {
	UserID    string
	Email     string
	CreatedAt time.Time
}

type ShareLink struct {
	Token     string
	ExpiresAt *time.Time
}

func (e *Entry) IsFolder() bool { return e.Kind == KindFolder }

// Expired reports whether the link has an expiry that is not after now.
func (l *ShareLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}
