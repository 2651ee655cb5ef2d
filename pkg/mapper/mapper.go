package mapper

import (
	"time"

	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/schemas"
)

// ToEntryOut renders an entry. Grants and link state are only included for
// the owner; the storage id is never rendered.
func ToEntryOut(e *models.Entry, asOwner bool, now time.Time) *schemas.EntryOut {
	out := &schemas.EntryOut{
		ID:           e.ID,
		UserID:       e.OwnerID,
		Name:         e.Name,
		Type:         string(e.Kind),
		ParentFolder: e.ParentID,
		FileType:     e.FileType,
		MimeType:     e.MimeType,
		Size:         e.SizeBytes,
		URL:          e.StorageURL,
		SharedWith:   []schemas.Grant{},
		CreatedAt:    e.CreatedAt,
	}
	if !asOwner {
		return out
	}
	for _, g := range e.SharedWith {
		out.SharedWith = append(out.SharedWith, schemas.Grant{UserID: g.UserID, Email: g.Email, SharedAt: g.CreatedAt})
	}
	if e.ShareLink != nil {
		out.ShareLink = &schemas.ShareLinkState{ExpiresAt: e.ShareLink.ExpiresAt, Expired: e.ShareLink.Expired(now)}
	}
	return out
}

// ToEntryList renders entries as seen by viewerID.
func ToEntryList(items []models.Entry, viewerID string, now time.Time) []schemas.EntryOut {
	res := make([]schemas.EntryOut, 0, len(items))
	for i := range items {
		res = append(res, *ToEntryOut(&items[i], items[i].OwnerID == viewerID, now))
	}
	return res
}

func ToUserOut(u *models.User) *schemas.UserOut {
	return &schemas.UserOut{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		IsVerified:  u.IsVerified,
		CreatedAt:   u.CreatedAt,
	}
}
