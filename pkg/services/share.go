package services

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tgdrive/filebox/internal/auth"
	"github.com/tgdrive/filebox/internal/cache"
	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/mailer"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/store"
)

const shareTokenBytes = 32

type ShareService struct {
	entries     store.Entries
	users       store.Users
	cache       cache.Cacher
	mailer      *mailer.Mailer
	frontendURL string
	ttl         time.Duration
	now         Clock
}

func NewShareService(st store.Store, c cache.Cacher, m *mailer.Mailer, frontendURL string, ttl time.Duration, now Clock) *ShareService {
	return &ShareService{
		entries:     st.Entries(),
		users:       st.Users(),
		cache:       c,
		mailer:      m,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		ttl:         ttl,
		now:         now,
	}
}

func (s *ShareService) owned(ctx context.Context, ownerID, entryID string) (*models.Entry, error) {
	e, err := s.entries.Get(ctx, entryID)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, notFound(ErrEntryNotFound)
		}
		return nil, unexpected(err, "get entry")
	}
	if e.OwnerID != ownerID {
		return nil, notFound(ErrEntryNotFound)
	}
	return e, nil
}

// ShareWithEmail grants the account registered under email access to the
// entry. Granting twice is a no-op.
func (s *ShareService) ShareWithEmail(ctx context.Context, ownerID, entryID, email string) error {
	target, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return notFound(ErrUserNotFound)
		}
		return unexpected(err, "get user")
	}
	if target.ID == ownerID {
		return badRequest(ErrSelfShare)
	}
	e, err := s.owned(ctx, ownerID, entryID)
	if err != nil {
		return err
	}
	added, err := s.entries.AddGrant(ctx, e.ID, models.Grant{UserID: target.ID, Email: target.Email, CreatedAt: s.now()})
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return notFound(ErrEntryNotFound)
		}
		return unexpected(err, "add grant")
	}
	if added {
		s.notify(ctx, ownerID, target, e)
	}
	return nil
}

func (s *ShareService) notify(ctx context.Context, ownerID string, target *models.User, e *models.Entry) {
	lg := logging.FromContext(ctx)
	ownerName, err := cache.Fetch(ctx, s.cache, cache.KeyUserName(ownerID), s.ttl, func() (string, error) {
		owner, err := s.users.Get(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return owner.Name, nil
	})
	if err != nil {
		ownerName = "Someone"
	}
	if err := s.mailer.SendShareNotice(ctx, target.Email, ownerName, e.Name); err != nil {
		lg.Warn("share.notify", zap.String("entry", e.ID), zap.Error(err))
	}
}

type ShareLinkResult struct {
	URL       string
	ExpiresAt *time.Time
}

// GenerateLink replaces the entry's link with a fresh token. A nil
// expiresInDays creates a link that never expires.
func (s *ShareService) GenerateLink(ctx context.Context, ownerID, entryID string, expiresInDays *int) (*ShareLinkResult, error) {
	if expiresInDays != nil && *expiresInDays < 1 {
		return nil, badRequest(ErrInvalidDays)
	}
	e, err := s.owned(ctx, ownerID, entryID)
	if err != nil {
		return nil, err
	}
	token, err := auth.RandomToken(shareTokenBytes)
	if err != nil {
		return nil, unexpected(err, "generate token")
	}
	link := &models.ShareLink{Token: token}
	if expiresInDays != nil {
		exp := s.now().Add(time.Duration(*expiresInDays) * 24 * time.Hour)
		link.ExpiresAt = &exp
	}
	if err := s.entries.SetShareLink(ctx, e.ID, link); err != nil {
		return nil, unexpected(err, "set share link")
	}
	return &ShareLinkResult{
		URL:       s.frontendURL + "/share/" + e.ID + "/" + token,
		ExpiresAt: link.ExpiresAt,
	}, nil
}

func (s *ShareService) RevokeLink(ctx context.Context, ownerID, entryID string) error {
	e, err := s.owned(ctx, ownerID, entryID)
	if err != nil {
		return err
	}
	if err := s.entries.SetShareLink(ctx, e.ID, nil); err != nil {
		return unexpected(err, "clear share link")
	}
	return nil
}

type SharedItem struct {
	Entry *models.Entry
	// Contents holds the direct children of a shared folder.
	Contents []models.Entry
}

// AccessByLink resolves an anonymous share link. The token and expiry are
// always read from the store.
func (s *ShareService) AccessByLink(ctx context.Context, entryID, token string) (*SharedItem, error) {
	e, err := s.entries.Get(ctx, entryID)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, notFound(ErrEntryNotFound)
		}
		return nil, unexpected(err, "get entry")
	}
	if e.ShareLink == nil || subtle.ConstantTimeCompare([]byte(e.ShareLink.Token), []byte(token)) != 1 {
		return nil, forbidden(ErrInvalidLink)
	}
	if e.ShareLink.Expired(s.now()) {
		return nil, forbidden(ErrLinkExpired)
	}
	item := &SharedItem{Entry: e}
	if e.IsFolder() {
		children, err := s.entries.Children(ctx, e.ID)
		if err != nil {
			return nil, unexpected(err, "list children")
		}
		item.Contents = children
	}
	return item, nil
}
