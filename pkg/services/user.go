package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tgdrive/filebox/internal/auth"
	"github.com/tgdrive/filebox/internal/cache"
	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/mailer"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/schemas"
	"github.com/tgdrive/filebox/pkg/store"
)

type UserService struct {
	users    store.Users
	sessions store.Sessions
	entries  *EntryService
	cache    cache.Cacher
	mailer   *mailer.Mailer
	now      Clock
}

func NewUserService(st store.Store, entries *EntryService, c cache.Cacher, m *mailer.Mailer, now Clock) *UserService {
	return &UserService{
		users:    st.Users(),
		sessions: st.Sessions(),
		entries:  entries,
		cache:    c,
		mailer:   m,
		now:      now,
	}
}

func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, notFound(ErrUserNotFound)
		}
		return nil, unexpected(err, "get user")
	}
	return u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, in *schemas.UpdateProfile) (*models.User, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		u.Email = strings.TrimSpace(*in.Email)
	}
	if in.PhoneNumber != nil {
		u.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		switch {
		case database.IsKeyConflictErr(err):
			return nil, badRequest(ErrUserExists)
		case database.IsRecordNotFoundErr(err):
			return nil, notFound(ErrUserNotFound)
		}
		return nil, unexpected(err, "update user")
	}
	_ = s.cache.Delete(ctx, cache.KeyUserName(u.ID))
	return u, nil
}

// ChangePassword keeps the session identified by currentRefresh and revokes
// every other one.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentRefresh string, in *schemas.ChangePassword) error {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, in.CurrentPassword) {
		return badRequest(ErrWrongPassword)
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return unexpected(err, "hash password")
	}
	u.PasswordHash, u.UpdatedAt = hash, s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return unexpected(err, "update user")
	}
	keep := ""
	if currentRefresh != "" {
		keep = auth.HashToken(currentRefresh)
	}
	if err := s.sessions.DeleteByUser(ctx, u.ID, keep); err != nil {
		return unexpected(err, "revoke sessions")
	}
	if err := s.mailer.SendPasswordChanged(ctx, u.Email, u.Name); err != nil {
		logging.FromContext(ctx).Warn("mail.password_changed", zap.String("user", u.ID), zap.Error(err))
	}
	return nil
}

// DeleteAccount removes the user's entries and blobs, then the user. Grants
// and sessions go with the user.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	if _, err := s.Profile(ctx, userID); err != nil {
		return err
	}
	if err := s.entries.PurgeOwner(ctx, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if database.IsRecordNotFoundErr(err) {
			return notFound(ErrUserNotFound)
		}
		return unexpected(err, "delete user")
	}
	_ = s.cache.Delete(ctx, cache.KeyUserName(userID), cache.KeyOTPSent(userID))
	return nil
}
