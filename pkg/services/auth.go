package services

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tgdrive/filebox/internal/auth"
	"github.com/tgdrive/filebox/internal/cache"
	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/mailer"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/schemas"
	"github.com/tgdrive/filebox/pkg/store"
)

const refreshTokenBytes = 32

type AuthService struct {
	users    store.Users
	sessions store.Sessions
	cache    cache.Cacher
	mailer   *mailer.Mailer
	jwt      *config.JWTConfig
	cnf      *config.AuthConfig
	now      Clock
}

func NewAuthService(st store.Store, c cache.Cacher, m *mailer.Mailer, jwt *config.JWTConfig, cnf *config.AuthConfig, now Clock) *AuthService {
	return &AuthService{
		users:    st.Users(),
		sessions: st.Sessions(),
		cache:    c,
		mailer:   m,
		jwt:      jwt,
		cnf:      cnf,
		now:      now,
	}
}

// Tokens is the result of a login or refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	RefreshTTL   time.Duration
	User         *models.User
}

func (s *AuthService) byEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, notFound(ErrUserNotFound)
		}
		return nil, unexpected(err, "get user")
	}
	return u, nil
}

// issueOTP stores a fresh code on u and returns it in clear.
func (s *AuthService) issueOTP(u *models.User) (string, error) {
	otp, err := auth.NewOTP()
	if err != nil {
		return "", unexpected(err, "generate otp")
	}
	hash, err := auth.HashPassword(otp)
	if err != nil {
		return "", unexpected(err, "hash otp")
	}
	now := s.now()
	exp := now.Add(s.cnf.OTPTTL)
	u.OTPHash, u.OTPExpiresAt, u.UpdatedAt = &hash, &exp, now
	return otp, nil
}

func (s *AuthService) sendOTP(ctx context.Context, u *models.User, otp string, purpose mailer.Purpose) error {
	if err := s.mailer.SendOTP(ctx, u.Email, u.Name, otp, purpose, int(s.cnf.OTPTTL.Minutes())); err != nil {
		return unexpected(err, "send otp")
	}
	if s.cnf.ResendCooldown > 0 {
		if err := s.cache.Set(ctx, cache.KeyOTPSent(u.ID), s.now(), s.cnf.ResendCooldown); err != nil {
			logging.FromContext(ctx).Warn("otp.cooldown", zap.String("user", u.ID), zap.Error(err))
		}
	}
	return nil
}

// cooldown fails while a code mailed to u is younger than the resend
// cooldown. Cache failures let the request through.
func (s *AuthService) cooldown(ctx context.Context, u *models.User) error {
	if s.cnf.ResendCooldown <= 0 {
		return nil
	}
	var sent time.Time
	err := s.cache.Get(ctx, cache.KeyOTPSent(u.ID), &sent)
	switch {
	case err == nil:
		return tooManyRequests(ErrOTPCooldown)
	case !errors.Is(err, cache.ErrMiss):
		logging.FromContext(ctx).Warn("otp.cooldown", zap.String("user", u.ID), zap.Error(err))
	}
	return nil
}

// checkOTP validates otp against the code stored on u and clears it.
func (s *AuthService) checkOTP(u *models.User, otp string) error {
	if u.OTPHash == nil || u.OTPExpiresAt == nil {
		return badRequest(ErrOTPInvalid)
	}
	if !s.now().Before(*u.OTPExpiresAt) {
		return badRequest(ErrOTPExpired)
	}
	if !auth.CheckPassword(*u.OTPHash, otp) {
		return badRequest(ErrOTPInvalid)
	}
	u.OTPHash, u.OTPExpiresAt = nil, nil
	return nil
}

func (s *AuthService) update(ctx context.Context, u *models.User) error {
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		if database.IsRecordNotFoundErr(err) {
			return notFound(ErrUserNotFound)
		}
		return unexpected(err, "update user")
	}
	return nil
}

// Register creates an unverified account and mails it a confirmation code.
func (s *AuthService) Register(ctx context.Context, in *schemas.Register) error {
	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.PhoneNumber)
	exists, err := s.users.ExistsByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return unexpected(err, "check user")
	}
	if exists {
		return badRequest(ErrUserExists)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return unexpected(err, "hash password")
	}
	now := s.now()
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	otp, err := s.issueOTP(u)
	if err != nil {
		return err
	}
	if err := s.users.Create(ctx, u); err != nil {
		if database.IsKeyConflictErr(err) {
			return badRequest(ErrUserExists)
		}
		return unexpected(err, "create user")
	}
	return s.sendOTP(ctx, u, otp, mailer.PurposeRegistration)
}

func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	u, err := s.byEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.IsVerified {
		return badRequest(ErrAlreadyVerified)
	}
	if err := s.cooldown(ctx, u); err != nil {
		return err
	}
	otp, err := s.issueOTP(u)
	if err != nil {
		return err
	}
	if err := s.update(ctx, u); err != nil {
		return err
	}
	return s.sendOTP(ctx, u, otp, mailer.PurposeRegistration)
}

func (s *AuthService) ConfirmRegistration(ctx context.Context, email, otp string) error {
	u, err := s.byEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.IsVerified {
		return badRequest(ErrAlreadyVerified)
	}
	if err := s.checkOTP(u, otp); err != nil {
		return err
	}
	u.IsVerified = true
	if err := s.update(ctx, u); err != nil {
		return err
	}
	if err := s.mailer.SendRegistrationConfirmed(ctx, u.Email, u.Name); err != nil {
		logging.FromContext(ctx).Warn("mail.confirmed", zap.String("user", u.ID), zap.Error(err))
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, u *models.User, oldHash string) (*Tokens, error) {
	now := s.now()
	access, err := auth.NewAccessToken(s.jwt.Secret, auth.User{ID: u.ID, Email: u.Email}, now, s.jwt.AccessTTL)
	if err != nil {
		return nil, unexpected(err, "sign access token")
	}
	refresh, err := auth.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, unexpected(err, "generate refresh token")
	}
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: auth.HashToken(refresh),
		ExpiresAt: now.Add(s.cnf.RefreshTTL),
		CreatedAt: now,
	}
	if oldHash == "" {
		err = s.sessions.Create(ctx, session)
	} else {
		err = s.sessions.Rotate(ctx, oldHash, session)
	}
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, forbidden(ErrRefreshInvalid)
		}
		return nil, unexpected(err, "save session")
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh, RefreshTTL: s.cnf.RefreshTTL, User: u}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Tokens, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, badRequest(ErrInvalidCredentials)
		}
		return nil, unexpected(err, "get user")
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, badRequest(ErrInvalidCredentials)
	}
	if !u.IsVerified {
		return nil, forbidden(ErrNotVerified)
	}
	return s.issueTokens(ctx, u, "")
}

// Refresh exchanges a refresh token for a new access token and rotates the
// refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, unauthorized(ErrRefreshMissing)
	}
	hash := auth.HashToken(refreshToken)
	session, err := s.sessions.GetByHash(ctx, hash)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, forbidden(ErrRefreshInvalid)
		}
		return nil, unexpected(err, "get session")
	}
	if !s.now().Before(session.ExpiresAt) {
		_ = s.sessions.DeleteByHash(ctx, hash)
		return nil, forbidden(ErrRefreshInvalid)
	}
	u, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		if database.IsRecordNotFoundErr(err) {
			return nil, forbidden(ErrRefreshInvalid)
		}
		return nil, unexpected(err, "get user")
	}
	return s.issueTokens(ctx, u, hash)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.DeleteByHash(ctx, auth.HashToken(refreshToken)); err != nil {
		return unexpected(err, "delete session")
	}
	return nil
}

func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.byEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.cooldown(ctx, u); err != nil {
		return err
	}
	otp, err := s.issueOTP(u)
	if err != nil {
		return err
	}
	if err := s.update(ctx, u); err != nil {
		return err
	}
	return s.sendOTP(ctx, u, otp, mailer.PurposeReset)
}

// VerifyResetOTP opens a reset window of one OTP lifetime.
func (s *AuthService) VerifyResetOTP(ctx context.Context, email, otp string) error {
	u, err := s.byEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.checkOTP(u, otp); err != nil {
		return err
	}
	until := s.now().Add(s.cnf.OTPTTL)
	u.ResetAllowedUntil = &until
	return s.update(ctx, u)
}

// ResetPassword sets a new password inside the reset window and signs the
// user out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, email, password string) error {
	u, err := s.byEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.ResetAllowedUntil == nil || !s.now().Before(*u.ResetAllowedUntil) {
		return badRequest(ErrResetNotAllowed)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return unexpected(err, "hash password")
	}
	u.PasswordHash, u.ResetAllowedUntil = hash, nil
	if err := s.update(ctx, u); err != nil {
		return err
	}
	if err := s.sessions.DeleteByUser(ctx, u.ID, ""); err != nil {
		return unexpected(err, "revoke sessions")
	}
	if err := s.mailer.SendPasswordChanged(ctx, u.Email, u.Name); err != nil {
		logging.FromContext(ctx).Warn("mail.password_changed", zap.String("user", u.ID), zap.Error(err))
	}
	return nil
}
