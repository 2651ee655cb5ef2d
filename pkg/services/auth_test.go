package services

import (
	"net/http"
	"time"

	"github.com/tgdrive/filebox/pkg/schemas"
)

func (s *ServicesSuite) register(email string) {
	s.Require().NoError(s.srv.Auth.Register(s.ctx, &schemas.Register{
		Name: "Cara", Email: email, PhoneNumber: "+1555" + email, Password: "secret1",
	}))
}

func wrongOTP(otp string) string {
	b := []byte(otp)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

func (s *ServicesSuite) TestRegisterConfirmLogin() {
	s.register("cara@x.io")

	_, err := s.srv.Auth.Login(s.ctx, "cara@x.io", "secret1")
	s.status(err, http.StatusForbidden, ErrNotVerified)

	otp := s.lastOTP("cara@x.io")
	err = s.srv.Auth.ConfirmRegistration(s.ctx, "cara@x.io", wrongOTP(otp))
	s.status(err, http.StatusBadRequest, ErrOTPInvalid)

	s.Require().NoError(s.srv.Auth.ConfirmRegistration(s.ctx, "cara@x.io", otp))
	s.Len(s.mails.Sent(), 2, "code mail then confirmation")

	err = s.srv.Auth.ConfirmRegistration(s.ctx, "cara@x.io", "123456")
	s.status(err, http.StatusBadRequest, ErrAlreadyVerified)

	tokens, err := s.srv.Auth.Login(s.ctx, "CARA@x.io", "secret1")
	s.Require().NoError(err)
	s.NotEmpty(tokens.AccessToken)
	s.NotEmpty(tokens.RefreshToken)
	s.Equal(7*24*time.Hour, tokens.RefreshTTL)
	s.Equal("cara@x.io", tokens.User.Email)
}

func (s *ServicesSuite) TestRegisterRejectsExisting() {
	s.register("cara@x.io")
	err := s.srv.Auth.Register(s.ctx, &schemas.Register{
		Name: "Other", Email: "Cara@X.io", PhoneNumber: "+1999", Password: "secret1",
	})
	s.status(err, http.StatusBadRequest, ErrUserExists)

	err = s.srv.Auth.Register(s.ctx, &schemas.Register{
		Name: "Other", Email: "other@x.io", PhoneNumber: "+1555cara@x.io", Password: "secret1",
	})
	s.status(err, http.StatusBadRequest, ErrUserExists)
}

func (s *ServicesSuite) TestOTPExpires() {
	s.register("cara@x.io")
	otp := s.lastOTP("cara@x.io")

	s.advance(15 * time.Minute)
	err := s.srv.Auth.ConfirmRegistration(s.ctx, "cara@x.io", otp)
	s.status(err, http.StatusBadRequest, ErrOTPExpired)

	s.Require().NoError(s.srv.Auth.ResendOTP(s.ctx, "cara@x.io"))
	s.Require().NoError(s.srv.Auth.ConfirmRegistration(s.ctx, "cara@x.io", s.lastOTP("cara@x.io")))

	err = s.srv.Auth.ResendOTP(s.ctx, "cara@x.io")
	s.status(err, http.StatusBadRequest, ErrAlreadyVerified)
	err = s.srv.Auth.ResendOTP(s.ctx, "nobody@x.io")
	s.status(err, http.StatusNotFound, ErrUserNotFound)
}

func (s *ServicesSuite) TestLoginFailures() {
	s.user("a", "Ann", "a@x.io")
	_, err := s.srv.Auth.Login(s.ctx, "a@x.io", "wrong")
	s.status(err, http.StatusBadRequest, ErrInvalidCredentials)
	_, err = s.srv.Auth.Login(s.ctx, "nobody@x.io", "secret1")
	s.status(err, http.StatusBadRequest, ErrInvalidCredentials)
}

func (s *ServicesSuite) TestRefreshTokenIsSingleUse() {
	s.user("a", "Ann", "a@x.io")
	first, err := s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.Require().NoError(err)

	second, err := s.srv.Auth.Refresh(s.ctx, first.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(first.RefreshToken, second.RefreshToken)
	s.Equal("a", second.User.ID)

	_, err = s.srv.Auth.Refresh(s.ctx, first.RefreshToken)
	s.status(err, http.StatusForbidden, ErrRefreshInvalid)

	_, err = s.srv.Auth.Refresh(s.ctx, second.RefreshToken)
	s.NoError(err)

	_, err = s.srv.Auth.Refresh(s.ctx, "")
	s.status(err, http.StatusUnauthorized, ErrRefreshMissing)
}

func (s *ServicesSuite) TestRefreshExpiresAndLogout() {
	s.user("a", "Ann", "a@x.io")
	t1, err := s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.Require().NoError(err)
	t2, err := s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.Require().NoError(err)

	s.Require().NoError(s.srv.Auth.Logout(s.ctx, t1.RefreshToken))
	_, err = s.srv.Auth.Refresh(s.ctx, t1.RefreshToken)
	s.status(err, http.StatusForbidden, ErrRefreshInvalid)
	s.NoError(s.srv.Auth.Logout(s.ctx, ""))

	s.advance(7 * 24 * time.Hour)
	_, err = s.srv.Auth.Refresh(s.ctx, t2.RefreshToken)
	s.status(err, http.StatusForbidden, ErrRefreshInvalid)
}

func (s *ServicesSuite) TestPasswordReset() {
	s.user("a", "Ann", "a@x.io")
	session, err := s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.Require().NoError(err)

	err = s.srv.Auth.ResetPassword(s.ctx, "a@x.io", "newpass1")
	s.status(err, http.StatusBadRequest, ErrResetNotAllowed)

	s.Require().NoError(s.srv.Auth.ForgotPassword(s.ctx, "a@x.io"))
	otp := s.lastOTP("a@x.io")
	err = s.srv.Auth.VerifyResetOTP(s.ctx, "a@x.io", wrongOTP(otp))
	s.status(err, http.StatusBadRequest, ErrOTPInvalid)
	s.Require().NoError(s.srv.Auth.VerifyResetOTP(s.ctx, "a@x.io", otp))

	// the code is spent once verified
	err = s.srv.Auth.VerifyResetOTP(s.ctx, "a@x.io", otp)
	s.status(err, http.StatusBadRequest, ErrOTPInvalid)

	s.Require().NoError(s.srv.Auth.ResetPassword(s.ctx, "a@x.io", "newpass1"))
	_, err = s.srv.Auth.Refresh(s.ctx, session.RefreshToken)
	s.status(err, http.StatusForbidden, ErrRefreshInvalid)

	_, err = s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.status(err, http.StatusBadRequest, ErrInvalidCredentials)
	_, err = s.srv.Auth.Login(s.ctx, "a@x.io", "newpass1")
	s.NoError(err)

	// the window closes after one use
	err = s.srv.Auth.ResetPassword(s.ctx, "a@x.io", "again123")
	s.status(err, http.StatusBadRequest, ErrResetNotAllowed)
}

func (s *ServicesSuite) TestResetWindowExpires() {
	s.user("a", "Ann", "a@x.io")
	s.Require().NoError(s.srv.Auth.ForgotPassword(s.ctx, "a@x.io"))
	s.Require().NoError(s.srv.Auth.VerifyResetOTP(s.ctx, "a@x.io", s.lastOTP("a@x.io")))

	s.advance(15 * time.Minute)
	err := s.srv.Auth.ResetPassword(s.ctx, "a@x.io", "newpass1")
	s.status(err, http.StatusBadRequest, ErrResetNotAllowed)

	err = s.srv.Auth.ForgotPassword(s.ctx, "nobody@x.io")
	s.status(err, http.StatusNotFound, ErrUserNotFound)
}

func (s *ServicesSuite) TestResendCooldown() {
	s.cnf.Auth.ResendCooldown = time.Minute
	s.register("cara@x.io")

	err := s.srv.Auth.ResendOTP(s.ctx, "cara@x.io")
	s.status(err, http.StatusTooManyRequests, ErrOTPCooldown)
	s.Len(s.mails.Sent(), 1)

	// the cooldown is per account
	s.user("b", "Bob", "b@x.io")
	s.Require().NoError(s.srv.Auth.ForgotPassword(s.ctx, "b@x.io"))
	err = s.srv.Auth.ForgotPassword(s.ctx, "b@x.io")
	s.status(err, http.StatusTooManyRequests, ErrOTPCooldown)
	s.Len(s.mails.Sent(), 2)
}

func (s *ServicesSuite) TestNoCooldownWhenDisabled() {
	s.register("cara@x.io")
	s.Require().NoError(s.srv.Auth.ResendOTP(s.ctx, "cara@x.io"))
	s.Require().NoError(s.srv.Auth.ResendOTP(s.ctx, "cara@x.io"))
	s.Len(s.mails.Sent(), 3)
}
