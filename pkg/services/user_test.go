package services

import (
	"net/http"

	"github.com/tgdrive/filebox/pkg/schemas"
)

func (s *ServicesSuite) TestUpdateProfile() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")

	u, err := s.srv.Users.UpdateProfile(s.ctx, "a", &schemas.UpdateProfile{Name: ptr(" Annie ")})
	s.Require().NoError(err)
	s.Equal("Annie", u.Name)
	s.Equal("a@x.io", u.Email)

	_, err = s.srv.Users.UpdateProfile(s.ctx, "a", &schemas.UpdateProfile{Email: ptr("B@x.io")})
	s.status(err, http.StatusBadRequest, ErrUserExists)

	_, err = s.srv.Users.UpdateProfile(s.ctx, "missing", &schemas.UpdateProfile{Name: ptr("x")})
	s.status(err, http.StatusNotFound, ErrUserNotFound)
}

func (s *ServicesSuite) TestChangePasswordKeepsCurrentSession() {
	s.user("a", "Ann", "a@x.io")
	current, err := s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.Require().NoError(err)
	other, err := s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.Require().NoError(err)

	err = s.srv.Users.ChangePassword(s.ctx, "a", current.RefreshToken, &schemas.ChangePassword{
		CurrentPassword: "nope", NewPassword: "newpass1",
	})
	s.status(err, http.StatusBadRequest, ErrWrongPassword)

	s.Require().NoError(s.srv.Users.ChangePassword(s.ctx, "a", current.RefreshToken, &schemas.ChangePassword{
		CurrentPassword: "secret1", NewPassword: "newpass1",
	}))

	_, err = s.srv.Auth.Refresh(s.ctx, current.RefreshToken)
	s.NoError(err)
	_, err = s.srv.Auth.Refresh(s.ctx, other.RefreshToken)
	s.status(err, http.StatusForbidden, ErrRefreshInvalid)

	_, err = s.srv.Auth.Login(s.ctx, "a@x.io", "newpass1")
	s.NoError(err)
}

func (s *ServicesSuite) TestDeleteAccountPurgesBlobs() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")
	photos := s.folder("a", "Photos", nil)
	s.upload("a", "one.pdf", &photos.ID)
	s.upload("a", "two.pdf", nil)
	theirs := s.upload("b", "theirs.pdf", nil)
	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "b", theirs.ID, "a@x.io"))
	tokens, err := s.srv.Auth.Login(s.ctx, "a@x.io", "secret1")
	s.Require().NoError(err)

	s.Require().NoError(s.srv.Users.DeleteAccount(s.ctx, "a"))

	s.Equal(1, s.blobs.Len())
	_, err = s.srv.Users.Profile(s.ctx, "a")
	s.status(err, http.StatusNotFound, ErrUserNotFound)
	_, err = s.srv.Auth.Refresh(s.ctx, tokens.RefreshToken)
	s.status(err, http.StatusForbidden, ErrRefreshInvalid)

	e, err := s.store.Entries().Get(s.ctx, theirs.ID)
	s.Require().NoError(err)
	s.Empty(e.SharedWith)

	s.status(s.srv.Users.DeleteAccount(s.ctx, "a"), http.StatusNotFound, ErrUserNotFound)
}
