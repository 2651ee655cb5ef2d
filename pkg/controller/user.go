package controller

import (
	"net/http"

	"github.com/tgdrive/filebox/pkg/httputil"
	"github.com/tgdrive/filebox/pkg/mapper"
	"github.com/tgdrive/filebox/pkg/schemas"
)

type profileOut struct {
	Message string           `json:"message"`
	User    *schemas.UserOut `json:"user"`
}

func (c *Controller) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := c.Users.Profile(r.Context(), userID(r))
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profileOut{Message: "Profile retrieved successfully", User: mapper.ToUserOut(u)})
}

func (c *Controller) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in schemas.UpdateProfile
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	u, err := c.Users.UpdateProfile(r.Context(), userID(r), &in)
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profileOut{Message: "Profile updated successfully", User: mapper.ToUserOut(u)})
}

func (c *Controller) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in schemas.ChangePassword
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Users.ChangePassword(r.Context(), userID(r), refreshToken(r), &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "Password changed successfully")
}

func (c *Controller) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := c.Users.DeleteAccount(r.Context(), userID(r)); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	c.clearRefreshCookie(w)
	message(w, http.StatusOK, "Account deleted successfully")
}
