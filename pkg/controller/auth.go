package controller

import (
	"net/http"

	"github.com/tgdrive/filebox/pkg/httputil"
	"github.com/tgdrive/filebox/pkg/schemas"
	"github.com/tgdrive/filebox/pkg/services"
)

const refreshCookie = "refreshToken"

func (c *Controller) setRefreshCookie(w http.ResponseWriter, t *services.Tokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    t.RefreshToken,
		Path:     APIPrefix,
		MaxAge:   int(t.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.cnf.Auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c *Controller) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     APIPrefix,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cnf.Auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func refreshToken(r *http.Request) string {
	ck, err := r.Cookie(refreshCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}

func message(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSON(w, status, schemas.Message{Message: msg})
}

func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	var in schemas.Register
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Auth.Register(r.Context(), &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusCreated, "Registration successful, check your email for the verification code")
}

func (c *Controller) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var in schemas.EmailOnly
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Auth.ResendOTP(r.Context(), in.Email); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "A new verification code has been sent")
}

func (c *Controller) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	var in schemas.EmailOTP
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Auth.ConfirmRegistration(r.Context(), in.Email, in.OTP); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "Account verified successfully")
}

func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var in schemas.Login
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	t, err := c.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	c.setRefreshCookie(w, t)
	httputil.WriteJSON(w, http.StatusOK, schemas.LoginOut{Token: t.AccessToken, ID: t.User.ID, Email: t.User.Email})
}

func (c *Controller) RefreshToken(w http.ResponseWriter, r *http.Request) {
	t, err := c.Auth.Refresh(r.Context(), refreshToken(r))
	if err != nil {
		if httputil.StatusOf(err) == http.StatusForbidden {
			c.clearRefreshCookie(w)
		}
		httputil.NewError(w, r, err)
		return
	}
	c.setRefreshCookie(w, t)
	httputil.WriteJSON(w, http.StatusOK, schemas.RefreshOut{AccessToken: t.AccessToken})
}

func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	if err := c.Auth.Logout(r.Context(), refreshToken(r)); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	c.clearRefreshCookie(w)
	message(w, http.StatusOK, "Logged out successfully")
}

func (c *Controller) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in schemas.EmailOnly
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Auth.ForgotPassword(r.Context(), in.Email); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "A password reset code has been sent")
}

func (c *Controller) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in schemas.EmailOTP
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Auth.VerifyResetOTP(r.Context(), in.Email, in.OTP); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "Code verified, you can now reset your password")
}

func (c *Controller) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in schemas.ResetPassword
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Auth.ResetPassword(r.Context(), in.Email, in.Password); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "Password reset successfully")
}
