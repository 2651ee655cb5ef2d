package services

import (
	"net/http"

	"github.com/go-faster/errors"
)

var (
	ErrEntryNotFound   = errors.New("item not found")
	ErrParentNotFound  = errors.New("parent folder not found")
	ErrParentNotFolder = errors.New("parent is not a folder")
	ErrDuplicateName   = errors.New("an item with this name already exists in the folder")
	ErrNotEmpty        = errors.New("cannot delete folder with contents")
	ErrCycle           = errors.New("cannot move a folder into itself or one of its subfolders")
	ErrEmptyList       = errors.New("no files or folders found")
	ErrNameRequired    = errors.New("name is required")
	ErrFileRequired    = errors.New("no file uploaded")
	ErrFileTooLarge    = errors.New("file exceeds the maximum upload size")

	ErrUserNotFound = errors.New("user not found")
	ErrSelfShare    = errors.New("cannot share with yourself")
	ErrInvalidDays  = errors.New("expiresInDays must be at least 1")
	ErrInvalidLink  = errors.New("invalid share link")
	ErrLinkExpired  = errors.New("share link has expired")

	ErrUserExists         = errors.New("user already exists with this email or phone number")
	ErrAlreadyVerified    = errors.New("user already verified")
	ErrOTPExpired         = errors.New("otp has expired, please request a new one")
	ErrOTPInvalid         = errors.New("invalid otp")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("account is not verified")
	ErrRefreshMissing     = errors.New("missing refresh token")
	ErrRefreshInvalid     = errors.New("invalid or expired refresh token")
	ErrResetNotAllowed    = errors.New("verify the otp before resetting the password")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrOTPCooldown        = errors.New("a code was sent recently, please wait before requesting another")
)

type apiError struct {
	err  error
	code int
}

func (a *apiError) Error() string {
	return a.err.Error()
}

func (a *apiError) Unwrap() error {
	return a.err
}

// Code is the HTTP status for the error. Errors without one are internal.
func (a *apiError) Code() int {
	if a.code == 0 {
		return http.StatusInternalServerError
	}
	return a.code
}

func badRequest(err error) error { return &apiError{err: err, code: http.StatusBadRequest} }
func notFound(err error) error   { return &apiError{err: err, code: http.StatusNotFound} }
func forbidden(err error) error  { return &apiError{err: err, code: http.StatusForbidden} }

func tooManyRequests(err error) error {
	return &apiError{err: err, code: http.StatusTooManyRequests}
}

func unauthorized(err error) error {
	return &apiError{err: err, code: http.StatusUnauthorized}
}

func unexpected(err error, msg string) error {
	return &apiError{err: errors.Wrap(err, msg)}
}

var _ error = (*apiError)(nil)
