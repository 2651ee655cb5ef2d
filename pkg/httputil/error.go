package httputil

import (
	"errors"
	"net/http"

	"github.com/tgdrive/filebox/internal/logging"
	"go.uber.org/zap"
)

type HTTPError struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Error is returned by request decoding helpers.
type Error struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Code() int { return e.Status }

type coder interface {
	Code() int
}

// StatusOf returns the HTTP status carried by err, 500 when it has none.
func StatusOf(err error) int {
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return http.StatusInternalServerError
}

// NewError maps err to a status code and writes it as {"message": ...}.
// Errors without a code are treated as internal and their text is only logged.
func NewError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)

	body := HTTPError{Message: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		body.Errors = e.Fields
	}

	lg := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		body = HTTPError{Message: http.StatusText(status)}
	} else {
		lg.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	WriteJSON(w, status, body)
}

func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, HTTPError{Message: message})
}
