package controller

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tgdrive/filebox/internal/logging"
	"github.com/tgdrive/filebox/internal/storage"
	"github.com/tgdrive/filebox/pkg/httputil"
)

type healthOut struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Controller) Health(w http.ResponseWriter, r *http.Request) {
	now := c.now()
	httputil.WriteJSON(w, http.StatusOK, healthOut{
		Success:   true,
		Message:   "Server is healthy",
		Uptime:    now.Sub(c.started).Seconds(),
		Timestamp: now,
	})
}

// ServeBlob streams an object kept by a backend without public URLs.
func (c *Controller) ServeBlob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if !storage.ValidKey(id) {
		httputil.WriteMessage(w, http.StatusNotFound, "blob not found")
		return
	}
	rc, contentType, err := c.blobs.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteMessage(w, http.StatusNotFound, "blob not found")
			return
		}
		httputil.NewError(w, r, err)
		return
	}
	defer rc.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).Debug("blob.copy", zap.String("id", id), zap.Error(err))
	}
}
