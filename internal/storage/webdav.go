package storage

import (
	"context"
	"io"
	"path"

	"github.com/go-faster/errors"
	"github.com/studio-b12/gowebdav"
	"github.com/tgdrive/filebox/internal/config"
)

type WebDAVStore struct {
	client  *gowebdav.Client
	root    string
	baseURL string
}

func NewWebDAVStore(cfg *config.WebDAVConfig, baseURL string) *WebDAVStore {
	return &WebDAVStore{
		client:  gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password),
		root:    path.Join("/", cfg.Root),
		baseURL: baseURL,
	}
}

func (w *WebDAVStore) fullPath(id string) string {
	return path.Join(w.root, id)
}

func (w *WebDAVStore) Store(_ context.Context, r io.Reader, _ int64, folder, _ string) (*Object, error) {
	id := newKey(folder)
	full := w.fullPath(id)
	if err := w.client.MkdirAll(path.Dir(full), 0755); err != nil {
		return nil, errors.Wrap(err, "webdav mkdir")
	}
	if err := w.client.WriteStream(full, r, 0644); err != nil {
		return nil, errors.Wrap(err, "webdav write")
	}
	return &Object{ID: id, URL: w.baseURL + id}, nil
}

func (w *WebDAVStore) Delete(_ context.Context, id string) error {
	if err := w.client.Remove(w.fullPath(id)); err != nil && !gowebdav.IsErrNotFound(err) {
		return errors.Wrap(err, "webdav remove")
	}
	return nil
}

func (w *WebDAVStore) Exists(_ context.Context, id string) (bool, error) {
	_, err := w.client.Stat(w.fullPath(id))
	if err == nil {
		return true, nil
	}
	if gowebdav.IsErrNotFound(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "webdav stat")
}

func (w *WebDAVStore) Open(_ context.Context, id string) (io.ReadCloser, string, error) {
	rc, err := w.client.ReadStream(w.fullPath(id))
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", errors.Wrap(err, "webdav read")
	}
	return rc, "", nil
}

func (w *WebDAVStore) Close() error { return nil }
