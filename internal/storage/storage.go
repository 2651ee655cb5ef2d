// Package storage holds the object store backends that keep file contents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/tgdrive/filebox/internal/config"
)

var ErrNotFound = errors.New("object not found")

type Object struct {
	ID  string
	URL string
}

// ObjectStore stores opaque blobs. Delete of a missing object is not an error.
type ObjectStore interface {
	Store(ctx context.Context, r io.Reader, size int64, folder, contentType string) (*Object, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	Close() error
}

// Opener is implemented by backends whose objects are served by this process.
type Opener interface {
	Open(ctx context.Context, id string) (io.ReadCloser, string, error)
}

func NewObjectStore(ctx context.Context, cfg *config.StorageConfig, publicURL string) (ObjectStore, error) {
	base := strings.TrimRight(publicURL, "/") + BlobsPath
	switch cfg.Type {
	case "s3":
		return NewS3Store(ctx, &cfg.S3)
	case "bolt":
		return NewBoltStore(cfg.Bolt.Path, base)
	case "webdav":
		return NewWebDAVStore(&cfg.WebDAV, base), nil
	case "sftp":
		return NewSFTPStore(&cfg.SFTP, base)
	case "memory":
		return NewMemoryStore(base), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// BlobsPath is where locally served objects are mounted.
const BlobsPath = "/blobs/"

func newKey(folder string) string {
	return path.Join(strings.Trim(folder, "/"), uuid.NewString())
}

// ValidKey rejects keys that could escape the storage root.
func ValidKey(id string) bool {
	if id == "" || strings.HasPrefix(id, "/") {
		return false
	}
	for _, part := range strings.Split(id, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
