package storage

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	blobsBucket = []byte("blobs")
	typesBucket = []byte("content-types")
)

// BoltStore keeps objects in a single bbolt file.
type BoltStore struct {
	db      *bolt.DB
	baseURL string
}

func NewBoltStore(path, baseURL string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{blobsBucket, typesBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init bolt store")
	}
	return &BoltStore{db: db, baseURL: baseURL}, nil
}

func (b *BoltStore) Store(_ context.Context, r io.Reader, _ int64, folder, contentType string) (*Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	id := newKey(folder)
	err = b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blobsBucket).Put([]byte(id), data); err != nil {
			return err
		}
		return tx.Bucket(typesBucket).Put([]byte(id), []byte(contentType))
	})
	if err != nil {
		return nil, errors.Wrap(err, "put blob")
	}
	return &Object{ID: id, URL: b.baseURL + id}, nil
}

func (b *BoltStore) Delete(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(blobsBucket).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(typesBucket).Delete([]byte(id))
	})
}

func (b *BoltStore) Exists(_ context.Context, id string) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(blobsBucket).Get([]byte(id)) != nil
		return nil
	})
	return ok, err
}

func (b *BoltStore) Open(_ context.Context, id string) (io.ReadCloser, string, error) {
	var (
		data []byte
		ct   string
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blobsBucket).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		// bolt values are only valid inside the transaction
		data = bytes.Clone(v)
		ct = string(tx.Bucket(typesBucket).Get([]byte(id)))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return io.NopCloser(bytes.NewReader(data)), ct, nil
}

func (b *BoltStore) Close() error { return b.db.Close() }
