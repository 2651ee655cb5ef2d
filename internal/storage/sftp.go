package storage

import (
	"context"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/go-faster/errors"
	"github.com/pkg/sftp"
	"github.com/tgdrive/filebox/internal/config"
	"golang.org/x/crypto/ssh"
)

type SFTPStore struct {
	conn    *ssh.Client
	client  *sftp.Client
	root    string
	baseURL string
}

func NewSFTPStore(cfg *config.SFTPConfig, baseURL string) (*SFTPStore, error) {
	if cfg.HostKey == "" {
		return nil, errors.New("sftp host key is required")
	}
	hostKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.HostKey))
	if err != nil {
		return nil, errors.Wrap(err, "parse sftp host key")
	}
	conn, err := ssh.Dial("tcp", cfg.Addr, &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.FixedHostKey(hostKey),
		Timeout:         10 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "dial sftp")
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "start sftp")
	}
	return &SFTPStore{conn: conn, client: client, root: cfg.Root, baseURL: baseURL}, nil
}

func (s *SFTPStore) fullPath(id string) string {
	return path.Join(s.root, id)
}

func (s *SFTPStore) Store(_ context.Context, r io.Reader, _ int64, folder, _ string) (*Object, error) {
	id := newKey(folder)
	full := s.fullPath(id)
	if err := s.client.MkdirAll(path.Dir(full)); err != nil {
		return nil, errors.Wrap(err, "sftp mkdir")
	}
	f, err := s.client.Create(full)
	if err != nil {
		return nil, errors.Wrap(err, "sftp create")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.client.Remove(full)
		return nil, errors.Wrap(err, "sftp write")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, "sftp close")
	}
	return &Object{ID: id, URL: s.baseURL + id}, nil
}

func (s *SFTPStore) Delete(_ context.Context, id string) error {
	if err := s.client.Remove(s.fullPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "sftp remove")
	}
	return nil
}

func (s *SFTPStore) Exists(_ context.Context, id string) (bool, error) {
	_, err := s.client.Stat(s.fullPath(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrap(err, "sftp stat")
}

func (s *SFTPStore) Open(_ context.Context, id string) (io.ReadCloser, string, error) {
	f, err := s.client.Open(s.fullPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", errors.Wrap(err, "sftp open")
	}
	return f, "", nil
}

func (s *SFTPStore) Close() error {
	s.client.Close()
	return s.conn.Close()
}
