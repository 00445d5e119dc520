package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

type FSStore struct {
	base      string
	urlPrefix string
}

// NewFSStore stores blobs under base and reports URLs under urlPrefix
// (for example "/assets").
func NewFSStore(base, urlPrefix string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base, urlPrefix: urlPrefix}, nil
}

func (s *FSStore) Put(_ context.Context, key string, r io.Reader) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return "", err
	}
	return key, f.Close()
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.base, filepath.FromSlash(key)))
}

func (s *FSStore) URL(key string) string {
	return s.urlPrefix + "/" + key
}
