package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"payrun/internal/platform/crypto"
)

var ErrInvalidPath = errors.New("invalid document path")

// DiskStore keeps generated documents under one directory, sealed with the
// data encryption key when one is configured. Paths it returns are
// relative to that directory.
type DiskStore struct {
	Dir    string
	Crypto *crypto.Service
}

func NewDiskStore(dir string, crypto *crypto.Service) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	return &DiskStore{Dir: dir, Crypto: crypto}, nil
}

func (s *DiskStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	sealed, err := s.seal(data)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, rel)); err != nil {
		return "", err
	}
	return rel, nil
}

func (s *DiskStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := cleanName(path)
	if err != nil {
		return nil, err
	}
	sealed, err := os.ReadFile(filepath.Join(s.Dir, rel))
	if err != nil {
		return nil, err
	}
	if s.Crypto == nil {
		return sealed, nil
	}
	return s.Crypto.Decrypt(sealed)
}

func (s *DiskStore) seal(data []byte) ([]byte, error) {
	if s.Crypto == nil {
		return data, nil
	}
	return s.Crypto.Encrypt(data)
}

// cleanName accepts a bare file name only.
func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return name, nil
}
