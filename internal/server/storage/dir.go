package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/dropserve/internal/common"
)

// DirStore keeps blobs as flat files in a single directory, one file per key.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory if needed and returns a store over it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// path validates the key and resolves it inside the store directory. Keys are
// tokens with an optional extension; anything that could escape the directory
// is rejected.
func (d *DirStore) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(d.dir, key), nil
}

func (d *DirStore) Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open blob %q: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(p)
		return fmt.Errorf("write blob %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close blob %q: %w", key, err)
	}
	return nil
}

func (d *DirStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("open blob %q: %w", key, err)
	}
	return f, nil
}

func (d *DirStore) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob %q: %w", key, err)
	}
	return nil
}
