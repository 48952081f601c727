package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.Bucket = (*LocalBucket)(nil)

const defaultLocalDir = "_output"

// LocalBucket keeps objects on the local filesystem and serves them under
// publicBase (the API mounts the directory at /media/).
type LocalBucket struct {
	dir        string
	publicBase string
}

func NewLocalBucket(dir, publicBase string) *LocalBucket {
	if dir == "" {
		dir = defaultLocalDir
	}
	return &LocalBucket{dir: dir, publicBase: strings.TrimRight(publicBase, "/")}
}

func (b *LocalBucket) Dir() string { return b.dir }

func (b *LocalBucket) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.dir, filepath.FromSlash(clean)), nil
}

func (b *LocalBucket) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return os.Rename(tmp, p)
}

func (b *LocalBucket) Exists(_ context.Context, key string) (bool, error) {
	p, err := b.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (b *LocalBucket) PublicURL(_ context.Context, key string) (string, error) {
	return publicURL(b.publicBase, key)
}
