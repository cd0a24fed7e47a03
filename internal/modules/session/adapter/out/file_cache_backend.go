package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sessionout "studyrun/internal/modules/session/port/out"
	apperrors "studyrun/internal/platform/errors"
)

// FileCacheBackend keeps one JSON file per session on the local disk.
type FileCacheBackend struct {
	dir string
}

var _ sessionout.Backend = (*FileCacheBackend)(nil)

func NewFileCacheBackend(dir string) *FileCacheBackend {
	return &FileCacheBackend{dir: dir}
}

func (b *FileCacheBackend) Name() string {
	return "cache"
}

func (b *FileCacheBackend) Get(_ context.Context, key string) ([]byte, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("read cached session: %w", err)
	}
	return payload, nil
}

func (b *FileCacheBackend) Set(_ context.Context, key string, value []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := atomicWriteFile(path, value, 0o644); err != nil {
		return fmt.Errorf("write cached session: %w", err)
	}
	return nil
}

func (b *FileCacheBackend) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("%w: cache key %q", apperrors.ErrInvalidInput, key)
	}
	return filepath.Join(b.dir, key+".json"), nil
}

// atomicWriteFile writes to a temp file in the same directory and renames it
// over path, so readers never observe a partial document.
func atomicWriteFile(path string, content []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
