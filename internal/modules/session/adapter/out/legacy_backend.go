package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	sessionout "studyrun/internal/modules/session/port/out"
	apperrors "studyrun/internal/platform/errors"
)

// LegacyBackend is the fallback store: every session document in a single
// YAML file keyed by session code.
type LegacyBackend struct {
	path string
	mu   sync.Mutex
}

var _ sessionout.Backend = (*LegacyBackend)(nil)

type legacyFile struct {
	Sessions map[string]string `yaml:"sessions"`
}

func NewLegacyBackend(path string) *LegacyBackend {
	return &LegacyBackend{path: path}
}

func (b *LegacyBackend) Name() string {
	return "legacy"
}

func (b *LegacyBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	file, err := b.read()
	if err != nil {
		return nil, err
	}
	doc, ok := file.Sessions[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return []byte(doc), nil
}

func (b *LegacyBackend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	file, err := b.read()
	if err != nil {
		return err
	}
	file.Sessions[key] = string(value)
	payload, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode legacy sessions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create legacy dir: %w", err)
	}
	if err := atomicWriteFile(b.path, payload, 0o644); err != nil {
		return fmt.Errorf("write legacy sessions: %w", err)
	}
	return nil
}

func (b *LegacyBackend) read() (legacyFile, error) {
	file := legacyFile{Sessions: map[string]string{}}
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return file, nil
		}
		return file, fmt.Errorf("read legacy sessions: %w", err)
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("decode legacy sessions: %w", err)
	}
	if file.Sessions == nil {
		file.Sessions = map[string]string{}
	}
	return file, nil
}
