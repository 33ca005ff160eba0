package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/avolkov/docpipe/internal/core/domain"
)

// Storage lays objects out as <base>/<bucket>/<key> on the local filesystem.
// Object versions are not materialized locally; Get ignores the version hint
// and always serves the current bytes.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Put(_ context.Context, bucket, key string, data []byte) error {
	path := filepath.Join(s.basePath, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

func (s *Storage) Get(_ context.Context, bucket, key, _ string) ([]byte, error) {
	path := filepath.Join(s.basePath, bucket, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "read object", fmt.Errorf("%s/%s", bucket, key))
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}
