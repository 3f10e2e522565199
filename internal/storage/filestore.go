package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Writes archive records as JSON files under a directory
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Atomic: the record is written to a temp file and renamed into place
func (f *FileStore) Put(ctx context.Context, periodKey string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(f.dir, archiveObjectName(periodKey))

	tmp, err := os.CreateTemp(f.dir, ".archive-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}

	return target, nil
}

func (f *FileStore) Get(ctx context.Context, periodKey string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, archiveObjectName(periodKey)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArchiveNotFound
	}
	return data, err
}

func (f *FileStore) Name() string {
	return "file"
}
