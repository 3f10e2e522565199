package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrArchiveNotFound = errors.New("archive not found")

// Cold storage for archive records, one object per period
type ArchiveStore interface {
	Put(ctx context.Context, periodKey string, data []byte) (string, error)
	Get(ctx context.Context, periodKey string) ([]byte, error)
	Name() string
}

func archiveObjectName(periodKey string) string {
	return fmt.Sprintf("analytics-%s.json", periodKey)
}
