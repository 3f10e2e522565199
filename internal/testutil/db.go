// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/bazarkua/molexa-api/internal/classifier"
	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/bazarkua/molexa-api/internal/storage"
	"gorm.io/driver/sqlite"
)

// Opens a migrated in-memory sqlite database behind the gorm storage wrapper.
// One connection only: every new :memory: connection would be a fresh database.
func NewDB(t testing.TB) *storage.Postgres {
	t.Helper()

	db, err := storage.Open(sqlite.Open("file::memory:"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// Builds a classified event for path at ts
func Event(id string, ts time.Time, path string, durationMs int64) models.RequestEvent {
	return models.RequestEvent{
		ID:         id,
		Timestamp:  ts.UTC(),
		Method:     "GET",
		Endpoint:   path,
		Category:   string(classifier.Classify("GET", path).Category),
		StatusCode: 200,
		DurationMs: durationMs,
		PeriodKey:  models.PeriodKeyFor(ts),
	}
}

func EventID(i int) string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", i)
}
