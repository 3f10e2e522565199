package service

import (
	"context"
	"fmt"

	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/metrics"
	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/bazarkua/molexa-api/internal/storage"
)

// Durable side of the analytics pipeline. Selected once at startup.
type Aggregator interface {
	// Makes sure the summary row for periodKey exists
	Initialize(ctx context.Context, periodKey string) error
	// Queues an event for durable storage; never blocks and never fails
	Persist(event models.RequestEvent)
	MetricsForPeriod(ctx context.Context, periodKey string) (*models.PeriodSummary, error)
	// Most recent durable events, newest first
	Recent(ctx context.Context, limit int) ([]models.RequestEvent, error)
	// Waits until everything persisted before the call is written
	Flush(ctx context.Context) error
	Connected() bool
	Close(ctx context.Context) error
}

type PersistOutcome string

const (
	OutcomeOK      PersistOutcome = "ok"
	OutcomeFailed  PersistOutcome = "failed"
	OutcomeDropped PersistOutcome = "dropped"
)

// Result of one asynchronous persist, reported at the worker boundary
type PersistResult struct {
	EventID   string
	PeriodKey string
	Outcome   PersistOutcome
	Err       error
}

// Picks the aggregator variant. A nil db selects memory-only mode.
func NewAggregator(db *storage.Postgres, queueSize int, log logger.Logger, m *metrics.Metrics) Aggregator {
	if db == nil {
		log.Info("No database configured, analytics running in memory-only mode")
		return NewMemoryOnlyAggregator()
	}

	log.Info("Using database-backed analytics",
		logger.String("persist_queue", fmt.Sprintf("%d", queueSize)))
	return NewConnectedAggregator(db, queueSize, log, m)
}
