package service

import (
	"context"

	"github.com/bazarkua/molexa-api/internal/models"
)

// Aggregator used when no durable backend is available. Writes are discarded
// and reads report ErrNotConfigured.
type MemoryOnlyAggregator struct{}

func NewMemoryOnlyAggregator() *MemoryOnlyAggregator {
	return &MemoryOnlyAggregator{}
}

func (MemoryOnlyAggregator) Initialize(ctx context.Context, periodKey string) error {
	return nil
}

func (MemoryOnlyAggregator) Persist(event models.RequestEvent) {}

func (MemoryOnlyAggregator) MetricsForPeriod(ctx context.Context, periodKey string) (*models.PeriodSummary, error) {
	return nil, ErrNotConfigured
}

func (MemoryOnlyAggregator) Recent(ctx context.Context, limit int) ([]models.RequestEvent, error) {
	return nil, nil
}

func (MemoryOnlyAggregator) Flush(ctx context.Context) error {
	return nil
}

func (MemoryOnlyAggregator) Connected() bool {
	return false
}

func (MemoryOnlyAggregator) Close(ctx context.Context) error {
	return nil
}
