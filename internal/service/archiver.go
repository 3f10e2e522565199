package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bazarkua/molexa-api/internal/classifier"
	"github.com/bazarkua/molexa-api/internal/lock"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/metrics"
	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/bazarkua/molexa-api/internal/repository"
	"github.com/bazarkua/molexa-api/internal/storage"
)

// Outcome of one archive run
type ArchiveResult struct {
	PeriodKey  string `json:"periodKey"`
	Location   string `json:"location"`
	EventCount int    `json:"eventCount"`
	Pruned     int64  `json:"pruned"`
}

type Archiver struct {
	events     *repository.EventRepository
	periods    *repository.PeriodRepository
	store      storage.ArchiveStore
	locker     lock.Locker
	aggregator Aggregator
	prune      bool
	log        logger.Logger
	metrics    *metrics.Metrics
	clock      func() time.Time

	mu          sync.Mutex
	lastChecked string
}

func NewArchiver(
	db *storage.Postgres,
	store storage.ArchiveStore,
	locker lock.Locker,
	aggregator Aggregator,
	prune bool,
	log logger.Logger,
	m *metrics.Metrics,
) *Archiver {
	return &Archiver{
		events:     repository.NewEventRepository(db),
		periods:    repository.NewPeriodRepository(db),
		store:      store,
		locker:     locker,
		aggregator: aggregator,
		prune:      prune,
		log:        log,
		metrics:    m,
		clock:      time.Now,
	}
}

// Writes the archive record for periodKey to cold storage and marks the
// period archived. Safe to repeat: the record is rebuilt from durable data.
func (a *Archiver) Archive(ctx context.Context, periodKey string) (*ArchiveResult, error) {
	result, err := a.archive(ctx, periodKey)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrArchiveInProgress):
		outcome = "in_progress"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrInvalidPeriod):
		outcome = "invalid"
	case err != nil:
		outcome = "failed"
	}
	a.metrics.ArchiveRuns.WithLabelValues(outcome).Inc()

	return result, err
}

func (a *Archiver) archive(ctx context.Context, periodKey string) (*ArchiveResult, error) {
	if _, err := models.ParsePeriodKey(periodKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, err)
	}

	release, err := a.locker.TryLock(ctx, "archive:"+periodKey)
	if errors.Is(err, lock.ErrHeld) {
		return nil, ErrArchiveInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire archive lock: %w", err)
	}
	defer release()

	// Events queued before the archive started belong in the snapshot
	if err := a.aggregator.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush pending events: %w", err)
	}

	summary, err := a.periods.FindByKey(ctx, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read period summary: %w", err)
	}

	events, err := a.events.FindByPeriod(ctx, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read period events: %w", err)
	}

	if summary == nil && len(events) == 0 {
		return nil, ErrNotFound
	}

	// Events pruned by an earlier run only survive in the previous record
	if summary != nil && summary.ArchivedAt != nil {
		events, err = a.mergePrevious(ctx, periodKey, events)
		if err != nil {
			return nil, err
		}
	}

	if summary == nil || summary.TotalCount != int64(len(events)) {
		if len(events) == 0 {
			return nil, fmt.Errorf("%w: no events left for period %s", ErrNotFound, periodKey)
		}

		summary, err = a.rebuildSummary(ctx, periodKey, events, summary)
		if err != nil {
			return nil, err
		}
	}

	snapshot := *summary
	snapshot.ArchivedAt = nil
	snapshot.ArchiveLocation = ""

	now := a.clock().UTC()
	record := models.ArchiveRecord{
		PeriodKey:  periodKey,
		Summary:    snapshot,
		Events:     events,
		EventCount: len(events),
		ArchivedAt: now,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive record: %w", err)
	}

	location, err := a.store.Put(ctx, periodKey, data)
	if err != nil {
		return nil, fmt.Errorf("failed to write archive to %s: %w", a.store.Name(), err)
	}

	if err := a.periods.MarkArchived(ctx, periodKey, now, location); err != nil {
		return nil, fmt.Errorf("failed to mark period archived: %w", err)
	}

	result := &ArchiveResult{
		PeriodKey:  periodKey,
		Location:   location,
		EventCount: len(events),
	}

	if a.prune {
		ids := make([]string, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}

		pruned, err := a.events.DeleteByIDs(ctx, periodKey, ids)
		if err != nil {
			// The record is written; leftover rows are pruned on the next run
			a.log.Warn("Failed to prune archived events",
				logger.String("period", periodKey),
				logger.Error(err))
		}
		result.Pruned = pruned
	}

	a.log.Info("Archived analytics period",
		logger.String("period", periodKey),
		logger.String("location", location),
		logger.Int("events", result.EventCount),
		logger.Int64("pruned", result.Pruned))

	return result, nil
}

// The event list is authoritative: the durable summary is rewritten from it
// and read back so later archives of the period see the same row.
func (a *Archiver) rebuildSummary(ctx context.Context, periodKey string, events []models.RequestEvent, stale *models.PeriodSummary) (*models.PeriodSummary, error) {
	var staleCount int64
	if stale != nil {
		staleCount = stale.TotalCount
	}
	a.log.Info("Rebuilding period summary from its events",
		logger.String("period", periodKey),
		logger.Int("events", len(events)),
		logger.Int64("total_count", staleCount))

	if err := a.periods.Replace(ctx, summarize(periodKey, events)); err != nil {
		return nil, fmt.Errorf("failed to rebuild period summary: %w", err)
	}

	summary, err := a.periods.FindByKey(ctx, periodKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read period summary: %w", err)
	}
	if summary == nil {
		return nil, fmt.Errorf("period summary %s missing after rebuild", periodKey)
	}

	return summary, nil
}

// Unions events from the existing archive record with the live rows
func (a *Archiver) mergePrevious(ctx context.Context, periodKey string, events []models.RequestEvent) ([]models.RequestEvent, error) {
	data, err := a.store.Get(ctx, periodKey)
	if errors.Is(err, storage.ErrArchiveNotFound) {
		return events, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read previous archive: %w", err)
	}

	var previous models.ArchiveRecord
	if err := json.Unmarshal(data, &previous); err != nil {
		return nil, fmt.Errorf("failed to decode previous archive: %w", err)
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		seen[e.ID] = struct{}{}
	}

	merged := append([]models.RequestEvent(nil), events...)
	for _, e := range previous.Events {
		if _, ok := seen[e.ID]; !ok {
			merged = append(merged, e)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		return merged[i].ID < merged[j].ID
	})

	return merged, nil
}

// Archives every open period older than the current one, once per month.
// Returns the periods that were archived.
func (a *Archiver) ArchivePreviousPeriodIfRolled(ctx context.Context) ([]ArchiveResult, error) {
	current := models.PeriodKeyFor(a.clock())

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastChecked == current {
		return nil, nil
	}

	keys, err := a.periods.ListOpenBefore(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("failed to list open periods: %w", err)
	}

	var (
		results []ArchiveResult
		errs    []error
	)
	for _, key := range keys {
		res, err := a.Archive(ctx, key)
		switch {
		case err == nil:
			results = append(results, *res)
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrArchiveInProgress):
			a.log.Info("Skipping period during rollover",
				logger.String("period", key),
				logger.Error(err))
		default:
			errs = append(errs, fmt.Errorf("period %s: %w", key, err))
		}
	}

	if len(errs) > 0 {
		return results, errors.Join(errs...)
	}

	a.lastChecked = current
	return results, nil
}

// Computes a period summary from raw events
func summarize(periodKey string, events []models.RequestEvent) *models.PeriodSummary {
	summary := &models.PeriodSummary{
		PeriodKey:             periodKey,
		CountsByCategory:      make(map[string]int64, len(classifier.Categories)),
		CountsByEndpointGroup: make(map[string]int64),
	}
	for _, c := range classifier.Categories {
		summary.CountsByCategory[string(c)] = 0
	}

	for _, e := range events {
		summary.TotalCount++
		summary.TotalDurationMs += e.DurationMs
		summary.CountsByCategory[e.Category]++
		summary.CountsByEndpointGroup[classifier.EndpointGroup(e.Endpoint)]++
	}
	if summary.TotalCount > 0 {
		summary.AverageDurationMs = float64(summary.TotalDurationMs) / float64(summary.TotalCount)
	}

	return summary
}
