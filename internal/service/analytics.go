package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bazarkua/molexa-api/internal/classifier"
	"github.com/bazarkua/molexa-api/internal/eventstore"
	"github.com/bazarkua/molexa-api/internal/fingerprint"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/metrics"
	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/google/uuid"
)

// One completed request as seen by the HTTP layer
type Observation struct {
	Method     string
	Path       string // path and raw query
	ClientIP   string
	UserAgent  string
	StatusCode int
	Duration   time.Duration
}

// Receives a signal whenever a new event was recorded
type Notifier interface {
	Notify()
}

type AnalyticsOptions struct {
	TopK         int
	RecentLimit  int
	HydrateCount int
	Clock        func() time.Time
}

// Summary shape served by the summary endpoint and the live stream.
// Figures come from the in-memory store and cover this process's lifetime.
type AnalyticsSummary struct {
	TotalRequests       int64              `json:"totalRequests"`
	RecentRequestsCount int                `json:"recentRequestsCount"`
	TopEndpoints        []eventstore.Count `json:"topEndpoints"`
	TopTypes            []eventstore.Count `json:"topTypes"`
	UptimeMinutes       int64              `json:"uptimeMinutes"`
	CurrentPeriod       string             `json:"currentPeriod"`
	DatabaseConnected   bool               `json:"databaseConnected"`
	CountsByHour        [24]int64          `json:"countsByHour"`
}

type Snapshot struct {
	Summary AnalyticsSummary      `json:"summary"`
	Recent  []models.RequestEvent `json:"recent"`
}

type AnalyticsService struct {
	store   *eventstore.Store
	hasher  *fingerprint.Hasher
	log     logger.Logger
	metrics *metrics.Metrics
	opts    AnalyticsOptions

	mu         sync.RWMutex
	aggregator Aggregator
	archiver   *Archiver
	notifier   Notifier
}

// archiver may be nil when no durable backend is configured
func NewAnalyticsService(
	store *eventstore.Store,
	aggregator Aggregator,
	archiver *Archiver,
	hasher *fingerprint.Hasher,
	log logger.Logger,
	m *metrics.Metrics,
	opts AnalyticsOptions,
) *AnalyticsService {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 10
	}
	if opts.HydrateCount <= 0 {
		opts.HydrateCount = store.Capacity()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &AnalyticsService{
		store:      store,
		hasher:     hasher,
		log:        log,
		metrics:    m,
		opts:       opts,
		aggregator: aggregator,
		archiver:   archiver,
	}
}

func (s *AnalyticsService) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Prepares the durable side and hydrates the in-memory buffer. Any backend
// failure switches the service to memory-only mode instead of failing.
func (s *AnalyticsService) Initialize(ctx context.Context) {
	aggregator, archiver := s.backends()
	if !aggregator.Connected() {
		return
	}

	periodKey := models.PeriodKeyFor(s.opts.Clock())
	if err := aggregator.Initialize(ctx, periodKey); err != nil {
		s.degrade(ctx, err)
		return
	}

	recent, err := aggregator.Recent(ctx, s.opts.HydrateCount)
	if err != nil {
		s.log.Warn("Failed to hydrate recent events", logger.Error(err))
	} else {
		s.store.Seed(recent)
		s.log.Info("Hydrated recent analytics events", logger.Int("count", len(recent)))
	}

	if archiver != nil {
		if _, err := archiver.ArchivePreviousPeriodIfRolled(ctx); err != nil {
			s.log.Warn("Rollover catch-up failed", logger.Error(err))
		}
	}
}

func (s *AnalyticsService) degrade(ctx context.Context, cause error) {
	s.log.Warn("Durable analytics unavailable, continuing in memory-only mode", logger.Error(cause))

	s.mu.Lock()
	previous := s.aggregator
	s.aggregator = NewMemoryOnlyAggregator()
	s.archiver = nil
	s.mu.Unlock()

	if err := previous.Close(ctx); err != nil {
		s.log.Warn("Failed to stop aggregator", logger.Error(err))
	}
}

func (s *AnalyticsService) backends() (Aggregator, *Archiver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregator, s.archiver
}

// Classifies a completed request and, when trackable, records it in memory
// and queues it for durable storage. Never blocks on I/O.
func (s *AnalyticsService) Track(obs Observation) (models.RequestEvent, bool) {
	result := classifier.Classify(obs.Method, obs.Path)
	if !result.Trackable {
		s.metrics.RequestsSkipped.Inc()
		return models.RequestEvent{}, false
	}

	now := s.opts.Clock().UTC()
	event := models.RequestEvent{
		ID:               newEventID(),
		Timestamp:        now,
		Method:           obs.Method,
		Endpoint:         obs.Path,
		Category:         string(result.Category),
		StatusCode:       obs.StatusCode,
		DurationMs:       obs.Duration.Milliseconds(),
		IPFingerprint:    s.hasher.Sum(obs.ClientIP),
		AgentFingerprint: s.hasher.Sum(obs.UserAgent),
		PeriodKey:        models.PeriodKeyFor(now),
	}

	s.store.Record(event)
	s.metrics.EventsTracked.WithLabelValues(event.Category).Inc()

	s.mu.RLock()
	aggregator, notifier := s.aggregator, s.notifier
	s.mu.RUnlock()

	aggregator.Persist(event)
	if notifier != nil {
		notifier.Notify()
	}

	return event, true
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *AnalyticsService) Summary() AnalyticsSummary {
	sum := s.store.Summary(s.opts.TopK)
	aggregator, _ := s.backends()

	return AnalyticsSummary{
		TotalRequests:       sum.TotalCount,
		RecentRequestsCount: sum.Buffered,
		TopEndpoints:        sum.TopEndpoints,
		TopTypes:            sum.TopCategories,
		UptimeMinutes:       int64(sum.Uptime / time.Minute),
		CurrentPeriod:       sum.CurrentPeriod,
		DatabaseConnected:   aggregator.Connected(),
		CountsByHour:        sum.CountsByHour,
	}
}

// limit <= 0 uses the configured default; the result is capped by the buffer
func (s *AnalyticsService) Recent(limit int) []models.RequestEvent {
	if limit <= 0 {
		limit = s.opts.RecentLimit
	}
	return s.store.Recent(limit)
}

func (s *AnalyticsService) Snapshot() Snapshot {
	return Snapshot{
		Summary: s.Summary(),
		Recent:  s.Recent(s.opts.RecentLimit),
	}
}

// Durable summary for periodKey; the source of truth for historical totals
func (s *AnalyticsService) MonthlyReport(ctx context.Context, periodKey string) (*models.PeriodSummary, error) {
	if _, err := models.ParsePeriodKey(periodKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, err)
	}

	aggregator, _ := s.backends()
	return aggregator.MetricsForPeriod(ctx, periodKey)
}

func (s *AnalyticsService) Archive(ctx context.Context, periodKey string) (*ArchiveResult, error) {
	_, archiver := s.backends()
	if archiver == nil {
		return nil, ErrNotConfigured
	}
	return archiver.Archive(ctx, periodKey)
}

func (s *AnalyticsService) Rollover(ctx context.Context) ([]ArchiveResult, error) {
	_, archiver := s.backends()
	if archiver == nil {
		return nil, ErrNotConfigured
	}
	return archiver.ArchivePreviousPeriodIfRolled(ctx)
}

func (s *AnalyticsService) Connected() bool {
	aggregator, _ := s.backends()
	return aggregator.Connected()
}

// Drains pending durable writes
func (s *AnalyticsService) Close(ctx context.Context) error {
	aggregator, _ := s.backends()
	return aggregator.Close(ctx)
}
