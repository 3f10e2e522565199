package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bazarkua/molexa-api/internal/eventstore"
	"github.com/bazarkua/molexa-api/internal/fingerprint"
	"github.com/bazarkua/molexa-api/internal/lock"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/metrics"
	"github.com/bazarkua/molexa-api/internal/repository"
	"github.com/bazarkua/molexa-api/internal/storage"
	"github.com/bazarkua/molexa-api/internal/testutil"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Notify() { c.n.Add(1) }

func newHasher(t *testing.T) *fingerprint.Hasher {
	t.Helper()
	h, err := fingerprint.New("test-salt")
	require.NoError(t, err)
	return h
}

func newMemoryService(t *testing.T) (*AnalyticsService, *metrics.Metrics) {
	t.Helper()

	m := metrics.NewUnregistered()
	svc := NewAnalyticsService(eventstore.New(10), NewMemoryOnlyAggregator(), nil, newHasher(t), logger.NewNop(), m, AnalyticsOptions{})
	return svc, m
}

func observe(path string) Observation {
	return Observation{
		Method:     "GET",
		Path:       path,
		ClientIP:   "198.51.100.23",
		UserAgent:  "curl/8.5.0",
		StatusCode: 200,
		Duration:   42 * time.Millisecond,
	}
}

func TestAnalyticsService_EndToEndSummary(t *testing.T) {
	svc, m := newMemoryService(t)

	_, ok := svc.Track(observe("/api/autocomplete/asp"))
	require.True(t, ok)
	_, ok = svc.Track(observe("/api/pubchem/compound/name/aspirin/educational"))
	require.True(t, ok)

	summary := svc.Summary()
	assert.Equal(t, int64(2), summary.TotalRequests)
	assert.Equal(t, 2, summary.RecentRequestsCount)
	assert.ElementsMatch(t, []eventstore.Count{
		{Name: "Autocomplete", Count: 1},
		{Name: "Educational Overview", Count: 1},
	}, summary.TopTypes)
	assert.False(t, summary.DatabaseConnected)

	assert.Equal(t, 1.0, prom.ToFloat64(m.EventsTracked.WithLabelValues("Autocomplete")))
}

func TestAnalyticsService_SkipsUntrackable(t *testing.T) {
	svc, m := newMemoryService(t)

	for _, p := range []string{"/api/docs", "/health", "/api/analytics/summary", "/"} {
		_, ok := svc.Track(observe(p))
		assert.False(t, ok, p)
	}

	assert.Zero(t, svc.Summary().TotalRequests)
	assert.Equal(t, 4.0, prom.ToFloat64(m.RequestsSkipped))
}

func TestAnalyticsService_EventFields(t *testing.T) {
	svc, _ := newMemoryService(t)
	notifier := &countingNotifier{}
	svc.SetNotifier(notifier)

	event, ok := svc.Track(observe("/api/pubchem/compound/cid/2244/PNG?size=large"))
	require.True(t, ok)

	assert.Len(t, event.ID, 36)
	assert.Equal(t, "Structure Image", event.Category)
	assert.Equal(t, "/api/pubchem/compound/cid/2244/PNG?size=large", event.Endpoint)
	assert.Equal(t, int64(42), event.DurationMs)
	assert.Equal(t, 200, event.StatusCode)
	assert.NotEmpty(t, event.IPFingerprint)
	assert.NotEqual(t, "198.51.100.23", event.IPFingerprint)
	assert.NotContains(t, event.AgentFingerprint, "curl")
	assert.Equal(t, event.Timestamp.Format("2006-01"), event.PeriodKey)

	assert.Equal(t, int32(1), notifier.n.Load())
}

func TestAnalyticsService_MemoryOnlyMode(t *testing.T) {
	svc, _ := newMemoryService(t)
	ctx := context.Background()

	svc.Initialize(ctx)
	svc.Track(observe("/api/autocomplete/asp"))

	assert.False(t, svc.Connected())
	assert.Len(t, svc.Recent(0), 1)

	_, err := svc.MonthlyReport(ctx, "2026-10")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.MonthlyReport(ctx, "October")
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.Archive(ctx, "2026-10")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = svc.Rollover(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnalyticsService_DegradesWhenDatabaseUnreachable(t *testing.T) {
	db := testutil.NewDB(t)
	m := metrics.NewUnregistered()
	agg := NewConnectedAggregator(db, 8, logger.NewNop(), m)
	svc := NewAnalyticsService(eventstore.New(10), agg, nil, newHasher(t), logger.NewNop(), m, AnalyticsOptions{})

	require.NoError(t, db.Close())
	svc.Initialize(context.Background())

	assert.False(t, svc.Connected())
	assert.False(t, svc.Summary().DatabaseConnected)

	_, ok := svc.Track(observe("/api/autocomplete/asp"))
	assert.True(t, ok)
	assert.Equal(t, int64(1), svc.Summary().TotalRequests)
}

func TestAnalyticsService_ConnectedLifecycle(t *testing.T) {
	db := testutil.NewDB(t)
	m := metrics.NewUnregistered()
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	// events left behind by a previous process
	events := repository.NewEventRepository(db)
	for i := 0; i < 3; i++ {
		e := testutil.Event(testutil.EventID(i), now.Add(-time.Duration(i+1)*time.Minute), "/api/autocomplete/a", 3)
		require.NoError(t, events.Create(ctx, &e))
	}

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	agg := NewConnectedAggregator(db, 16, logger.NewNop(), m)
	archiver := NewArchiver(db, store, lock.NewLocal(), agg, false, logger.NewNop(), m)
	archiver.clock = clock
	svc := NewAnalyticsService(eventstore.NewWithClock(10, clock), agg, archiver, newHasher(t), logger.NewNop(), m,
		AnalyticsOptions{Clock: clock, HydrateCount: 5})

	svc.Initialize(ctx)
	require.True(t, svc.Connected())

	// hydration fills the buffer but not the counters
	assert.Len(t, svc.Recent(10), 3)
	assert.Zero(t, svc.Summary().TotalRequests)

	svc.Track(observe("/api/pugview/compound/2244/safety?heading=Toxicity"))
	svc.Track(observe("/api/autocomplete/asp"))
	require.NoError(t, agg.Flush(ctx))

	report, err := svc.MonthlyReport(ctx, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.TotalCount)
	assert.Equal(t, int64(1), report.CountsByCategory["Safety Data"])

	_, err = svc.MonthlyReport(ctx, "2019-05")
	assert.ErrorIs(t, err, ErrNotFound)

	// the leftover rows were never counted; archiving reconciles the summary
	res, err := svc.Archive(ctx, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 5, res.EventCount)

	report, err = svc.MonthlyReport(ctx, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.TotalCount)
	assert.Equal(t, int64(4), report.CountsByCategory["Autocomplete"])
	assert.Equal(t, int64(1), report.CountsByCategory["Safety Data"])

	snap := svc.Snapshot()
	assert.Equal(t, int64(2), snap.Summary.TotalRequests)
	assert.Len(t, snap.Recent, 5)

	require.NoError(t, svc.Close(ctx))
}
