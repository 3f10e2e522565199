package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bazarkua/molexa-api/internal/classifier"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/metrics"
	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/bazarkua/molexa-api/internal/repository"
	"github.com/bazarkua/molexa-api/internal/storage"
	"gorm.io/gorm"
)

const (
	defaultPersistQueue = 1024
	persistTimeout      = 10 * time.Second
)

type persistJob struct {
	event models.RequestEvent
	done  chan struct{} // set on flush barriers only
}

// Writes events through a bounded queue drained by a single worker
type ConnectedAggregator struct {
	db      *storage.Postgres
	events  *repository.EventRepository
	periods *repository.PeriodRepository
	log     logger.Logger
	metrics *metrics.Metrics

	queue    chan persistJob
	stopped  chan struct{}
	mu       sync.RWMutex // guards closed against sends on a closed queue
	closed   bool
	onResult func(PersistResult)
}

func NewConnectedAggregator(db *storage.Postgres, queueSize int, log logger.Logger, m *metrics.Metrics) *ConnectedAggregator {
	if queueSize <= 0 {
		queueSize = defaultPersistQueue
	}

	a := &ConnectedAggregator{
		db:      db,
		events:  repository.NewEventRepository(db),
		periods: repository.NewPeriodRepository(db),
		log:     log,
		metrics: m,
		queue:   make(chan persistJob, queueSize),
		stopped: make(chan struct{}),
	}

	go a.run()

	return a
}

// Registers fn to receive every PersistResult. Must be called before the
// first Persist.
func (a *ConnectedAggregator) OnResult(fn func(PersistResult)) {
	a.onResult = fn
}

func (a *ConnectedAggregator) Initialize(ctx context.Context, periodKey string) error {
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	if err := a.periods.EnsureExists(ctx, periodKey); err != nil {
		return fmt.Errorf("failed to ensure period %s: %w", periodKey, err)
	}

	return nil
}

func (a *ConnectedAggregator) Persist(event models.RequestEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.report(PersistResult{EventID: event.ID, PeriodKey: event.PeriodKey, Outcome: OutcomeDropped, Err: fmt.Errorf("aggregator closed")})
		return
	}

	select {
	case a.queue <- persistJob{event: event}:
	default:
		// Queue full, drop rather than block the request
		a.report(PersistResult{EventID: event.ID, PeriodKey: event.PeriodKey, Outcome: OutcomeDropped, Err: fmt.Errorf("persist queue full")})
	}
}

func (a *ConnectedAggregator) MetricsForPeriod(ctx context.Context, periodKey string) (*models.PeriodSummary, error) {
	summary, err := a.periods.FindByKey(ctx, periodKey)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, ErrNotFound
	}

	return summary, nil
}

func (a *ConnectedAggregator) Recent(ctx context.Context, limit int) ([]models.RequestEvent, error) {
	return a.events.FindRecent(ctx, limit)
}

func (a *ConnectedAggregator) Flush(ctx context.Context) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return nil
	}

	done := make(chan struct{})
	select {
	case a.queue <- persistJob{done: done}:
		a.mu.RUnlock()
	case <-ctx.Done():
		a.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *ConnectedAggregator) Connected() bool {
	return true
}

// Stops accepting events and waits for the queue to drain
func (a *ConnectedAggregator) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *ConnectedAggregator) run() {
	defer close(a.stopped)

	for job := range a.queue {
		if job.done != nil {
			close(job.done)
			continue
		}
		a.report(a.write(job.event))
	}
}

// Inserts the event and applies it to its period in one transaction
func (a *ConnectedAggregator) write(event models.RequestEvent) PersistResult {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	result := PersistResult{EventID: event.ID, PeriodKey: event.PeriodKey, Outcome: OutcomeOK}

	err := a.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := a.events.WithTx(tx).Create(ctx, &event); err != nil {
			return err
		}
		return a.periods.WithTx(tx).ApplyEvent(ctx, &event, classifier.EndpointGroup(event.Endpoint))
	})
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
	}

	return result
}

func (a *ConnectedAggregator) report(result PersistResult) {
	a.metrics.PersistResults.WithLabelValues(string(result.Outcome)).Inc()

	if result.Err != nil {
		a.log.Warn("Failed to persist analytics event",
			logger.String("event_id", result.EventID),
			logger.String("period", result.PeriodKey),
			logger.String("outcome", string(result.Outcome)),
			logger.Error(result.Err))
	}

	if a.onResult != nil {
		a.onResult(result)
	}
}
