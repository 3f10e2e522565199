// Package publisher fans analytics snapshots out to live subscribers.
package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/metrics"
)

const DefaultInterval = 30 * time.Second

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Builds the value pushed to subscribers
type SnapshotFunc func() interface{}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}

	snapshot SnapshotFunc
	interval time.Duration
	notify   chan struct{}
	log      logger.Logger
	metrics  *metrics.Metrics
}

func NewHub(snapshot SnapshotFunc, interval time.Duration, log logger.Logger, m *metrics.Metrics) *Hub {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
		snapshot:    snapshot,
		interval:    interval,
		notify:      make(chan struct{}, 1),
		log:         log,
		metrics:     m,
	}
}

// Pushes on every notification and on each tick until ctx is done, then
// closes all remaining subscribers.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.notify:
			h.Publish()
		case <-ticker.C:
			h.Publish()
		}
	}
}

// Requests a push. Never blocks; notifications arriving while one is
// pending are coalesced.
func (h *Hub) Notify() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Sends the current snapshot to sub and registers it. A subscriber that
// cannot take the first message is not registered.
func (h *Hub) Subscribe(sub Subscriber) error {
	payload, err := h.Payload()
	if err != nil {
		return err
	}
	if err := sub.Send(payload); err != nil {
		return err
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()

	h.metrics.StreamSubscribers.Set(float64(n))
	return nil
}

func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	n := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		sub.Close()
		h.metrics.StreamSubscribers.Set(float64(n))
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) Payload() ([]byte, error) {
	return json.Marshal(h.snapshot())
}

// Sends one snapshot to every subscriber. A subscriber whose send fails is
// dropped without affecting the others.
func (h *Hub) Publish() {
	h.mu.RLock()
	if len(h.subscribers) == 0 {
		h.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	payload, err := h.Payload()
	if err != nil {
		h.log.Error("Failed to encode analytics snapshot", logger.Error(err))
		return
	}

	for _, s := range subs {
		if err := s.Send(payload); err != nil {
			h.log.Debug("Dropping analytics subscriber", logger.Error(err))
			h.Unsubscribe(s)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[Subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.Close()
	}
	h.metrics.StreamSubscribers.Set(0)
}
