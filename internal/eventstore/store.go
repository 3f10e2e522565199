// Package eventstore keeps the most recent classified request events in a
// bounded ring buffer together with running counters. It never performs I/O
// and never fails; capacity is a hard cap enforced by eviction.
package eventstore

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bazarkua/molexa-api/internal/classifier"
	"github.com/bazarkua/molexa-api/internal/models"
)

const DefaultCapacity = 100

// Name/count pair, encoded as a two element JSON array
type Count struct {
	Name  string
	Count int64
}

func (c Count) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Name, c.Count})
}

func (c *Count) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &c.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &c.Count)
}

// Point-in-time view of the in-memory counters
type Summary struct {
	TotalCount     int64
	TopCategories  []Count
	TopEndpoints   []Count
	CountsByHour   [24]int64
	CountsByPeriod map[string]int64
	Buffered       int
	Uptime         time.Duration
	CurrentPeriod  string
}

type Store struct {
	mu       sync.RWMutex
	capacity int
	buf      []models.RequestEvent
	next     int // slot the next event is written to
	size     int

	total      int64
	byCategory map[string]int64
	byEndpoint map[string]int64
	byHour     [24]int64
	byPeriod   map[string]int64

	startedAt time.Time
	clock     func() time.Time
}

func New(capacity int) *Store {
	return NewWithClock(capacity, time.Now)
}

func NewWithClock(capacity int, clock func() time.Time) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Store{
		capacity:   capacity,
		buf:        make([]models.RequestEvent, capacity),
		byCategory: make(map[string]int64),
		byEndpoint: make(map[string]int64),
		byPeriod:   make(map[string]int64),
		startedAt:  clock(),
		clock:      clock,
	}
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Adds an event at the front, evicting the oldest when full, and bumps the
// counters. This is the only method that mutates the counters.
func (s *Store) Record(event models.RequestEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.push(event)

	s.total++
	s.byCategory[event.Category]++
	s.byEndpoint[classifier.EndpointGroup(event.Endpoint)]++
	s.byHour[event.Timestamp.UTC().Hour()]++
	s.byPeriod[event.PeriodKey]++
}

// Loads previously persisted events into the buffer without touching the
// counters. events must be ordered newest first. Only called during startup.
func (s *Store) Seed(events []models.RequestEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(events) > s.capacity {
		events = events[:s.capacity]
	}
	for i := len(events) - 1; i >= 0; i-- {
		s.push(events[i])
	}
}

func (s *Store) push(event models.RequestEvent) {
	s.buf[s.next] = event
	s.next = (s.next + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
}

// Returns up to limit events, newest first, as a copy
func (s *Store) Recent(limit int) []models.RequestEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.size {
		limit = s.size
	}

	out := make([]models.RequestEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + s.capacity) % s.capacity
		out = append(out, s.buf[idx])
	}

	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// topK <= 0 returns every category and endpoint group
func (s *Store) Summary(topK int) Summary {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	periods := make(map[string]int64, len(s.byPeriod))
	for k, v := range s.byPeriod {
		periods[k] = v
	}

	return Summary{
		TotalCount:     s.total,
		TopCategories:  top(s.byCategory, topK),
		TopEndpoints:   top(s.byEndpoint, topK),
		CountsByHour:   s.byHour,
		CountsByPeriod: periods,
		Buffered:       s.size,
		Uptime:         now.Sub(s.startedAt),
		CurrentPeriod:  models.PeriodKeyFor(now),
	}
}

// Sorted by count descending, then name for a stable order
func top(counts map[string]int64, k int) []Count {
	out := make([]Count, 0, len(counts))
	for name, n := range counts {
		out = append(out, Count{Name: name, Count: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
