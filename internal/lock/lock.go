// Package lock provides the per-key mutual exclusion used around archival.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bazarkua/molexa-api/internal/storage"
	"github.com/google/uuid"
)

var ErrHeld = errors.New("lock is held by another owner")

type Locker interface {
	// TryLock acquires key without waiting. The returned func releases it.
	TryLock(ctx context.Context, key string) (func(), error)
}

// In-process locks keyed by name
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Cross-instance lock on a Redis key. The TTL bounds how long a crashed owner
// can block others.
type Redis struct {
	redis *storage.RedisClient
	ttl   time.Duration
}

func NewRedis(redis *storage.RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{redis: redis, ttl: ttl}
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	redisKey := "molexa:lock:" + key
	owner := uuid.NewString()

	ok, err := r.redis.SetNX(ctx, redisKey, owner, r.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.redis.DeleteIfValue(ctx, redisKey, owner)
	}, nil
}

// Acquires every locker in order; all or nothing
type Chain []Locker

func (c Chain) TryLock(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, err := l.TryLock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}

	return releaseAll, nil
}
