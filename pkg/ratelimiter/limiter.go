package ratelimiter

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultDuration = time.Second * 30
	DefaultLimit    = 20

	cleanupInterval = time.Millisecond * 500
)

var ErrLimitReached = errors.New("rate limit reached")

// Limiter allows Limit hits per key within Duration. Windows start with the first hit of a key.
type Limiter struct {
	sync.Mutex
	Limit    int
	Duration time.Duration

	limits map[string]*Limit
	stop   chan struct{}
	once   sync.Once
}

func New(opts ...LimiterOpt) *Limiter {
	limiter := &Limiter{
		Limit:    DefaultLimit,
		Duration: DefaultDuration,
		limits:   map[string]*Limit{},
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(limiter)
	}

	go limiter.clean()

	return limiter
}

// Shutdown stops expiring windows. It's safe to call more than once.
func (limiter *Limiter) Shutdown() {
	limiter.once.Do(func() {
		close(limiter.stop)
	})
}

// Hit counts a request of key. The returned error matches ErrLimitReached once key has used up its window.
func (limiter *Limiter) Hit(key string) (*Limit, error) {
	limiter.Lock()
	defer limiter.Unlock()

	limit, ok := limiter.limits[key]
	if !ok {
		limit = newLimit(key)
		limiter.limits[key] = limit
	}

	limit.Hit()

	if limit.Hits > limiter.Limit {
		return limit, fmt.Errorf("%w: %s has reached max requests %d", ErrLimitReached, key, limiter.Limit)
	}

	return limit, nil
}

func (limiter *Limiter) clean() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-limiter.stop:
			return
		case <-ticker.C:
			base := time.Now().Add(-limiter.Duration)
			limiter.Lock()
			for key, value := range limiter.limits {
				if value.Created.Before(base) {
					delete(limiter.limits, key)
				}
			}
			limiter.Unlock()
		}
	}
}
