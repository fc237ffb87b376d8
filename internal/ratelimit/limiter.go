package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCapacity = 4096
	defaultLimit    = 120
	defaultWindow   = time.Minute
)

var errInvalidLimit = errors.New("ratelimit: limit must be positive")

// Config bounds the limiter: at most Limit calls per Window per key,
// tracked in an LRU of Capacity keys.
type Config struct {
	Capacity int
	Limit    int
	Window   time.Duration
	Clock    func() time.Time
}

// Limiter is a fixed-window request limiter. It is an injected dependency,
// never package-level state, so separate server instances keep separate
// counters and tests can build isolated limiters.
type Limiter struct {
	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
	limit   int
	period  time.Duration
	clock   func() time.Time
}

type window struct {
	startedAt time.Time
	count     int
}

// NewLimiter validates configuration and returns a Limiter.
func NewLimiter(cfg Config) (*Limiter, error) {
	if cfg.Limit < 0 {
		return nil, errInvalidLimit
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	limit := cfg.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	period := cfg.Window
	if period <= 0 {
		period = defaultWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	// Entries expire from the LRU one full window after their last touch,
	// so an evicted key simply starts a fresh window.
	return &Limiter{
		windows: expirable.NewLRU[string, *window](capacity, nil, period),
		limit:   limit,
		period:  period,
		clock:   clock,
	}, nil
}

// Allow reports whether the caller identified by key may proceed.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows.Get(key)
	if !ok || now.Sub(current.startedAt) >= l.period {
		l.windows.Add(key, &window{startedAt: now, count: 1})
		return true
	}
	if current.count >= l.limit {
		return false
	}
	current.count++
	return true
}
