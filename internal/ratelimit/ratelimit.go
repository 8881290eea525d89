package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Store keeps fixed-window counters outside the process so limits survive
// restarts and are shared between replicas.
type Store interface {
	// Increment adds one hit to key's window and returns the new count.
	Increment(ctx context.Context, key string, windowStart, expiresAt time.Time) (int, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewLimiter(store Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// Allow records one hit for key and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now().UTC()
	start := now.Truncate(l.window)
	reset := start.Add(l.window)

	count, err := l.store.Increment(ctx, key, start, reset)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
		ResetAt:   reset,
	}
	if !d.Allowed {
		l.logger.Warn("rate limit exceeded", "key", key, "count", count, "limit", l.limit)
	}
	return d, nil
}

// Purge drops counters whose window has ended.
func (l *Limiter) Purge(ctx context.Context) (int64, error) {
	return l.store.Purge(ctx, l.now().UTC())
}
