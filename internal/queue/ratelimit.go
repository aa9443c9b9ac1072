package queue

import (
	"fmt"
	"sync"
	"time"

	"lodestar/internal/config"
	"lodestar/internal/store"
)

// SourceRateLimiter enforces the rolling-window policy per source,
// backed by the sqlite-3-persisted event log so the window survives a
// process restart.
type SourceRateLimiter struct {
	mu sync.Mutex
	db *store.Store
	limits map[string]config.SourceRateLimit
}

// NewSourceRateLimiter opens the rate-limit database at dbPath and
// configures the rolling window for each named source.
func NewSourceRateLimiter(dbPath string, limits map[string]config.SourceRateLimit) (*SourceRateLimiter, error) {
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open rate limiter store: %w", err)
	}
	return &SourceRateLimiter{db: db, limits: limits}, nil
}

func (r *SourceRateLimiter) Close() error { return r.db.Close() }

// Allow reports whether a call for source may proceed right now,
// given how many manual and scheduled calls have already landed in
// the trailing window.
func (r *SourceRateLimiter) Allow(source string, manual bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit, ok := r.limits[source]
	if !ok {
		return true, nil // unconfigured sources are effectively unlimited
	}

	window := time.Duration(limit.WindowSeconds) * time.Second
	since := time.Now().Add(-window)

	manualCount, scheduledCount, err := r.db.CountSince(source, since)
	if err != nil {
		return false, fmt.Errorf("check rate limit for %s: %w", source, err)
	}

	if manual {
		return manualCount < limit.MaxManual, nil
	}
	return scheduledCount < limit.MaxScheduled, nil
}

// Record logs a call attempt for source, to be counted by future
// Allow checks within the window.
func (r *SourceRateLimiter) Record(source string, manual bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.RecordAttempt(source, manual, time.Now())
}
