package ratelimit

import (
	"context"
	"time"

	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

const eventType = "request"

// Store is the durable event log behind the limiter. It only stores and
// retrieves events; the window arithmetic happens in the Limiter so one
// defective query cannot silently disable admission control.
type Store interface {
	PruneEvents(ctx context.Context, before time.Time) error
	EventTimes(ctx context.Context, identifier, eventType string, since time.Time) ([]time.Time, error)
	RecordEvent(ctx context.Context, identifier, eventType string, at, expiresAt time.Time) error
	RateLimitWindows(ctx context.Context, identifier string) ([]models.RateLimitWindow, error)
}

// Limiter is sliding-window admission control keyed by an arbitrary
// identifier. If the backing store is unavailable the check fails open:
// availability wins over strict admission control here.
type Limiter struct {
	store  Store
	logger *logging.Logger
}

func New(store Store, logger *logging.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// IsRateLimited counts events for the identifier within the trailing
// period. At or over the limit it returns true without recording a new
// event; otherwise it records one and returns false.
func (l *Limiter) IsRateLimited(ctx context.Context, identifier string, limit int, period time.Duration) bool {
	now := time.Now()
	if err := l.store.PruneEvents(ctx, now); err != nil {
		// Housekeeping only, stale rows are filtered out below anyway.
		l.logger.Warnf("Rate limit prune failed: %v", err)
	}

	times, err := l.store.EventTimes(ctx, identifier, eventType, now.Add(-period))
	if err != nil {
		l.logger.Errorf("Rate limit check failed for %s, failing open: %v", identifier, err)
		return false
	}
	if usageWithin(now, period, times) >= limit {
		return true
	}

	if err := l.store.RecordEvent(ctx, identifier, eventType, now, now.Add(period)); err != nil {
		l.logger.Errorf("Rate limit record failed for %s, failing open: %v", identifier, err)
	}
	return false
}

// usageWithin counts the events inside the trailing period ending at
// now. An event exactly one period old has aged out.
func usageWithin(now time.Time, period time.Duration, events []time.Time) int {
	cutoff := now.Add(-period)
	used := 0
	for _, at := range events {
		if at.After(cutoff) {
			used++
		}
	}
	return used
}

// Windows exposes the identifier's current windows for admin
// introspection.
func (l *Limiter) Windows(ctx context.Context, identifier string) ([]models.RateLimitWindow, error) {
	return l.store.RateLimitWindows(ctx, identifier)
}
