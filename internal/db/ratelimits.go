package db

import (
	"context"
	"fmt"
	"time"

	"realtime-service/internal/models"
)

// Rate limit rows store one event each: window_start holds the event
// time and window_end the time it ages out of any trailing window. The
// counting itself happens in the ratelimit package.

// PruneEvents deletes events whose windows ended before the given time.
func (d *DB) PruneEvents(ctx context.Context, before time.Time) error {
	if _, err := d.Pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_end < $1`, before); err != nil {
		return fmt.Errorf("failed to prune rate limit events: %w", err)
	}
	return nil
}

// EventTimes returns the recorded event times for the identifier since
// the given time.
func (d *DB) EventTimes(ctx context.Context, identifier, eventType string, since time.Time) ([]time.Time, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT window_start FROM rate_limits
        WHERE identifier = $1 AND event_type = $2 AND window_start > $3`,
		identifier, eventType, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit events for %s: %w", identifier, err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit event: %w", err)
		}
		times = append(times, at)
	}
	return times, rows.Err()
}

// RecordEvent stores one rate limit event.
func (d *DB) RecordEvent(ctx context.Context, identifier, eventType string, at, expiresAt time.Time) error {
	_, err := d.Pool.Exec(ctx, `
        INSERT INTO rate_limits (identifier, event_type, count, window_start, window_end)
        VALUES ($1, $2, 1, $3, $4)`,
		identifier, eventType, at, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to record rate limit event: %w", err)
	}
	return nil
}

// RateLimitWindows returns current windows for an identifier, used by the
// admin introspection endpoint.
func (d *DB) RateLimitWindows(ctx context.Context, identifier string) ([]models.RateLimitWindow, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT identifier, event_type, count, window_start, window_end
        FROM rate_limits
        WHERE identifier = $1
        ORDER BY window_end DESC`, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit windows for %s: %w", identifier, err)
	}
	defer rows.Close()

	var windows []models.RateLimitWindow
	for rows.Next() {
		var w models.RateLimitWindow
		if err := rows.Scan(&w.Identifier, &w.EventType, &w.Count, &w.WindowStart, &w.WindowEnd); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}
