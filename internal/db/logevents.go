package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"realtime-service/internal/models"
)

// InsertLogEvent persists one ingested audit event.
func (d *DB) InsertLogEvent(ctx context.Context, e models.LogEvent) error {
	var metadata []byte
	if e.Metadata != nil {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal log event metadata: %w", err)
		}
	}
	_, err := d.Pool.Exec(ctx, `
        INSERT INTO log_events
            (trace_id, level, category, action, message, user_id, role, ip, endpoint, metadata, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.TraceID, e.Level, e.Category, e.Action, e.Message, e.UserID,
		e.Role, e.IP, e.Endpoint, metadata, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert log event: %w", err)
	}
	return nil
}

// EventsSince returns all events at or after the cutoff, oldest first.
// This is the snapshot source for the alert engine.
func (d *DB) EventsSince(ctx context.Context, since time.Time) ([]models.LogEvent, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT trace_id, level, category, action, message, user_id, role, ip, endpoint, metadata, timestamp
        FROM log_events
        WHERE timestamp >= $1
        ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get log events since %s: %w", since, err)
	}
	defer rows.Close()

	var events []models.LogEvent
	for rows.Next() {
		var e models.LogEvent
		var metadata []byte
		err := rows.Scan(&e.TraceID, &e.Level, &e.Category, &e.Action, &e.Message,
			&e.UserID, &e.Role, &e.IP, &e.Endpoint, &metadata, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
