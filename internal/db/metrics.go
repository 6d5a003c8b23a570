package db

import (
	"context"
	"fmt"

	"realtime-service/internal/models"
)

// InsertConnectionMetric records one registry event. Callers treat this as
// fire-and-forget; a failed write never affects the connection itself.
func (d *DB) InsertConnectionMetric(ctx context.Context, m models.ConnectionMetric) error {
	_, err := d.Pool.Exec(ctx, `
        INSERT INTO connection_metrics
            (connection_id, user_id, channel, event_type, success, error_message, duration_ms, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ConnectionID, m.UserID, m.Channel, m.EventType, m.Success,
		m.ErrorMessage, m.DurationMS, m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert connection metric: %w", err)
	}
	return nil
}
