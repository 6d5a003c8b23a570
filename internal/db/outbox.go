package db

import (
	"context"
	"fmt"
	"time"

	"realtime-service/internal/models"
)

// InsertMessage persists an outbox row with status pending. Re-inserting
// an existing message_id is a no-op; the bool reports whether a new row
// was written.
func (d *DB) InsertMessage(ctx context.Context, m models.OutboxMessage) (bool, error) {
	tag, err := d.Pool.Exec(ctx, `
        INSERT INTO message_queue
            (message_id, channel, user_id, message_type, payload, priority,
             status, retry_count, created_at, scheduled_for, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
        ON CONFLICT (message_id) DO NOTHING`,
		m.MessageID, m.Channel, m.UserID, m.Type, m.Payload, m.Priority,
		models.StatusPending, m.CreatedAt, m.ScheduledFor, m.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert message %s: %w", m.MessageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDelivered moves a pending message to delivered.
func (d *DB) MarkDelivered(ctx context.Context, messageID string) error {
	tag, err := d.Pool.Exec(ctx, `
        UPDATE message_queue
        SET status = $1, delivered_at = $2
        WHERE message_id = $3 AND status = $4`,
		models.StatusDelivered, time.Now(), messageID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark message %s delivered: %w", messageID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pending message for id %s", messageID)
	}
	return nil
}

// MarkFailed moves a pending message to failed and bumps its retry count.
func (d *DB) MarkFailed(ctx context.Context, messageID string) error {
	tag, err := d.Pool.Exec(ctx, `
        UPDATE message_queue
        SET status = $1, retry_count = retry_count + 1
        WHERE message_id = $2 AND status = $3`,
		models.StatusFailed, messageID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark message %s failed: %w", messageID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pending message for id %s", messageID)
	}
	return nil
}

// MessageHistory returns persisted messages for a user, most recent first.
func (d *DB) MessageHistory(ctx context.Context, userID string, limit, offset int) ([]models.OutboxMessage, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT message_id, channel, user_id, message_type, payload, priority,
               status, retry_count, created_at, scheduled_for, delivered_at, expires_at
        FROM message_queue
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get message history for user %s: %w", userID, err)
	}
	defer rows.Close()

	var messages []models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		err := rows.Scan(&m.MessageID, &m.Channel, &m.UserID, &m.Type, &m.Payload,
			&m.Priority, &m.Status, &m.RetryCount, &m.CreatedAt, &m.ScheduledFor,
			&m.DeliveredAt, &m.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
