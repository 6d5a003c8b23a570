package outbox

import (
	"context"
	"fmt"
	"time"

	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

// Store is the durable backing for outbox rows.
type Store interface {
	InsertMessage(ctx context.Context, m models.OutboxMessage) (bool, error)
	MarkDelivered(ctx context.Context, messageID string) error
	MarkFailed(ctx context.Context, messageID string) error
	MessageHistory(ctx context.Context, userID string, limit, offset int) ([]models.OutboxMessage, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Outbox is the write-ahead record of every outbound message. Enqueue is
// durable before return; transport outcome is recorded afterwards via
// MarkDelivered/MarkFailed.
type Outbox struct {
	store  Store
	logger *logging.Logger
}

func New(store Store, logger *logging.Logger) *Outbox {
	return &Outbox{store: store, logger: logger}
}

// Enqueue persists the message with status pending. Message ids are
// caller-supplied and unique: re-enqueueing an existing id is an
// idempotent no-op, so the outbox never holds two rows for one id.
func (o *Outbox) Enqueue(ctx context.Context, m models.OutboxMessage) error {
	if m.MessageID == "" {
		return fmt.Errorf("message id is required")
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.ScheduledFor.IsZero() {
		m.ScheduledFor = now
	}
	inserted, err := o.store.InsertMessage(ctx, m)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	if !inserted {
		o.logger.Debugf("Duplicate enqueue for message %s ignored", m.MessageID)
	}
	return nil
}

// MarkDelivered records that the transport accepted the message.
func (o *Outbox) MarkDelivered(ctx context.Context, messageID string) error {
	return o.store.MarkDelivered(ctx, messageID)
}

// MarkFailed records a transport failure and bumps the retry count. Retry
// scheduling is a caller policy, not the outbox's.
func (o *Outbox) MarkFailed(ctx context.Context, messageID string) error {
	return o.store.MarkFailed(ctx, messageID)
}

// History returns a user's persisted messages, most recent first.
func (o *Outbox) History(ctx context.Context, userID string, limit, offset int) ([]models.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return o.store.MessageHistory(ctx, userID, limit, offset)
}
