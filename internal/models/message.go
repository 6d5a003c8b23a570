package models

import (
	"encoding/json"
	"time"
)

// Outbox message statuses. Transitions are pending -> delivered or
// pending -> failed, never backwards.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Message priorities.
const (
	PriorityLow      = 0
	PriorityMedium   = 1
	PriorityHigh     = 2
	PriorityCritical = 3
)

// OutboxMessage is the durable record of one outbound send, written
// before any transport attempt so a crash after enqueue leaves the
// message recoverable.
type OutboxMessage struct {
	MessageID    string          `json:"message_id"`
	Channel      string          `json:"channel"`
	UserID       string          `json:"user_id,omitempty"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// RateLimitWindow is one recorded admission event. Usage for an
// identifier is the sum of counts whose windows overlap now-period.
type RateLimitWindow struct {
	Identifier  string    `json:"identifier"`
	EventType   string    `json:"event_type"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// ConnectionMetric is a fire-and-forget record of one registry event.
type ConnectionMetric struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id,omitempty"`
	Channel      string    `json:"channel"`
	EventType    string    `json:"event_type"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
