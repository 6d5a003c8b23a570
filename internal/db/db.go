package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*DB, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

// Ping verifies connectivity, used by the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// InitSchema creates the tables this service owns if they do not exist.
func (d *DB) InitSchema(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS user_sessions (
            session_id VARCHAR(255) PRIMARY KEY,
            user_id VARCHAR(255) NOT NULL,
            username VARCHAR(255),
            email VARCHAR(255),
            role VARCHAR(50) NOT NULL,
            login_time TIMESTAMPTZ NOT NULL,
            last_activity TIMESTAMPTZ NOT NULL,
            ip_address VARCHAR(45),
            user_agent TEXT,
            is_active BOOLEAN DEFAULT TRUE,
            expires_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );

        CREATE TABLE IF NOT EXISTS message_queue (
            id SERIAL PRIMARY KEY,
            message_id VARCHAR(255) UNIQUE NOT NULL,
            channel VARCHAR(255) NOT NULL,
            user_id VARCHAR(255),
            message_type VARCHAR(50) NOT NULL,
            payload JSONB NOT NULL,
            priority INTEGER DEFAULT 0,
            status VARCHAR(20) DEFAULT 'pending',
            retry_count INTEGER DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            scheduled_for TIMESTAMPTZ DEFAULT NOW(),
            delivered_at TIMESTAMPTZ,
            expires_at TIMESTAMPTZ
        );

        CREATE TABLE IF NOT EXISTS rate_limits (
            id SERIAL PRIMARY KEY,
            identifier VARCHAR(255) NOT NULL,
            event_type VARCHAR(50) NOT NULL,
            count INTEGER DEFAULT 1,
            window_start TIMESTAMPTZ NOT NULL,
            window_end TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );

        CREATE TABLE IF NOT EXISTS connection_metrics (
            id SERIAL PRIMARY KEY,
            connection_id VARCHAR(255),
            user_id VARCHAR(255),
            channel VARCHAR(255) NOT NULL,
            event_type VARCHAR(50) NOT NULL,
            success BOOLEAN DEFAULT TRUE,
            error_message TEXT,
            duration_ms BIGINT,
            timestamp TIMESTAMPTZ DEFAULT NOW()
        );

        CREATE TABLE IF NOT EXISTS log_events (
            id SERIAL PRIMARY KEY,
            trace_id VARCHAR(255) NOT NULL,
            level VARCHAR(20) NOT NULL,
            category VARCHAR(50) NOT NULL,
            action VARCHAR(255) NOT NULL,
            message TEXT NOT NULL,
            user_id VARCHAR(255),
            role VARCHAR(50),
            ip VARCHAR(45),
            endpoint VARCHAR(255),
            metadata JSONB,
            timestamp TIMESTAMPTZ NOT NULL
        );

        CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id ON user_sessions(user_id);
        CREATE INDEX IF NOT EXISTS idx_user_sessions_expires ON user_sessions(expires_at);
        CREATE INDEX IF NOT EXISTS idx_message_queue_status ON message_queue(status);
        CREATE INDEX IF NOT EXISTS idx_message_queue_user ON message_queue(user_id);
        CREATE INDEX IF NOT EXISTS idx_rate_limits_identifier ON rate_limits(identifier);
        CREATE INDEX IF NOT EXISTS idx_rate_limits_window_end ON rate_limits(window_end);
        CREATE INDEX IF NOT EXISTS idx_connection_metrics_timestamp ON connection_metrics(timestamp);
        CREATE INDEX IF NOT EXISTS idx_log_events_timestamp ON log_events(timestamp);
    `)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
