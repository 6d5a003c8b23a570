package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"realtime-service/internal/models"
)

// ErrNoSession is returned when no active session row matches.
var ErrNoSession = errors.New("no active session")

// UpsertSession creates or refreshes a session row. On conflict the expiry
// is extended and last activity refreshed instead of creating a duplicate.
func (d *DB) UpsertSession(ctx context.Context, s models.Session) error {
	_, err := d.Pool.Exec(ctx, `
        INSERT INTO user_sessions
            (session_id, user_id, username, email, role, login_time, last_activity,
             ip_address, user_agent, is_active, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)
        ON CONFLICT (session_id)
        DO UPDATE SET
            last_activity = EXCLUDED.last_activity,
            expires_at = EXCLUDED.expires_at,
            is_active = TRUE`,
		s.SessionID, s.UserID, s.Username, s.Email, s.Role, s.LoginTime,
		s.LastActivity, s.IPAddress, s.UserAgent, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// ActiveSession returns the freshest active, unexpired session for a user.
func (d *DB) ActiveSession(ctx context.Context, userID string) (models.Session, error) {
	var s models.Session
	err := d.Pool.QueryRow(ctx, `
        SELECT session_id, user_id, username, email, role, login_time,
               last_activity, ip_address, user_agent, is_active, expires_at
        FROM user_sessions
        WHERE user_id = $1 AND is_active = TRUE AND expires_at > NOW()
        ORDER BY last_activity DESC
        LIMIT 1`, userID).Scan(
		&s.SessionID, &s.UserID, &s.Username, &s.Email, &s.Role, &s.LoginTime,
		&s.LastActivity, &s.IPAddress, &s.UserAgent, &s.IsActive, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrNoSession
		}
		return models.Session{}, fmt.Errorf("failed to load session for user %s: %w", userID, err)
	}
	return s, nil
}

// TouchSessions bumps last activity for all active sessions of a user
// without extending expiry.
func (d *DB) TouchSessions(ctx context.Context, userID string) error {
	_, err := d.Pool.Exec(ctx, `
        UPDATE user_sessions
        SET last_activity = NOW()
        WHERE user_id = $1 AND is_active = TRUE`, userID)
	if err != nil {
		return fmt.Errorf("failed to touch sessions for user %s: %w", userID, err)
	}
	return nil
}

// DeactivateSessions soft-expires every session of a user. Rows are kept
// for audit.
func (d *DB) DeactivateSessions(ctx context.Context, userID string) error {
	_, err := d.Pool.Exec(ctx, `
        UPDATE user_sessions
        SET is_active = FALSE
        WHERE user_id = $1 AND is_active = TRUE`, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions for user %s: %w", userID, err)
	}
	return nil
}
