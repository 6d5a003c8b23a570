package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"realtime-service/internal/models"
)

const sessionPrefix = "rt:session:"

// ErrMiss is returned when no cached session exists for a user.
var ErrMiss = errors.New("session cache miss")

// SessionCache is a read-through cache in front of the durable session
// store. Every error besides a miss is reported to the caller, which falls
// back to the store.
type SessionCache struct {
	client  *redis.Client
	timeout time.Duration
}

// New dials redis and verifies connectivity.
func New(addr, password string, db int) (*SessionCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &SessionCache{client: client, timeout: 250 * time.Millisecond}, nil
}

func (c *SessionCache) Close() error {
	return c.client.Close()
}

// Ping is used by the health endpoint.
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Set caches the freshest session for a user until the session expires.
func (c *SessionCache) Set(ctx context.Context, s models.Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(cctx, sessionPrefix+s.UserID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	return nil
}

// Get returns the cached session for a user, or ErrMiss.
func (c *SessionCache) Get(ctx context.Context, userID string) (models.Session, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.client.Get(cctx, sessionPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, ErrMiss
		}
		return models.Session{}, fmt.Errorf("failed to read session cache: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return models.Session{}, fmt.Errorf("failed to unmarshal cached session: %w", err)
	}
	return s, nil
}

// Invalidate drops the cached session after a touch or logout so the next
// read goes to the durable store.
func (c *SessionCache) Invalidate(ctx context.Context, userID string) error {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Del(cctx, sessionPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session cache: %w", err)
	}
	return nil
}
