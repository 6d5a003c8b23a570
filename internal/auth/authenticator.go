package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"realtime-service/internal/cache"
	"realtime-service/internal/db"
	"realtime-service/internal/errs"
	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

// SessionStore is the durable record of authenticated sessions.
type SessionStore interface {
	UpsertSession(ctx context.Context, s models.Session) error
	ActiveSession(ctx context.Context, userID string) (models.Session, error)
	TouchSessions(ctx context.Context, userID string) error
	DeactivateSessions(ctx context.Context, userID string) error
}

// SessionCache is the optional read-through layer in front of the store.
type SessionCache interface {
	Get(ctx context.Context, userID string) (models.Session, error)
	Set(ctx context.Context, s models.Session) error
	Invalidate(ctx context.Context, userID string) error
}

// Claims are the custom JWT claims carried by bearer credentials.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer credentials for long-lived connections.
// A structurally valid token is not enough: the subject must also have an
// active, unexpired session row, which closes the replay window after
// logout.
type Authenticator struct {
	secret     []byte
	sessionTTL time.Duration
	store      SessionStore
	cache      SessionCache
	logger     *logging.Logger
}

// New constructs an Authenticator. cache may be nil.
func New(secret string, sessionTTL time.Duration, store SessionStore, sessionCache SessionCache, logger *logging.Logger) *Authenticator {
	return &Authenticator{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		store:      store,
		cache:      sessionCache,
		logger:     logger,
	}
}

// Authenticate verifies the credential signature and expiry first, then
// requires a matching active session. An expired token or a revoked
// session yields ErrSessionExpired (client should re-login); a malformed
// or mis-signed token yields ErrAuthenticationFailed.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.Principal, error) {
	claims, err := a.parseToken(token)
	if err != nil {
		return models.Principal{}, err
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return models.Principal{}, errs.ErrAuthenticationFailed.WithDetails("token missing subject")
	}

	session, err := a.lookupSession(ctx, userID)
	if err != nil {
		return models.Principal{}, err
	}
	if !session.Valid(time.Now()) {
		return models.Principal{}, errs.ErrSessionExpired
	}

	return models.Principal{
		UserID:   userID,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
	}, nil
}

func (a *Authenticator) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.ErrSessionExpired
		}
		return nil, errs.ErrAuthenticationFailed
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errs.ErrAuthenticationFailed
	}
	return claims, nil
}

func (a *Authenticator) lookupSession(ctx context.Context, userID string) (models.Session, error) {
	if a.cache != nil {
		session, err := a.cache.Get(ctx, userID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			a.logger.Warnf("Session cache read failed for user %s: %v", userID, err)
		}
	}

	session, err := a.store.ActiveSession(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNoSession) {
			return models.Session{}, errs.ErrSessionExpired
		}
		return models.Session{}, errs.Internal(err)
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, session); err != nil {
			a.logger.Warnf("Session cache write failed for user %s: %v", userID, err)
		}
	}
	return session, nil
}

// CreateSession upserts the session row for a principal. The session id is
// derived from the user id, so a repeat login extends the existing row
// instead of creating a duplicate.
func (a *Authenticator) CreateSession(ctx context.Context, p models.Principal, ip, userAgent string) (string, error) {
	now := time.Now()
	session := models.Session{
		SessionID:    "session_" + p.UserID,
		UserID:       p.UserID,
		Username:     p.Username,
		Email:        p.Email,
		Role:         p.Role,
		LoginTime:    now,
		LastActivity: now,
		IPAddress:    ip,
		UserAgent:    userAgent,
		IsActive:     true,
		ExpiresAt:    now.Add(a.sessionTTL),
	}
	if err := a.store.UpsertSession(ctx, session); err != nil {
		return "", errs.Internal(err)
	}
	if a.cache != nil {
		if err := a.cache.Set(ctx, session); err != nil {
			a.logger.Warnf("Session cache write failed for user %s: %v", p.UserID, err)
		}
	}
	return session.SessionID, nil
}

// TouchSession bumps last activity for all active sessions of the user
// without extending expiry, and drops the cached copy.
func (a *Authenticator) TouchSession(ctx context.Context, userID string) error {
	if err := a.store.TouchSessions(ctx, userID); err != nil {
		return errs.Internal(err)
	}
	if a.cache != nil {
		if err := a.cache.Invalidate(ctx, userID); err != nil {
			a.logger.Warnf("Session cache invalidate failed for user %s: %v", userID, err)
		}
	}
	return nil
}

// RevokeSessions soft-expires every active session of the user and drops
// the cached copy. Structurally valid tokens stop authenticating once
// their session rows are gone.
func (a *Authenticator) RevokeSessions(ctx context.Context, userID string) error {
	if err := a.store.DeactivateSessions(ctx, userID); err != nil {
		return errs.Internal(err)
	}
	if a.cache != nil {
		if err := a.cache.Invalidate(ctx, userID); err != nil {
			a.logger.Warnf("Session cache invalidate failed for user %s: %v", userID, err)
		}
	}
	return nil
}

// IssueToken signs a credential for a principal. Exposed for tooling and
// tests; login itself lives in the upstream identity service.
func (a *Authenticator) IssueToken(p models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   p.UserID,
		Username: p.Username,
		Email:    p.Email,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
