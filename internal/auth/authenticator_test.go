package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"realtime-service/internal/db"
	"realtime-service/internal/errs"
	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

type fakeSessionStore struct {
	sessions map[string]models.Session
	touched  []string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.Session)}
}

func (s *fakeSessionStore) UpsertSession(_ context.Context, session models.Session) error {
	s.sessions[session.UserID] = session
	return nil
}

func (s *fakeSessionStore) ActiveSession(_ context.Context, userID string) (models.Session, error) {
	session, ok := s.sessions[userID]
	if !ok || !session.IsActive {
		return models.Session{}, db.ErrNoSession
	}
	return session, nil
}

func (s *fakeSessionStore) TouchSessions(_ context.Context, userID string) error {
	s.touched = append(s.touched, userID)
	return nil
}

func (s *fakeSessionStore) DeactivateSessions(_ context.Context, userID string) error {
	if session, ok := s.sessions[userID]; ok {
		session.IsActive = false
		s.sessions[userID] = session
	}
	return nil
}

func activeSession(userID string) models.Session {
	now := time.Now()
	return models.Session{
		SessionID:    "session_" + userID,
		UserID:       userID,
		Role:         models.RoleUser,
		LoginTime:    now,
		LastActivity: now,
		IsActive:     true,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func newTestAuthenticator(store SessionStore) *Authenticator {
	return New("test-secret", time.Hour, store, nil, logging.Discard())
}

func TestAuthenticateValidTokenAndSession(t *testing.T) {
	store := newFakeSessionStore()
	store.sessions["u1"] = activeSession("u1")
	a := newTestAuthenticator(store)

	token, err := a.IssueToken(models.Principal{UserID: "u1", Role: models.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}

	principal, err := a.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if principal.UserID != "u1" || principal.Role != models.RoleAdmin {
		t.Errorf("unexpected principal %+v", principal)
	}
}

func TestAuthenticateGarbageToken(t *testing.T) {
	a := newTestAuthenticator(newFakeSessionStore())
	_, err := a.Authenticate(context.Background(), "not.a.token")
	if !errors.Is(err, errs.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	store := newFakeSessionStore()
	store.sessions["u1"] = activeSession("u1")
	other := New("other-secret", time.Hour, store, nil, logging.Discard())
	token, err := other.IssueToken(models.Principal{UserID: "u1", Role: models.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}

	a := newTestAuthenticator(store)
	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, errs.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	store := newFakeSessionStore()
	store.sessions["u1"] = activeSession("u1")
	a := newTestAuthenticator(store)

	token, err := a.IssueToken(models.Principal{UserID: "u1", Role: models.RoleUser}, -time.Minute)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	// Expired credential means re-login, not re-authenticate.
	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, errs.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthenticateNoSession(t *testing.T) {
	a := newTestAuthenticator(newFakeSessionStore())
	token, err := a.IssueToken(models.Principal{UserID: "u1", Role: models.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}

	// Valid signature but no active session row: the replay window after
	// logout stays closed.
	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, errs.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthenticateRevokedSession(t *testing.T) {
	store := newFakeSessionStore()
	session := activeSession("u1")
	session.IsActive = false
	store.sessions["u1"] = session
	a := newTestAuthenticator(store)

	token, err := a.IssueToken(models.Principal{UserID: "u1", Role: models.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, errs.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthenticateStaleSessionRow(t *testing.T) {
	store := newFakeSessionStore()
	session := activeSession("u1")
	session.ExpiresAt = time.Now().Add(-time.Minute)
	store.sessions["u1"] = session
	a := newTestAuthenticator(store)

	token, err := a.IssueToken(models.Principal{UserID: "u1", Role: models.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, errs.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestCreateSessionDerivedID(t *testing.T) {
	store := newFakeSessionStore()
	a := newTestAuthenticator(store)

	id, err := a.CreateSession(context.Background(), models.Principal{UserID: "u1", Role: models.RoleUser}, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if id != "session_u1" {
		t.Errorf("session id should be derived from the user id, got %s", id)
	}

	// A repeat login reuses the same derived id, so the store upserts
	// instead of accumulating rows.
	id2, err := a.CreateSession(context.Background(), models.Principal{UserID: "u1", Role: models.RoleUser}, "10.0.0.2", "agent")
	if err != nil {
		t.Fatalf("repeat create session failed: %v", err)
	}
	if id2 != id {
		t.Errorf("repeat login must reuse the session id, got %s and %s", id, id2)
	}
	if len(store.sessions) != 1 {
		t.Errorf("expected one session row, got %d", len(store.sessions))
	}
}

func TestRevokeSessionsClosesReplayWindow(t *testing.T) {
	store := newFakeSessionStore()
	store.sessions["u1"] = activeSession("u1")
	a := newTestAuthenticator(store)

	token, err := a.IssueToken(models.Principal{UserID: "u1", Role: models.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	if _, err := a.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("authenticate before revocation failed: %v", err)
	}

	if err := a.RevokeSessions(context.Background(), "u1"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, errs.ErrSessionExpired) {
		t.Errorf("token must stop authenticating after revocation, got %v", err)
	}
}

func TestTouchSession(t *testing.T) {
	store := newFakeSessionStore()
	a := newTestAuthenticator(store)

	if err := a.TouchSession(context.Background(), "u1"); err != nil {
		t.Fatalf("touch failed: %v", err)
	}
	if len(store.touched) != 1 || store.touched[0] != "u1" {
		t.Errorf("expected touch for u1, got %v", store.touched)
	}
}
