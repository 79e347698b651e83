package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/security"
	"github.com/legalsandbox/research-backend/internal/store"
)

type fakeCleaner struct {
	cleared []string
	err     error
}

func (c *fakeCleaner) ClearSession(_ context.Context, sessionID string) error {
	c.cleared = append(c.cleared, sessionID)
	return c.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthServiceForTest(t *testing.T, now time.Time, sessions []domain.Session) (*AuthService, *store.SessionStore, *fakeCleaner) {
	t.Helper()
	st := store.NewSessionStore(sessions).WithClock(func() time.Time { return now })
	tokens := security.NewTokenManager("legal-research-sandbox", "sandbox-api", "abcdefghijklmnopqrstuvwxyz123456")
	cleaner := &fakeCleaner{}
	svc := NewAuthService(st, tokens, cleaner, 72, testLogger()).WithClock(func() time.Time { return now })
	return svc, st, cleaner
}

func provisionedSession(t *testing.T, id, username, password string, expiresAt time.Time) domain.Session {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return domain.Session{
		SessionID:    id,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    expiresAt.Add(-72 * time.Hour),
		ExpiresAt:    expiresAt,
		TTLHours:     72,
		Active:       true,
	}
}

func TestAuthServiceLoginIssuesSessionBoundToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(10 * time.Hour)
	svc, _, _ := newAuthServiceForTest(t, now, []domain.Session{
		provisionedSession(t, "sess-1", "researcher_aaaa1111", "hunter2hunter2!!", expiresAt),
	})

	result, err := svc.Login(context.Background(), "researcher_aaaa1111", "hunter2hunter2!!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.SessionID != "sess-1" {
		t.Fatalf("unexpected session id %q", result.SessionID)
	}
	if !result.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("result expiry %v should equal session expiry %v", result.ExpiresAt, expiresAt)
	}
	if result.ExpiresIn != int64((10 * time.Hour).Seconds()) {
		t.Fatalf("unexpected expires_in %d", result.ExpiresIn)
	}
	if result.TTLHours != 72 {
		t.Fatalf("unexpected ttl hours %d", result.TTLHours)
	}

	tokens := security.NewTokenManager("legal-research-sandbox", "sandbox-api", "abcdefghijklmnopqrstuvwxyz123456")
	claims, err := tokens.Parse(result.AccessToken)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.SessionID != "sess-1" {
		t.Fatalf("token must carry the session id, got %q", claims.SessionID)
	}
	if got := claims.ExpiresAt.Time.Unix(); got != expiresAt.Unix() {
		t.Fatalf("token expiry must equal session expiry: got %d want %d", got, expiresAt.Unix())
	}
}

func TestAuthServiceLoginFailuresAreIndistinguishable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newAuthServiceForTest(t, now, []domain.Session{
		provisionedSession(t, "sess-1", "researcher_aaaa1111", "hunter2hunter2!!", now.Add(time.Hour)),
		provisionedSession(t, "sess-2", "researcher_expired", "hunter2hunter2!!", now.Add(-time.Hour)),
	})

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"unknown username", "researcher_nobody00", "hunter2hunter2!!"},
		{"wrong password", "researcher_aaaa1111", "wrong password"},
		{"expired session", "researcher_expired", "hunter2hunter2!!"},
	}
	var messages []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.username, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			messages = append(messages, err.Error())
		})
	}
	for _, msg := range messages {
		if msg != messages[0] {
			t.Fatalf("failure messages must not reveal the cause: %v", messages)
		}
	}
}

func TestAuthServiceStatusTracksRemainingTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	st := store.NewSessionStore([]domain.Session{
		provisionedSession(t, "sess-1", "researcher_aaaa1111", "hunter2hunter2!!", start.Add(72*time.Hour)),
	}).WithClock(func() time.Time { return clock })
	tokens := security.NewTokenManager("legal-research-sandbox", "sandbox-api", "abcdefghijklmnopqrstuvwxyz123456")
	svc := NewAuthService(st, tokens, nil, 72, testLogger()).WithClock(func() time.Time { return clock })

	status, err := svc.Status("sess-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.TimeRemaining != 72*time.Hour {
		t.Fatalf("expected full ttl remaining, got %v", status.TimeRemaining)
	}

	clock = start.Add(70 * time.Hour)
	status, err = svc.Status("sess-1")
	if err != nil {
		t.Fatalf("status near expiry: %v", err)
	}
	if status.TimeRemaining != 2*time.Hour {
		t.Fatalf("expected 2h remaining, got %v", status.TimeRemaining)
	}

	clock = start.Add(73 * time.Hour)
	if _, err := svc.Status("sess-1"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected not-found after expiry, got %v", err)
	}
}

func TestAuthServiceLogoutRemovesSessionAndClearsData(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, st, cleaner := newAuthServiceForTest(t, now, []domain.Session{
		provisionedSession(t, "sess-1", "researcher_aaaa1111", "hunter2hunter2!!", now.Add(time.Hour)),
	})

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := st.FindByID("sess-1"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected session removed after logout, got %v", err)
	}
	if len(cleaner.cleared) != 1 || cleaner.cleared[0] != "sess-1" {
		t.Fatalf("expected ephemeral data cleared, got %v", cleaner.cleared)
	}

	// Logging out again must not fail.
	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("repeated logout: %v", err)
	}
}

func TestAuthServiceLogoutToleratesCleanerFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, st, cleaner := newAuthServiceForTest(t, now, []domain.Session{
		provisionedSession(t, "sess-1", "researcher_aaaa1111", "hunter2hunter2!!", now.Add(time.Hour)),
	})
	cleaner.err = errors.New("database gone")

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("logout must succeed even when cleanup fails: %v", err)
	}
	if _, err := st.FindByID("sess-1"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("session must be gone regardless of cleanup, got %v", err)
	}
}
