package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/security"
	"github.com/legalsandbox/research-backend/internal/store"
)

// ErrInvalidCredentials covers both unknown usernames and wrong passwords;
// callers must not be able to tell the two apart.
var ErrInvalidCredentials = errors.New("invalid credentials")

type LoginResult struct {
	AccessToken string
	SessionID   string
	ExpiresAt   time.Time
	ExpiresIn   int64
	TTLHours    int
}

type SessionStatus struct {
	Username      string
	TimeRemaining time.Duration
	Active        bool
}

type SessionCleaner interface {
	ClearSession(ctx context.Context, sessionID string) error
}

type AuthService struct {
	sessions *store.SessionStore
	tokens   *security.TokenManager
	cleaner  SessionCleaner
	ttlHours int
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(sessions *store.SessionStore, tokens *security.TokenManager, cleaner SessionCleaner, ttlHours int, logger *slog.Logger) *AuthService {
	return &AuthService{
		sessions: sessions,
		tokens:   tokens,
		cleaner:  cleaner,
		ttlHours: ttlHours,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the service's time source. Tests only.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Login verifies provisioned credentials and issues a token whose expiry
// equals the session's expires_at. The store lookup already treats expired
// records as absent, so a stale registry entry cannot be logged into.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	session, err := s.sessions.FindByUsername(username)
	if err != nil {
		security.BurnPasswordCheck(password)
		observability.RecordAuthLogin("unknown_user")
		s.logger.InfoContext(ctx, "login rejected", "reason", "unknown_user", "username", username)
		return nil, ErrInvalidCredentials
	}
	if !security.VerifyPassword(password, session.PasswordHash) {
		observability.RecordAuthLogin("bad_password")
		s.logger.InfoContext(ctx, "login rejected", "reason", "bad_password", "username", username)
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Sign(session.SessionID, session.Username, session.ExpiresAt)
	if err != nil {
		observability.RecordAuthLogin("sign_error")
		return nil, err
	}

	observability.RecordAuthLogin("success")
	s.logger.InfoContext(ctx, "login succeeded", "username", username, "session_id", session.SessionID)
	return &LoginResult{
		AccessToken: token,
		SessionID:   session.SessionID,
		ExpiresAt:   session.ExpiresAt,
		ExpiresIn:   int64(session.TimeRemaining(s.now()).Seconds()),
		TTLHours:    s.ttlHours,
	}, nil
}

// Status reports the remaining TTL for an authenticated session.
func (s *AuthService) Status(sessionID string) (*SessionStatus, error) {
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{
		Username:      session.Username,
		TimeRemaining: session.TimeRemaining(s.now()),
		Active:        session.Active,
	}, nil
}

// Logout removes the session from the store and drops its ephemeral data.
// Outstanding tokens for the session fail verification afterwards because the
// verifier re-checks the store on every request.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	s.sessions.Remove(sessionID)
	if s.cleaner != nil {
		if err := s.cleaner.ClearSession(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "clear session data on logout", "session_id", sessionID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "logout", "session_id", sessionID)
	return nil
}

// Session exposes the raw record for the export surface.
func (s *AuthService) Session(sessionID string) (domain.Session, error) {
	return s.sessions.FindByID(sessionID)
}
