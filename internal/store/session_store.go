package store

import (
	"errors"
	"sync"
	"time"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the authoritative runtime view of the provisioned session
// registry. It is loaded once at boot and mutated only by logout and the
// expiry sweeper. Expiry is enforced at lookup time: a record past its
// expires_at behaves as absent even before the sweeper removes it.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	now      func() time.Time
}

func NewSessionStore(sessions []domain.Session) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]domain.Session, len(sessions)),
		now:      time.Now,
	}
	for _, session := range sessions {
		s.sessions[session.SessionID] = session
	}
	return s
}

// WithClock overrides the store's time source. Tests only.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

func (s *SessionStore) FindByID(sessionID string) (domain.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || session.Expired(s.now()) {
		observability.RecordSessionLookup("by_id", "not_found")
		return domain.Session{}, ErrSessionNotFound
	}
	observability.RecordSessionLookup("by_id", "found")
	return session, nil
}

func (s *SessionStore) FindByUsername(username string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.Username == username {
			if session.Expired(s.now()) {
				observability.RecordSessionLookup("by_username", "not_found")
				return domain.Session{}, ErrSessionNotFound
			}
			observability.RecordSessionLookup("by_username", "found")
			return session, nil
		}
	}
	observability.RecordSessionLookup("by_username", "not_found")
	return domain.Session{}, ErrSessionNotFound
}

// Remove deletes a session. Removing an absent id is a no-op.
func (s *SessionStore) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// SetActive flips the session's active flag, e.g. after an explicit logout.
// It reports whether the session was present.
func (s *SessionStore) SetActive(sessionID string, active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	session.Active = active
	s.sessions[sessionID] = session
	return true
}

// RemoveExpired evicts every session past its expiry and returns the evicted
// ids. This is the sweeper's only mutation.
func (s *SessionStore) RemoveExpired() []string {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Snapshot returns a copy of every session, expired or not. Intended for the
// admin tooling, which wants to show both states.
func (s *SessionStore) Snapshot() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
