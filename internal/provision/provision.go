// Package provision generates researcher credentials and writes them to the
// session registry consumed by the server at boot.
package provision

import (
	"errors"
	"time"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/registry"
	"github.com/legalsandbox/research-backend/internal/security"
)

const passwordLength = 16

// Credential pairs a generated session with its cleartext password. The
// password exists only here; the registry stores the bcrypt hash.
type Credential struct {
	Username  string
	Password  string
	SessionID string
	ExpiresAt time.Time
}

type Options struct {
	RegistryPath string
	Count        int
	TTL          time.Duration
	// Merge appends to an existing registry instead of replacing it.
	Merge bool
}

// Run generates Options.Count sessions and persists the registry. The
// returned credentials are for one-time hand-off to researchers.
func Run(opts Options) ([]Credential, error) {
	if opts.Count < 1 {
		return nil, errors.New("session count must be at least 1")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}

	var sessions []domain.Session
	if opts.Merge {
		existing, err := registry.Load(opts.RegistryPath)
		switch {
		case err == nil:
			sessions = existing
		case errors.Is(err, registry.ErrNotFound):
			// nothing to merge with
		default:
			return nil, err
		}
	}

	now := time.Now().UTC()
	expiresAt := now.Add(opts.TTL)
	ttlHours := int(opts.TTL / time.Hour)

	creds := make([]Credential, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		password, err := security.NewPassword(passwordLength)
		if err != nil {
			return nil, err
		}
		hash, err := security.HashPassword(password)
		if err != nil {
			return nil, err
		}
		sessionID, err := security.NewSessionID()
		if err != nil {
			return nil, err
		}
		username, err := security.NewUsername()
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, domain.Session{
			SessionID:    sessionID,
			Username:     username,
			PasswordHash: hash,
			CreatedAt:    now,
			ExpiresAt:    expiresAt,
			TTLHours:     ttlHours,
			Active:       true,
		})
		creds = append(creds, Credential{
			Username:  username,
			Password:  password,
			SessionID: sessionID,
			ExpiresAt: expiresAt,
		})
	}

	if err := registry.Write(opts.RegistryPath, sessions); err != nil {
		return nil, err
	}
	return creds, nil
}
