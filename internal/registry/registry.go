package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/legalsandbox/research-backend/internal/domain"
)

// File is the on-disk shape produced by the provisioning tool. The server
// treats it as read-only input.
type File struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Sessions    []domain.Session `json:"sessions"`
}

var ErrNotFound = errors.New("session registry not found")

// Load parses the session registry. Any I/O or decode failure is returned to
// the caller; whether a missing registry is fatal depends on the deployment
// profile and is decided there, not here.
func Load(path string) ([]domain.Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read session registry: %w", err)
	}

	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse session registry %s: %w", path, err)
	}

	for i, s := range file.Sessions {
		if err := validateSession(s); err != nil {
			return nil, fmt.Errorf("parse session registry %s: entry %d: %w", path, i, err)
		}
	}
	return file.Sessions, nil
}

// Write persists a registry file. Used only by the provisioning tool; the
// running server never calls this.
func Write(path string, sessions []domain.Session) error {
	file := File{GeneratedAt: time.Now().UTC(), Sessions: sessions}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session registry: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write session registry: %w", err)
	}
	return nil
}

func validateSession(s domain.Session) error {
	switch {
	case s.SessionID == "":
		return errors.New("missing session_id")
	case s.Username == "":
		return errors.New("missing username")
	case s.PasswordHash == "":
		return errors.New("missing password_hash")
	case s.ExpiresAt.IsZero():
		return errors.New("missing expires_at")
	}
	return nil
}
