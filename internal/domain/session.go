package domain

import "time"

// Session is one provisioned researcher credential. Records are created by the
// provisioning tool, loaded into memory at boot, and removed on logout or expiry;
// the server never writes them back to disk.
type Session struct {
	SessionID    string    `json:"session_id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	TTLHours     int       `json:"ttl_hours"`
	Active       bool      `json:"active"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TimeRemaining returns the duration until expiry, clamped at zero.
func (s Session) TimeRemaining(now time.Time) time.Duration {
	remaining := s.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
