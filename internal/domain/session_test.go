package domain

import (
	"testing"
	"time"
)

func TestSessionExpired(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{SessionID: "sess-1", ExpiresAt: expiry}

	if s.Expired(expiry.Add(-time.Nanosecond)) {
		t.Fatal("session must be live just before expires_at")
	}
	if !s.Expired(expiry) {
		t.Fatal("session must be expired exactly at expires_at")
	}
	if !s.Expired(expiry.Add(time.Hour)) {
		t.Fatal("session must stay expired after expires_at")
	}
}

func TestSessionTimeRemaining(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{SessionID: "sess-1", ExpiresAt: expiry}

	if got := s.TimeRemaining(expiry.Add(-2 * time.Hour)); got != 2*time.Hour {
		t.Fatalf("expected 2h remaining, got %v", got)
	}
	if got := s.TimeRemaining(expiry.Add(time.Hour)); got != 0 {
		t.Fatalf("remaining time must clamp at zero, got %v", got)
	}
}
