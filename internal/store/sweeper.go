package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/legalsandbox/research-backend/internal/observability"
)

// Cleaner receives the ids the sweeper evicted so associated ephemeral data
// (documents, conversations) can be dropped alongside the session record.
type Cleaner interface {
	ClearSession(ctx context.Context, sessionID string) error
}

// Sweeper periodically evicts expired sessions from the store. Eviction is
// advisory cleanup: the hard guarantee of "no data after expiry" comes from
// the container teardown, so a failed sweep is logged and retried on the next
// tick rather than crashing the process.
type Sweeper struct {
	store    *SessionStore
	cleaner  Cleaner
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(store *SessionStore, cleaner Cleaner, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, cleaner: cleaner, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("session sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep cycle. Exposed so callers can force a
// cycle outside the ticker cadence.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	return s.sweepOnce(ctx)
}

func (s *Sweeper) sweepOnce(ctx context.Context) (evictedCount int) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordSweepCycle("panic", evictedCount)
			s.logger.Error("session sweep panicked", "panic", r)
		}
	}()

	evicted := s.store.RemoveExpired()
	evictedCount = len(evicted)
	for _, id := range evicted {
		if s.cleaner == nil {
			continue
		}
		if err := s.cleaner.ClearSession(ctx, id); err != nil {
			// Keep going: the remaining evictions are independent.
			s.logger.Warn("clear session data after eviction", "session_id", id, "error", err)
		}
	}
	if evictedCount > 0 {
		s.logger.Info("evicted expired sessions", "count", evictedCount, "remaining", s.store.Len())
	}
	observability.RecordSweepCycle("ok", evictedCount)
	return evictedCount
}
