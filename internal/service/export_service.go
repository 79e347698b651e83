package service

import (
	"context"
	"time"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/repository"
	"github.com/legalsandbox/research-backend/internal/store"
)

type ExportBundle struct {
	SessionInfo     ExportSessionInfo     `json:"session_info"`
	Documents       []domain.Document     `json:"documents"`
	Conversations   []domain.Conversation `json:"conversations"`
	ExportTimestamp time.Time             `json:"export_timestamp"`
	SessionHours    float64               `json:"session_duration_hours"`
}

type ExportSessionInfo struct {
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService assembles everything a session owns into one JSON-friendly
// bundle so a researcher can take their work out before the container dies.
type ExportService struct {
	sessions *store.SessionStore
	repo     repository.EphemeralRepository
	now      func() time.Time
}

func NewExportService(sessions *store.SessionStore, repo repository.EphemeralRepository) *ExportService {
	return &ExportService{sessions: sessions, repo: repo, now: time.Now}
}

func (s *ExportService) ExportAll(ctx context.Context, sessionID string) (*ExportBundle, error) {
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	convs, err := s.repo.ListConversations(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return &ExportBundle{
		SessionInfo: ExportSessionInfo{
			SessionID: session.SessionID,
			Username:  session.Username,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
		},
		Documents:       docs,
		Conversations:   convs,
		ExportTimestamp: now,
		SessionHours:    now.Sub(session.CreatedAt).Hours(),
	}, nil
}
