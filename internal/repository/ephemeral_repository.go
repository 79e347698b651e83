package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/observability"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDocumentNotFound     = errors.New("document not found")
)

// EphemeralRepository stores per-session research data: conversations,
// messages and document metadata. The default backend is an in-memory SQLite
// database, so the data shares the container's lifetime by construction.
type EphemeralRepository interface {
	CreateConversation(ctx context.Context, conversationID, sessionID string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, conversationID, sessionID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, sessionID string) ([]domain.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID, sessionID string) (bool, error)
	AddMessage(ctx context.Context, conversationID, role, content string, documentIDs []string) (*domain.Message, error)

	AddDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, documentID, sessionID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, sessionID string) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, documentID, sessionID string) (bool, error)

	ClearSession(ctx context.Context, sessionID string) error
}

// Open connects the ephemeral store. An empty databaseURL selects in-memory
// SQLite (the container profile); a postgres URL is accepted for local
// development against a real database.
func Open(databaseURL string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if databaseURL == "" {
		dialector = sqlite.Open("file::memory:?cache=shared")
	} else {
		dialector = postgres.Open(databaseURL)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ephemeral database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}, &domain.Document{}); err != nil {
		return nil, fmt.Errorf("migrate ephemeral schema: %w", err)
	}
	return db, nil
}

type GormEphemeralRepository struct{ db *gorm.DB }

func NewEphemeralRepository(db *gorm.DB) EphemeralRepository {
	return &GormEphemeralRepository{db: db}
}

func (r *GormEphemeralRepository) CreateConversation(ctx context.Context, conversationID, sessionID string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:        conversationID,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		observability.RecordRepositoryOperation("conversation", "create", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation("conversation", "create", "success")
	return conv, nil
}

func (r *GormEphemeralRepository) GetConversation(ctx context.Context, conversationID, sessionID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("id = ? AND session_id = ?", conversationID, sessionID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation("conversation", "get", "not_found")
			return nil, ErrConversationNotFound
		}
		observability.RecordRepositoryOperation("conversation", "get", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation("conversation", "get", "success")
	return &conv, nil
}

func (r *GormEphemeralRepository) ListConversations(ctx context.Context, sessionID string) ([]domain.Conversation, error) {
	var convs []domain.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.id ASC") }).
		Where("session_id = ?", sessionID).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		observability.RecordRepositoryOperation("conversation", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation("conversation", "list", "success")
	return convs, nil
}

func (r *GormEphemeralRepository) DeleteConversation(ctx context.Context, conversationID, sessionID string) (bool, error) {
	return r.deleteScoped(ctx, "conversation", &domain.Conversation{}, conversationID, sessionID, func(tx *gorm.DB) error {
		return tx.Where("conversation_id = ?", conversationID).Delete(&domain.Message{}).Error
	})
}

func (r *GormEphemeralRepository) AddMessage(ctx context.Context, conversationID, role, content string, documentIDs []string) (*domain.Message, error) {
	msg := &domain.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now().UTC(),
		DocumentIDs:    encodeDocumentIDs(documentIDs),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", msg.Timestamp).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation("message", "create", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation("message", "create", "success")
	return msg, nil
}

func (r *GormEphemeralRepository) AddDocument(ctx context.Context, doc *domain.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		observability.RecordRepositoryOperation("document", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation("document", "create", "success")
	return nil
}

func (r *GormEphemeralRepository) GetDocument(ctx context.Context, documentID, sessionID string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).
		Where("id = ? AND session_id = ?", documentID, sessionID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation("document", "get", "not_found")
			return nil, ErrDocumentNotFound
		}
		observability.RecordRepositoryOperation("document", "get", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation("document", "get", "success")
	return &doc, nil
}

func (r *GormEphemeralRepository) ListDocuments(ctx context.Context, sessionID string) ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("uploaded_at DESC").
		Find(&docs).Error
	if err != nil {
		observability.RecordRepositoryOperation("document", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation("document", "list", "success")
	return docs, nil
}

func (r *GormEphemeralRepository) DeleteDocument(ctx context.Context, documentID, sessionID string) (bool, error) {
	return r.deleteScoped(ctx, "document", &domain.Document{}, documentID, sessionID, nil)
}

func (r *GormEphemeralRepository) ClearSession(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var convIDs []string
		if err := tx.Model(&domain.Conversation{}).
			Where("session_id = ?", sessionID).
			Pluck("id", &convIDs).Error; err != nil {
			return err
		}
		if len(convIDs) > 0 {
			if err := tx.Where("conversation_id IN ?", convIDs).Delete(&domain.Message{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&domain.Conversation{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", sessionID).Delete(&domain.Document{}).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation("session_data", "clear", "error")
		return err
	}
	observability.RecordRepositoryOperation("session_data", "clear", "success")
	return nil
}

// deleteScoped removes an entity only when it belongs to the session, so a
// caller can never delete another session's data by guessing ids.
func (r *GormEphemeralRepository) deleteScoped(ctx context.Context, entity string, model any, id, sessionID string, cascade func(tx *gorm.DB) error) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND session_id = ?", id, sessionID).Delete(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		if cascade != nil {
			return cascade(tx)
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(entity, "delete", "error")
		return false, err
	}
	if !deleted {
		observability.RecordRepositoryOperation(entity, "delete", "not_found")
		return false, nil
	}
	observability.RecordRepositoryOperation(entity, "delete", "success")
	return true, nil
}

func encodeDocumentIDs(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return ""
	}
	return string(raw)
}

// DecodeDocumentIDs reverses encodeDocumentIDs; malformed payloads decode to
// nil rather than failing a read path.
func DecodeDocumentIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}
