package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/llm"
	"github.com/legalsandbox/research-backend/internal/repository"
)

var ErrConversationNotFound = repository.ErrConversationNotFound

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatReply struct {
	Response       string
	ConversationID string
	Message        *domain.Message
}

// ChatService threads conversations through the ephemeral store and forwards
// the full history to the LLM backend on every turn.
type ChatService struct {
	repo repository.EphemeralRepository
	llm  llm.Client
}

func NewChatService(repo repository.EphemeralRepository, client llm.Client) *ChatService {
	return &ChatService{repo: repo, llm: client}
}

// Send appends the user message, queries the model and appends the reply.
// An empty conversationID starts a new conversation. A conversationID that
// does not belong to the session is treated as unknown and replaced, so a
// guessed id can neither read nor extend another session's history.
func (s *ChatService) Send(ctx context.Context, sessionID, conversationID, message string, documentIDs []string) (*ChatReply, error) {
	var conv *domain.Conversation
	if conversationID != "" {
		existing, err := s.repo.GetConversation(ctx, conversationID, sessionID)
		switch {
		case err == nil:
			conv = existing
		case errors.Is(err, repository.ErrConversationNotFound):
			// fall through to a fresh conversation
		default:
			return nil, err
		}
	}
	if conv == nil {
		created, err := s.repo.CreateConversation(ctx, uuid.NewString(), sessionID)
		if err != nil {
			return nil, err
		}
		conv = created
	}

	if _, err := s.repo.AddMessage(ctx, conv.ID, RoleUser, message, documentIDs); err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(conv.Messages)+1)
	for _, m := range conv.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	history = append(history, llm.Message{Role: RoleUser, Content: message})

	answer, err := s.llm.Chat(ctx, history)
	if err != nil {
		return nil, err
	}

	reply, err := s.repo.AddMessage(ctx, conv.ID, RoleAssistant, answer, nil)
	if err != nil {
		return nil, err
	}
	return &ChatReply{Response: answer, ConversationID: conv.ID, Message: reply}, nil
}

func (s *ChatService) History(ctx context.Context, sessionID string) ([]domain.Conversation, error) {
	return s.repo.ListConversations(ctx, sessionID)
}

func (s *ChatService) DeleteConversation(ctx context.Context, conversationID, sessionID string) error {
	deleted, err := s.repo.DeleteConversation(ctx, conversationID, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrConversationNotFound
	}
	return nil
}
