package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/http/middleware"
	"github.com/legalsandbox/research-backend/internal/http/response"
	"github.com/legalsandbox/research-backend/internal/llm"
	"github.com/legalsandbox/research-backend/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

type chatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type conversationHistory struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []chatMessage `json:"messages"`
	CreatedAt      string        `json:"created_at"`
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}

	var req chatRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "malformed request body", nil)
		return
	}
	if req.Message == "" {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "message is required", nil)
		return
	}

	reply, err := h.chat.Send(r.Context(), sessionID, req.ConversationID, req.Message, req.DocumentIDs)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			response.Error(w, r, http.StatusServiceUnavailable, response.CodeLLMUnavailable, "LLM service unavailable", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}

	response.JSON(w, r, http.StatusOK, chatResponse{
		Response:       reply.Response,
		ConversationID: reply.ConversationID,
		Timestamp:      reply.Message.Timestamp.Format(time.RFC3339),
	})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}
	convs, err := h.chat.History(r.Context(), sessionID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}
	out := make([]conversationHistory, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationHistory(c))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}
	conversationID := chi.URLParam(r, "conversation_id")
	if err := h.chat.DeleteConversation(r.Context(), conversationID, sessionID); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "conversation not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Conversation cleared successfully"})
}

func toConversationHistory(c domain.Conversation) conversationHistory {
	messages := make([]chatMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		messages = append(messages, chatMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	return conversationHistory{
		ConversationID: c.ID,
		Messages:       messages,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
}
