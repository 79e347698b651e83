package handler

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/legalsandbox/research-backend/internal/http/middleware"
	"github.com/legalsandbox/research-backend/internal/http/response"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/service"
	"github.com/legalsandbox/research-backend/internal/store"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int64  `json:"expires_in"`
	SessionID       string `json:"session_id"`
	ExpiresAt       string `json:"expires_at"`
	SessionTTLHours int    `json:"session_ttl_hours"`
}

type sessionInfoResponse struct {
	Username             string  `json:"username"`
	TimeRemainingHours   float64 `json:"time_remaining_hours"`
	TimeRemainingMinutes int     `json:"time_remaining_minutes"`
	SessionActive        bool    `json:"session_active"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "malformed request body", nil)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "username and password are required", nil)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// Every failure kind maps to the same payload.
		observability.Audit(r, "auth.login.rejected", "username", req.Username)
		response.Unauthorized(w, r)
		return
	}

	observability.Audit(r, "auth.login.accepted", "username", req.Username, "session_id", result.SessionID)
	response.JSON(w, r, http.StatusOK, loginResponse{
		AccessToken:     result.AccessToken,
		TokenType:       "bearer",
		ExpiresIn:       result.ExpiresIn,
		SessionID:       result.SessionID,
		ExpiresAt:       result.ExpiresAt.UTC().Format(time.RFC3339),
		SessionTTLHours: result.TTLHours,
	})
}

func (h *AuthHandler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}
	status, err := h.auth.Status(sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			response.Unauthorized(w, r)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}

	minutes := int(status.TimeRemaining.Minutes())
	response.JSON(w, r, http.StatusOK, sessionInfoResponse{
		Username:             status.Username,
		TimeRemainingHours:   math.Round(status.TimeRemaining.Hours()*100) / 100,
		TimeRemainingMinutes: minutes,
		SessionActive:        status.Active,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}
	if err := h.auth.Logout(r.Context(), sessionID); err != nil {
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}
	observability.Audit(r, "auth.logout", "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
