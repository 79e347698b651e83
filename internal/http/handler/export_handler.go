package handler

import (
	"errors"
	"net/http"

	"github.com/legalsandbox/research-backend/internal/http/middleware"
	"github.com/legalsandbox/research-backend/internal/http/response"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/service"
	"github.com/legalsandbox/research-backend/internal/store"
)

type ExportHandler struct {
	export *service.ExportService
}

func NewExportHandler(export *service.ExportService) *ExportHandler {
	return &ExportHandler{export: export}
}

// ExportAll returns every document record and conversation owned by the
// caller's session in a single bundle.
func (h *ExportHandler) ExportAll(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}
	bundle, err := h.export.ExportAll(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			response.Unauthorized(w, r)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}
	observability.Audit(r, "session.export", "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, bundle)
}
