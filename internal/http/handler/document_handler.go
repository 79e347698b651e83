package handler

import (
	"errors"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/http/middleware"
	"github.com/legalsandbox/research-backend/internal/http/response"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

type documentInfo struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	SizeBytes  int64   `json:"size_bytes"`
	SizeMB     float64 `json:"size_mb"`
	UploadTime string  `json:"upload_time"`
	FileType   string  `json:"file_type"`
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "multipart field 'file' is required", nil)
		return
	}
	defer file.Close()

	doc, err := h.documents.Upload(r.Context(), sessionID, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTypeNotAllowed):
			response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "file type not allowed", nil)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Error(w, r, http.StatusBadRequest, response.CodeValidation, "file exceeds maximum allowed size", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		}
		return
	}

	observability.Audit(r, "documents.upload", "session_id", sessionID, "document_id", doc.ID, "bytes", doc.SizeBytes)
	response.JSON(w, r, http.StatusCreated, toDocumentInfo(*doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}
	docs, err := h.documents.List(r.Context(), sessionID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}
	out := make([]documentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentInfo(d))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, r)
		return
	}
	documentID := chi.URLParam(r, "document_id")
	if err := h.documents.Delete(r.Context(), documentID, sessionID); err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "document not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, response.CodeInternal, "internal error", nil)
		return
	}
	observability.Audit(r, "documents.delete", "session_id", sessionID, "document_id", documentID)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

func toDocumentInfo(d domain.Document) documentInfo {
	return documentInfo{
		DocumentID: d.ID,
		Filename:   d.Filename,
		SizeBytes:  d.SizeBytes,
		SizeMB:     math.Round(float64(d.SizeBytes)/(1<<20)*100) / 100,
		UploadTime: d.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		FileType:   d.FileType,
	}
}
