package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/legalsandbox/research-backend/internal/domain"
	"github.com/legalsandbox/research-backend/internal/observability"
	"github.com/legalsandbox/research-backend/internal/repository"
)

var (
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrFileTooLarge       = errors.New("file exceeds maximum size")
	ErrDocumentNotFound   = repository.ErrDocumentNotFound
)

// DocumentService stores uploaded files on the tmpfs mount and their metadata
// in the ephemeral repository, always scoped by session id.
type DocumentService struct {
	repo         repository.EphemeralRepository
	uploadDir    string
	maxBytes     int64
	allowedTypes map[string]struct{}
}

func NewDocumentService(repo repository.EphemeralRepository, uploadDir string, maxBytes int64, allowedTypes []string) *DocumentService {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &DocumentService{
		repo:         repo,
		uploadDir:    uploadDir,
		maxBytes:     maxBytes,
		allowedTypes: allowed,
	}
}

// Upload validates the file, writes it to the upload directory and records
// its metadata. The reader is not read past maxBytes+1.
func (s *DocumentService) Upload(ctx context.Context, sessionID, filename string, content io.Reader) (*domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := s.allowedTypes[ext]; !ok {
		observability.RecordDocumentUpload("rejected_type")
		return nil, fmt.Errorf("%w: %s", ErrFileTypeNotAllowed, ext)
	}

	if err := os.MkdirAll(s.uploadDir, 0o700); err != nil {
		observability.RecordDocumentUpload("error")
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	docID := uuid.NewString()
	// filepath.Base strips any path components a hostile client smuggled
	// into the filename.
	path := filepath.Join(s.uploadDir, docID+"_"+filepath.Base(filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		observability.RecordDocumentUpload("error")
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(content, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		observability.RecordDocumentUpload("error")
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if written > s.maxBytes {
		_ = os.Remove(path)
		observability.RecordDocumentUpload("rejected_size")
		return nil, fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, s.maxBytes)
	}

	doc := &domain.Document{
		ID:         docID,
		SessionID:  sessionID,
		Filename:   filepath.Base(filename),
		FilePath:   path,
		SizeBytes:  written,
		FileType:   ext,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.repo.AddDocument(ctx, doc); err != nil {
		_ = os.Remove(path)
		observability.RecordDocumentUpload("error")
		return nil, err
	}
	observability.RecordDocumentUpload("success")
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, sessionID string) ([]domain.Document, error) {
	return s.repo.ListDocuments(ctx, sessionID)
}

// Delete removes both the stored file and the metadata record. A missing
// file on disk is tolerated: the record is the source of truth for ownership.
func (s *DocumentService) Delete(ctx context.Context, documentID, sessionID string) error {
	doc, err := s.repo.GetDocument(ctx, documentID, sessionID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteDocument(ctx, documentID, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrDocumentNotFound
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}
