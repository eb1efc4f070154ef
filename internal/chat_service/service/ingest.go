package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/chat_service/publisher"
	"ragchat/internal/models"
	"ragchat/internal/rag/schema"
	"ragchat/pkg/logger"
)

// IngestDocument runs the upload-to-index pipeline: validate, stage to a
// temp file, extract pages, chunk, embed in one batch, and index. The temp
// file is removed on every path. Returns the new document id.
func (s *Service) IngestDocument(ctx context.Context, userID, filename string, data []byte) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", &models.ValidationError{Field: "filename", Reason: "only PDF files are supported"}
	}
	if int64(len(data)) > s.upload.MaxFileSize {
		return "", &models.ValidationError{Field: "file", Reason: fmt.Sprintf("file exceeds maximum size of %d bytes", s.upload.MaxFileSize)}
	}
	if len(data) == 0 {
		return "", &models.ValidationError{Field: "file", Reason: "file is empty"}
	}

	documentID := uuid.New().String()
	log := s.log.WithFields(map[string]interface{}{"document_id": documentID, "user_id": userID})

	s.registerUpload(ctx, log, &models.DocumentUpload{
		DocumentID: documentID,
		UserID:     userID,
		Filename:   filename,
		FileSize:   int64(len(data)),
		Status:     models.UploadStatusReceived,
		UploadedAt: time.Now().UTC(),
	})

	count, err := s.indexDocument(ctx, userID, documentID, filename, data)
	if err != nil {
		s.failUpload(ctx, log, documentID, err)
		return "", err
	}

	s.finishUpload(ctx, log, documentID, count)
	s.archiveUpload(ctx, log, userID, documentID, data)
	s.events.Publish(ctx, publisher.Event{
		Type:       publisher.EventDocumentIndexed,
		UserID:     userID,
		DocumentID: documentID,
		Count:      count,
	})

	log.WithField("passages", count).Info("document indexed")
	return documentID, nil
}

// indexDocument stages the bytes, extracts, chunks, embeds, and writes the
// passages. It returns the passage count.
func (s *Service) indexDocument(ctx context.Context, userID, documentID, filename string, data []byte) (int, error) {
	if err := os.MkdirAll(s.upload.TempDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(s.upload.TempDir, fmt.Sprintf("%s_%s.pdf", userID, documentID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, fmt.Errorf("failed to stage upload: %w", err)
	}
	defer os.Remove(path)

	pages, err := s.loader.Load(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to extract document text: %w", err)
	}

	uploadedAt := time.Now().UTC().Format(time.RFC3339)
	for _, page := range pages {
		page.Metadata[schema.MetadataKeyFileName] = filename
		page.Metadata[schema.MetadataKeyDocumentID] = documentID
		page.Metadata[schema.MetadataKeyUserID] = userID
		page.Metadata[schema.MetadataKeyUploadedAt] = uploadedAt
	}

	chunks, err := s.splitter.Split(ctx, pages)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return 0, &models.ValidationError{Field: "file", Reason: "document produced no indexable text"}
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, &models.EmbeddingError{
			Err: fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(vectors)),
		}
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := s.store.AddPassages(ctx, userID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *Service) registerUpload(ctx context.Context, log *logger.Logger, upload *models.DocumentUpload) {
	if s.uploads == nil {
		return
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		log.WithError(err).Warn("failed to register upload")
	}
}

func (s *Service) finishUpload(ctx context.Context, log *logger.Logger, documentID string, count int) {
	if s.uploads == nil {
		return
	}
	if err := s.uploads.MarkProcessed(ctx, documentID, count); err != nil {
		log.WithError(err).Warn("failed to mark upload processed")
	}
}

func (s *Service) failUpload(ctx context.Context, log *logger.Logger, documentID string, cause error) {
	if s.uploads == nil {
		return
	}
	if err := s.uploads.MarkFailed(ctx, documentID, cause.Error()); err != nil {
		log.WithError(err).Warn("failed to mark upload failed")
	}
}

func (s *Service) archiveUpload(ctx context.Context, log *logger.Logger, userID, documentID string, data []byte) {
	if s.archive == nil {
		return
	}
	objectName := fmt.Sprintf("%s/%s.pdf", userID, documentID)
	if err := s.archive.Archive(ctx, objectName, data); err != nil {
		log.WithError(err).Warn("failed to archive upload")
	}
}
