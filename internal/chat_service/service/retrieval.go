package service

import (
	"context"

	"ragchat/internal/models"
)

// documentPreviewLimit bounds the content echoed by the document listing.
const documentPreviewLimit = 500

// SearchDocuments runs an explicit similarity search over the user's
// passages. k falls back to the configured search default and is capped.
func (s *Service) SearchDocuments(ctx context.Context, userID, query string, k int) ([]models.PassageHit, error) {
	if query == "" {
		return nil, &models.ValidationError{Field: "query", Reason: "query must not be empty"}
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.SimilaritySearch(ctx, userID, vector, s.clampK(k, s.retrieval.SearchTopK))
}

// ListDocuments returns the user's indexed passages as previews, content
// truncated with a marker for anything longer.
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]models.DocumentPreview, error) {
	previews, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range previews {
		full := previews[i].Content
		previews[i].Content = previewText(full, documentPreviewLimit)
		previews[i].FullContentAvailable = len([]rune(full)) > documentPreviewLimit
	}
	return previews, nil
}

// ListUploads returns the user's upload registry records, newest first.
func (s *Service) ListUploads(ctx context.Context, userID string) ([]*models.DocumentUpload, error) {
	if s.uploads == nil {
		return nil, nil
	}
	return s.uploads.GetByUser(ctx, userID)
}
