// Package vectorstore defines the storage contract shared by the Milvus and
// OpenSearch realizations. Every query is scoped to a single user inside the
// store itself; callers never receive another tenant's data to filter out.
package vectorstore

import (
	"context"

	"ragchat/internal/models"
	"ragchat/internal/rag/schema"
)

// Store is the persistence boundary for passages and chat turns.
type Store interface {
	// AddPassages indexes embedded document chunks for a user. Documents
	// must already carry embeddings of the store's configured dimension.
	AddPassages(ctx context.Context, userID string, docs []*schema.Document) error

	// SimilaritySearch returns the topK passages closest to the query
	// vector among the user's own passages, scores normalized to [0, 1].
	SimilaritySearch(ctx context.Context, userID string, vector []float32, topK int) ([]models.PassageHit, error)

	// ListDocuments returns the user's indexed passages in previewable form.
	ListDocuments(ctx context.Context, userID string) ([]models.DocumentPreview, error)

	// AddTurn appends one finished exchange to the turn log. embedding is
	// the vector of the user message.
	AddTurn(ctx context.Context, turn models.Turn, embedding []float32) error

	// GetTurns returns all turns of one chat in ascending creation order,
	// ties broken by turn id.
	GetTurns(ctx context.Context, userID, chatID string) ([]models.Turn, error)

	// ListSessions folds the user's turns into per-chat summaries, ordered
	// by last activity, most recent first.
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)

	// DeleteSession removes every turn of one chat. It returns
	// *models.NotFoundError when the chat has no turns owned by the user.
	DeleteSession(ctx context.Context, userID, chatID string) error

	// Health reports whether the backing store is reachable.
	Health(ctx context.Context) error
}
