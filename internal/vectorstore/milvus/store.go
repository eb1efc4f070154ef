// Package milvus realizes the vector store contract on a Milvus cluster.
// Passages and turns live in separate collections; every expression carries
// the caller's user id so tenancy is enforced inside Milvus itself.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"ragchat/internal/config"
	db "ragchat/internal/database/milvus"
	"ragchat/internal/models"
	"ragchat/internal/rag/schema"
	"ragchat/internal/vectorstore"
	"ragchat/pkg/logger"
)

const (
	fieldID         = "id"
	fieldUserID     = "user_id"
	fieldDocumentID = "document_id"
	fieldContent    = "content"
	fieldMetadata   = "metadata"
	fieldEmbedding  = "embedding"
	fieldChatID     = "chat_id"
	fieldMessage    = "message"
	fieldResponse   = "response"
	fieldSources    = "sources"
	fieldCreatedAt  = "created_at"
)

// Store adapts the Milvus client to the vector store contract.
type Store struct {
	db  *db.Client
	cfg *config.MilvusConfig
	log *logger.Logger
}

// NewStore creates a Milvus-backed store from an initialized client.
func NewStore(dbClient *db.Client, log *logger.Logger) (*Store, error) {
	if dbClient == nil || dbClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &Store{db: dbClient, cfg: dbClient.Config, log: log}, nil
}

// escape makes a string safe inside a double-quoted Milvus expression.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func userExpr(userID string) string {
	return fmt.Sprintf(`%s == "%s"`, fieldUserID, escape(userID))
}

func chatExpr(userID, chatID string) string {
	return fmt.Sprintf(`%s and %s == "%s"`, userExpr(userID), fieldChatID, escape(chatID))
}

// AddPassages indexes embedded chunks into the passage collection. The user
// id column always comes from the authenticated caller, not the metadata.
func (s *Store) AddPassages(ctx context.Context, userID string, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	userIDs := make([]string, len(docs))
	documentIDs := make([]string, len(docs))
	contents := make([]string, len(docs))
	metadatas := make([][]byte, len(docs))
	embeddings := make([][]float32, len(docs))

	dim := 0
	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			return &models.IndexingError{FailedCount: len(docs), Err: fmt.Errorf("document %s has no embedding", doc.ID)}
		}
		ids[i] = doc.ID
		userIDs[i] = userID
		documentIDs[i] = doc.Metadata[schema.MetadataKeyDocumentID]
		contents[i] = truncateRunes(doc.Text, s.cfg.MaxContentLength)
		embeddings[i] = doc.Embedding
		dim = len(doc.Embedding)

		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return &models.IndexingError{FailedCount: len(docs), Err: fmt.Errorf("failed to encode metadata: %w", err)}
		}
		metadatas[i] = meta
	}

	_, err := s.db.Client.Insert(ctx, s.cfg.PassageCollection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldUserID, userIDs),
		entity.NewColumnVarChar(fieldDocumentID, documentIDs),
		entity.NewColumnVarChar(fieldContent, contents),
		entity.NewColumnJSONBytes(fieldMetadata, metadatas),
		entity.NewColumnFloatVector(fieldEmbedding, dim, embeddings),
	)
	if err != nil {
		return &models.IndexingError{FailedCount: len(docs), Err: err}
	}
	s.flush(ctx, s.cfg.PassageCollection)

	s.log.WithField("count", len(docs)).Info("indexed passages")
	return nil
}

// flush seals the inserted rows so follow-up queries can see them. The rows
// are already accepted, so a flush failure only delays visibility.
func (s *Store) flush(ctx context.Context, collection string) {
	if err := s.db.Flush(ctx, collection); err != nil {
		s.log.WithError(err).Warn("failed to flush collection")
	}
}

// SimilaritySearch runs a kNN search restricted to the user's passages.
func (s *Store) SimilaritySearch(ctx context.Context, userID string, vector []float32, topK int) ([]models.PassageHit, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(s.cfg.SearchNprobe)
	if err != nil {
		return nil, &models.RetrievalError{Op: "search", Err: err}
	}

	results, err := s.db.Client.Search(
		ctx, s.cfg.PassageCollection, nil, userExpr(userID),
		[]string{fieldContent, fieldMetadata},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding, entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, &models.RetrievalError{Op: "search", Err: err}
	}

	var hits []models.PassageHit
	for _, res := range results {
		contents, metadatas := stringColumn(res.Fields, fieldContent), jsonColumn(res.Fields, fieldMetadata)
		for i := 0; i < res.ResultCount; i++ {
			hit := models.PassageHit{Score: normalizeScore(float64(res.Scores[i]))}
			if i < len(contents) {
				hit.Content = contents[i]
			}
			if i < len(metadatas) {
				hit.Metadata = decodeMetadata(metadatas[i])
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// ListDocuments returns the user's indexed passages with full content.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]models.DocumentPreview, error) {
	rs, err := s.db.Client.Query(ctx, s.cfg.PassageCollection, nil, userExpr(userID),
		[]string{fieldID, fieldContent, fieldMetadata},
		client.WithLimit(int64(s.cfg.DocumentListLimit)),
	)
	if err != nil {
		return nil, &models.RetrievalError{Op: "list_documents", Err: err}
	}

	ids := stringResult(rs, fieldID)
	contents := stringResult(rs, fieldContent)
	metadatas := jsonResult(rs, fieldMetadata)

	previews := make([]models.DocumentPreview, 0, len(ids))
	for i := range ids {
		p := models.DocumentPreview{ID: ids[i]}
		if i < len(contents) {
			p.Content = contents[i]
		}
		if i < len(metadatas) {
			p.Metadata = decodeMetadata(metadatas[i])
			if ts, err := time.Parse(time.RFC3339, p.Metadata[schema.MetadataKeyUploadedAt]); err == nil {
				p.IndexedAt = ts
			}
		}
		previews = append(previews, p)
	}
	return previews, nil
}

// AddTurn appends one exchange to the turn collection.
func (s *Store) AddTurn(ctx context.Context, turn models.Turn, embedding []float32) error {
	sources, err := json.Marshal(turn.Sources)
	if err != nil {
		return &models.IndexingError{FailedCount: 1, Err: fmt.Errorf("failed to encode sources: %w", err)}
	}

	_, err = s.db.Client.Insert(ctx, s.cfg.TurnCollection, "",
		entity.NewColumnVarChar(fieldID, []string{turn.ID}),
		entity.NewColumnVarChar(fieldChatID, []string{turn.ChatID}),
		entity.NewColumnVarChar(fieldUserID, []string{turn.UserID}),
		entity.NewColumnVarChar(fieldMessage, []string{truncateRunes(turn.Message, s.cfg.MaxContentLength)}),
		entity.NewColumnVarChar(fieldResponse, []string{truncateRunes(turn.Response, s.cfg.MaxContentLength)}),
		entity.NewColumnJSONBytes(fieldSources, [][]byte{sources}),
		entity.NewColumnInt64(fieldCreatedAt, []int64{turn.CreatedAt.UnixMilli()}),
		entity.NewColumnFloatVector(fieldEmbedding, len(embedding), [][]float32{embedding}),
	)
	if err != nil {
		return &models.IndexingError{FailedCount: 1, Err: err}
	}
	s.flush(ctx, s.cfg.TurnCollection)
	return nil
}

// GetTurns returns one chat's turns in ascending creation order.
func (s *Store) GetTurns(ctx context.Context, userID, chatID string) ([]models.Turn, error) {
	rs, err := s.db.Client.Query(ctx, s.cfg.TurnCollection, nil, chatExpr(userID, chatID),
		[]string{fieldID, fieldChatID, fieldUserID, fieldMessage, fieldResponse, fieldSources, fieldCreatedAt},
		client.WithLimit(int64(s.cfg.TurnHistoryLimit)),
	)
	if err != nil {
		return nil, &models.RetrievalError{Op: "get_turns", Err: err}
	}

	turns := decodeTurns(rs)
	vectorstore.SortTurns(turns)
	return turns, nil
}

// ListSessions folds the user's turns into per-chat summaries.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	rs, err := s.db.Client.Query(ctx, s.cfg.TurnCollection, nil, userExpr(userID),
		[]string{fieldID, fieldChatID, fieldUserID, fieldMessage, fieldResponse, fieldSources, fieldCreatedAt},
		client.WithLimit(int64(s.cfg.SessionScanLimit)),
	)
	if err != nil {
		return nil, &models.RetrievalError{Op: "list_sessions", Err: err}
	}

	turns := decodeTurns(rs)
	vectorstore.SortTurns(turns)
	return vectorstore.FoldSessions(turns), nil
}

// DeleteSession removes every turn of one chat owned by the user.
func (s *Store) DeleteSession(ctx context.Context, userID, chatID string) error {
	expr := chatExpr(userID, chatID)
	rs, err := s.db.Client.Query(ctx, s.cfg.TurnCollection, nil, expr,
		[]string{fieldID}, client.WithLimit(1))
	if err != nil {
		return &models.RetrievalError{Op: "delete_session", Err: err}
	}
	if len(stringResult(rs, fieldID)) == 0 {
		return &models.NotFoundError{Resource: "session", ID: chatID}
	}

	if err := s.db.Client.Delete(ctx, s.cfg.TurnCollection, "", expr); err != nil {
		return &models.RetrievalError{Op: "delete_session", Err: err}
	}
	return nil
}

// Health reports whether Milvus is reachable.
func (s *Store) Health(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// normalizeScore maps a cosine similarity onto [0, 1].
func normalizeScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func decodeMetadata(raw []byte) map[string]string {
	meta := make(map[string]string)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &meta)
	}
	return meta
}

func decodeTurns(rs client.ResultSet) []models.Turn {
	ids := stringResult(rs, fieldID)
	chatIDs := stringResult(rs, fieldChatID)
	userIDs := stringResult(rs, fieldUserID)
	messages := stringResult(rs, fieldMessage)
	responses := stringResult(rs, fieldResponse)
	sources := jsonResult(rs, fieldSources)
	createdAts := int64Result(rs, fieldCreatedAt)

	turns := make([]models.Turn, 0, len(ids))
	for i := range ids {
		t := models.Turn{ID: ids[i]}
		if i < len(chatIDs) {
			t.ChatID = chatIDs[i]
		}
		if i < len(userIDs) {
			t.UserID = userIDs[i]
		}
		if i < len(messages) {
			t.Message = messages[i]
		}
		if i < len(responses) {
			t.Response = responses[i]
		}
		if i < len(sources) && len(sources[i]) > 0 {
			_ = json.Unmarshal(sources[i], &t.Sources)
		}
		if i < len(createdAts) {
			t.CreatedAt = time.UnixMilli(createdAts[i]).UTC()
		}
		turns = append(turns, t)
	}
	return turns
}

func findColumn(cols []entity.Column, name string) entity.Column {
	for _, col := range cols {
		if col.Name() == name {
			return col
		}
	}
	return nil
}

func stringColumn(cols []entity.Column, name string) []string {
	if col, ok := findColumn(cols, name).(*entity.ColumnVarChar); ok {
		return col.Data()
	}
	return nil
}

func jsonColumn(cols []entity.Column, name string) [][]byte {
	if col, ok := findColumn(cols, name).(*entity.ColumnJSONBytes); ok {
		return col.Data()
	}
	return nil
}

func stringResult(rs client.ResultSet, name string) []string {
	return stringColumn(rs, name)
}

func jsonResult(rs client.ResultSet, name string) [][]byte {
	return jsonColumn(rs, name)
}

func int64Result(rs client.ResultSet, name string) []int64 {
	if col, ok := findColumn(rs, name).(*entity.ColumnInt64); ok {
		return col.Data()
	}
	return nil
}

var _ vectorstore.Store = (*Store)(nil)
