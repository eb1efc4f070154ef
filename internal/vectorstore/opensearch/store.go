// Package opensearch realizes the vector store contract against an
// OpenSearch cluster over its REST API. Passages and turns live in two
// indices with knn_vector mappings; every query body carries a term filter
// on the caller's user id so tenancy is enforced inside the engine.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/models"
	"ragchat/internal/rag/schema"
	"ragchat/internal/vectorstore"
	"ragchat/pkg/httpclient"
	"ragchat/pkg/logger"
)

const (
	documentListSize = 1000
	turnHistorySize  = 100
	sessionAggSize   = 1000
)

// Store adapts an OpenSearch cluster to the vector store contract.
type Store struct {
	http *httpclient.Client
	cfg  *config.OpenSearchConfig
	dim  int
	log  *logger.Logger
}

// NewStore creates an OpenSearch-backed store. dim is the embedding
// dimension used when the indices have to be created.
func NewStore(cfg *config.OpenSearchConfig, hc *httpclient.Client, dim int, log *logger.Logger) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("opensearch address is not configured")
	}
	return &Store{http: hc, cfg: cfg, dim: dim, log: log}, nil
}

// do executes one REST call and decodes the JSON response into out.
func (s *Store) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.Address+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("opensearch returned %d: %s", resp.StatusCode, string(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// doRaw sends a pre-serialized body, used for the NDJSON bulk endpoint.
func (s *Store) doRaw(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.Address+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("opensearch returned %d: %s", resp.StatusCode, string(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// EnsureIndices creates the passage and turn indices if they do not exist.
func (s *Store) EnsureIndices(ctx context.Context) error {
	if err := s.ensureIndex(ctx, s.cfg.DocumentIndex, s.documentMapping()); err != nil {
		return err
	}
	return s.ensureIndex(ctx, s.cfg.ChatIndex, s.chatMapping())
}

func (s *Store) ensureIndex(ctx context.Context, index string, mapping map[string]interface{}) error {
	status, err := s.do(ctx, http.MethodHead, "/"+index, nil, nil)
	if err == nil && status == http.StatusOK {
		return nil
	}
	if _, err := s.do(ctx, http.MethodPut, "/"+index, mapping, nil); err != nil {
		return fmt.Errorf("failed to create index %q: %w", index, err)
	}
	s.log.WithField("index", index).Info("created index")
	return nil
}

func (s *Store) knnField() map[string]interface{} {
	return map[string]interface{}{
		"type":      "knn_vector",
		"dimension": s.dim,
		"method": map[string]interface{}{
			"name":       "hnsw",
			"space_type": "cosinesimil",
			"engine":     "nmslib",
		},
	}
}

func (s *Store) documentMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{"index": map[string]interface{}{"knn": true}},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"content":     map[string]interface{}{"type": "text"},
				"user_id":     map[string]interface{}{"type": "keyword"},
				"document_id": map[string]interface{}{"type": "keyword"},
				"metadata":    map[string]interface{}{"type": "object"},
				"embedding":   s.knnField(),
			},
		},
	}
}

func (s *Store) chatMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{"index": map[string]interface{}{"knn": true}},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"chat_id":    map[string]interface{}{"type": "keyword"},
				"user_id":    map[string]interface{}{"type": "keyword"},
				"message":    map[string]interface{}{"type": "text"},
				"response":   map[string]interface{}{"type": "text"},
				"sources":    map[string]interface{}{"type": "object", "enabled": false},
				"created_at": map[string]interface{}{"type": "date", "format": "epoch_millis"},
				"embedding":  s.knnField(),
			},
		},
	}
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
	} `json:"items"`
}

// AddPassages indexes embedded chunks through the bulk endpoint. Partial
// failures surface as an IndexingError carrying the rejected count.
func (s *Store) AddPassages(ctx context.Context, userID string, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return &models.IndexingError{FailedCount: len(docs), Err: fmt.Errorf("document %s has no embedding", doc.ID)}
		}
		action := map[string]interface{}{"index": map[string]interface{}{"_index": s.cfg.DocumentIndex, "_id": doc.ID}}
		source := map[string]interface{}{
			"content":     doc.Text,
			"user_id":     userID,
			"document_id": doc.Metadata[schema.MetadataKeyDocumentID],
			"metadata":    doc.Metadata,
			"embedding":   doc.Embedding,
		}
		if err := enc.Encode(action); err != nil {
			return &models.IndexingError{FailedCount: len(docs), Err: err}
		}
		if err := enc.Encode(source); err != nil {
			return &models.IndexingError{FailedCount: len(docs), Err: err}
		}
	}

	var resp bulkResponse
	if err := s.doRaw(ctx, http.MethodPost, "/_bulk?refresh=true", "application/x-ndjson", buf.Bytes(), &resp); err != nil {
		return &models.IndexingError{FailedCount: len(docs), Err: err}
	}
	if resp.Errors {
		failed := 0
		for _, item := range resp.Items {
			for _, op := range item {
				if op.Status >= http.StatusBadRequest {
					failed++
				}
			}
		}
		return &models.IndexingError{FailedCount: failed, Err: fmt.Errorf("bulk indexing rejected %d of %d passages", failed, len(docs))}
	}

	s.log.WithField("count", len(docs)).Info("indexed passages")
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type passageSource struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// SimilaritySearch runs a kNN query restricted to the user's passages.
func (s *Store) SimilaritySearch(ctx context.Context, userID string, vector []float32, topK int) ([]models.PassageHit, error) {
	body := map[string]interface{}{
		"size":    topK,
		"_source": []string{"content", "metadata"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"knn": map[string]interface{}{
							"embedding": map[string]interface{}{"vector": vector, "k": topK},
						},
					},
				},
				"filter": []interface{}{termFilter("user_id", userID)},
			},
		},
	}

	var resp searchResponse
	if _, err := s.do(ctx, http.MethodPost, "/"+s.cfg.DocumentIndex+"/_search", body, &resp); err != nil {
		return nil, &models.RetrievalError{Op: "search", Err: err}
	}

	hits := make([]models.PassageHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var src passageSource
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		hits = append(hits, models.PassageHit{
			Content:  src.Content,
			Metadata: src.Metadata,
			Score:    normalizeScore(h.Score),
		})
	}
	return hits, nil
}

// ListDocuments returns the user's indexed passages with full content.
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]models.DocumentPreview, error) {
	body := map[string]interface{}{
		"size":    documentListSize,
		"_source": []string{"content", "metadata"},
		"query":   map[string]interface{}{"bool": map[string]interface{}{"filter": []interface{}{termFilter("user_id", userID)}}},
	}

	var resp searchResponse
	if _, err := s.do(ctx, http.MethodPost, "/"+s.cfg.DocumentIndex+"/_search", body, &resp); err != nil {
		return nil, &models.RetrievalError{Op: "list_documents", Err: err}
	}

	previews := make([]models.DocumentPreview, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var src passageSource
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		p := models.DocumentPreview{ID: h.ID, Content: src.Content, Metadata: src.Metadata}
		if ts, err := time.Parse(time.RFC3339, src.Metadata[schema.MetadataKeyUploadedAt]); err == nil {
			p.IndexedAt = ts
		}
		previews = append(previews, p)
	}
	return previews, nil
}

type turnSource struct {
	ChatID    string             `json:"chat_id"`
	UserID    string             `json:"user_id"`
	Message   string             `json:"message"`
	Response  string             `json:"response"`
	Sources   []models.SourceRef `json:"sources"`
	CreatedAt int64              `json:"created_at"`
	Embedding []float32          `json:"embedding,omitempty"`
}

// AddTurn appends one exchange to the turn index.
func (s *Store) AddTurn(ctx context.Context, turn models.Turn, embedding []float32) error {
	body := turnSource{
		ChatID:    turn.ChatID,
		UserID:    turn.UserID,
		Message:   turn.Message,
		Response:  turn.Response,
		Sources:   turn.Sources,
		CreatedAt: turn.CreatedAt.UnixMilli(),
		Embedding: embedding,
	}
	path := fmt.Sprintf("/%s/_doc/%s?refresh=true", s.cfg.ChatIndex, turn.ID)
	if _, err := s.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return &models.IndexingError{FailedCount: 1, Err: err}
	}
	return nil
}

// GetTurns returns one chat's turns in ascending creation order.
func (s *Store) GetTurns(ctx context.Context, userID, chatID string) ([]models.Turn, error) {
	body := map[string]interface{}{
		"size":    turnHistorySize,
		"_source": []string{"chat_id", "user_id", "message", "response", "sources", "created_at"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{termFilter("user_id", userID), termFilter("chat_id", chatID)},
			},
		},
		"sort": []interface{}{map[string]interface{}{"created_at": "asc"}},
	}

	var resp searchResponse
	if _, err := s.do(ctx, http.MethodPost, "/"+s.cfg.ChatIndex+"/_search", body, &resp); err != nil {
		return nil, &models.RetrievalError{Op: "get_turns", Err: err}
	}

	turns := make([]models.Turn, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var src turnSource
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		turns = append(turns, models.Turn{
			ID:        h.ID,
			ChatID:    src.ChatID,
			UserID:    src.UserID,
			Message:   src.Message,
			Response:  src.Response,
			Sources:   src.Sources,
			CreatedAt: time.UnixMilli(src.CreatedAt).UTC(),
		})
	}
	vectorstore.SortTurns(turns)
	return turns, nil
}

type sessionsAggResponse struct {
	Aggregations struct {
		Sessions struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int    `json:"doc_count"`
				First    struct {
					Hits struct {
						Hits []struct {
							Source json.RawMessage `json:"_source"`
						} `json:"hits"`
					} `json:"hits"`
				} `json:"first"`
				Earliest struct {
					Value float64 `json:"value"`
				} `json:"earliest"`
				Latest struct {
					Value float64 `json:"value"`
				} `json:"latest"`
			} `json:"buckets"`
		} `json:"sessions"`
	} `json:"aggregations"`
}

// ListSessions folds the user's turns into per-chat summaries using a terms
// aggregation, ordered by last activity, most recent first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	body := map[string]interface{}{
		"size":  0,
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": []interface{}{termFilter("user_id", userID)}}},
		"aggs": map[string]interface{}{
			"sessions": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "chat_id",
					"size":  sessionAggSize,
					"order": map[string]interface{}{"latest": "desc"},
				},
				"aggs": map[string]interface{}{
					"first": map[string]interface{}{
						"top_hits": map[string]interface{}{
							"size":    1,
							"_source": []string{"message", "user_id"},
							"sort":    []interface{}{map[string]interface{}{"created_at": "asc"}},
						},
					},
					"earliest": map[string]interface{}{"min": map[string]interface{}{"field": "created_at"}},
					"latest":   map[string]interface{}{"max": map[string]interface{}{"field": "created_at"}},
				},
			},
		},
	}

	var resp sessionsAggResponse
	if _, err := s.do(ctx, http.MethodPost, "/"+s.cfg.ChatIndex+"/_search", body, &resp); err != nil {
		return nil, &models.RetrievalError{Op: "list_sessions", Err: err}
	}

	sessions := make([]models.Session, 0, len(resp.Aggregations.Sessions.Buckets))
	for _, b := range resp.Aggregations.Sessions.Buckets {
		session := models.Session{
			ChatID:        b.Key,
			UserID:        userID,
			MessageCount:  b.DocCount,
			CreatedAt:     time.UnixMilli(int64(b.Earliest.Value)).UTC(),
			LastMessageAt: time.UnixMilli(int64(b.Latest.Value)).UTC(),
		}
		if len(b.First.Hits.Hits) > 0 {
			var src turnSource
			if err := json.Unmarshal(b.First.Hits.Hits[0].Source, &src); err == nil {
				session.Title = vectorstore.SessionTitle(src.Message)
			}
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

type deleteByQueryResponse struct {
	Deleted int `json:"deleted"`
}

// DeleteSession removes every turn of one chat owned by the user.
func (s *Store) DeleteSession(ctx context.Context, userID, chatID string) error {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{termFilter("user_id", userID), termFilter("chat_id", chatID)},
			},
		},
	}

	var resp deleteByQueryResponse
	path := "/" + s.cfg.ChatIndex + "/_delete_by_query?refresh=true"
	if _, err := s.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return &models.RetrievalError{Op: "delete_session", Err: err}
	}
	if resp.Deleted == 0 {
		return &models.NotFoundError{Resource: "session", ID: chatID}
	}
	return nil
}

// Health checks cluster reachability.
func (s *Store) Health(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodGet, "/_cluster/health", nil, &struct{}{})
	if err != nil {
		return fmt.Errorf("opensearch health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("opensearch health check returned %d", status)
	}
	return nil
}

func termFilter(field, value string) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

// normalizeScore clamps an OpenSearch cosine score onto [0, 1].
func normalizeScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

var _ vectorstore.Store = (*Store)(nil)
