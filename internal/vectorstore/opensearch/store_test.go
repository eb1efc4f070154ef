package opensearch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ragchat/internal/config"
	"ragchat/internal/models"
	"ragchat/internal/rag/schema"
	"ragchat/pkg/httpclient"
	"ragchat/pkg/logger"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) (*Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.OpenSearchConfig{
		Address:       srv.URL,
		DocumentIndex: "rag_documents",
		ChatIndex:     "chat_history",
	}
	store, err := NewStore(cfg, httpclient.New(httpclient.Options{}), 4, logger.New("test", ""))
	if err != nil {
		t.Fatal(err)
	}
	return store, srv
}

func readBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("failed to parse request body %q: %v", data, err)
	}
	return body
}

// bodyContainsTermFilter walks a search body and reports whether the bool
// filter clause carries the expected term.
func bodyContainsTermFilter(body map[string]interface{}, field, value string) bool {
	data, _ := json.Marshal(body)
	needle, _ := json.Marshal(map[string]interface{}{"term": map[string]string{field: value}})
	return strings.Contains(string(data), string(needle))
}

func TestSimilaritySearchScopesToUser(t *testing.T) {
	var captured map[string]interface{}
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rag_documents/_search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		captured = readBody(t, r)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{
				"hits": []map[string]interface{}{
					{"_id": "p1", "_score": 0.92, "_source": map[string]interface{}{"content": "alpha", "metadata": map[string]string{"file_name": "a.pdf"}}},
					{"_id": "p2", "_score": 1.4, "_source": map[string]interface{}{"content": "beta", "metadata": map[string]string{}}},
					{"_id": "p3", "_score": -0.1, "_source": map[string]interface{}{"content": "gamma", "metadata": map[string]string{}}},
				},
			},
		})
	})

	hits, err := store.SimilaritySearch(context.Background(), "user-1", []float32{0.1, 0.2, 0.3, 0.4}, 3)
	if err != nil {
		t.Fatal(err)
	}

	if !bodyContainsTermFilter(captured, "user_id", "user-1") {
		t.Error("search body must carry a user_id term filter")
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Content != "alpha" || hits[0].Score != 0.92 {
		t.Errorf("unexpected first hit %+v", hits[0])
	}
	if hits[1].Score != 1 {
		t.Errorf("scores above 1 must clamp to 1, got %f", hits[1].Score)
	}
	if hits[2].Score != 0 {
		t.Errorf("negative scores must clamp to 0, got %f", hits[2].Score)
	}
}

func TestAddPassagesReportsBulkFailures(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_bulk" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": true,
			"items": []map[string]interface{}{
				{"index": map[string]interface{}{"status": 201}},
				{"index": map[string]interface{}{"status": 400}},
			},
		})
	})

	docs := []*schema.Document{
		{ID: "c1", Text: "one", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]string{}},
		{ID: "c2", Text: "two", Embedding: []float32{0, 1, 0, 0}, Metadata: map[string]string{}},
	}
	err := store.AddPassages(context.Background(), "user-1", docs)

	var idxErr *models.IndexingError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected IndexingError, got %v", err)
	}
	if idxErr.FailedCount != 1 {
		t.Errorf("expected 1 failed passage, got %d", idxErr.FailedCount)
	}
}

func TestAddPassagesRejectsMissingEmbeddings(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the server")
	})

	err := store.AddPassages(context.Background(), "user-1", []*schema.Document{{ID: "c1", Text: "one"}})
	var idxErr *models.IndexingError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected IndexingError, got %v", err)
	}
}

func TestGetTurnsSortsAscendingWithIDTieBreak(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		body := readBody(t, r)
		if !bodyContainsTermFilter(body, "user_id", "user-1") || !bodyContainsTermFilter(body, "chat_id", "chat-9") {
			t.Error("turn query must filter on user_id and chat_id")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{
				"hits": []map[string]interface{}{
					{"_id": "t-b", "_source": map[string]interface{}{"chat_id": "chat-9", "user_id": "user-1", "message": "second", "created_at": base.Add(time.Minute).UnixMilli()}},
					{"_id": "t-z", "_source": map[string]interface{}{"chat_id": "chat-9", "user_id": "user-1", "message": "tie late", "created_at": base.UnixMilli()}},
					{"_id": "t-a", "_source": map[string]interface{}{"chat_id": "chat-9", "user_id": "user-1", "message": "tie early", "created_at": base.UnixMilli()}},
				},
			},
		})
	})

	turns, err := store.GetTurns(context.Background(), "user-1", "chat-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].ID != "t-a" || turns[1].ID != "t-z" || turns[2].ID != "t-b" {
		t.Errorf("unexpected order: %s, %s, %s", turns[0].ID, turns[1].ID, turns[2].ID)
	}
}

func TestListSessionsParsesAggregation(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		body := readBody(t, r)
		if !bodyContainsTermFilter(body, "user_id", "user-1") {
			t.Error("session query must filter on user_id")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"aggregations": map[string]interface{}{
				"sessions": map[string]interface{}{
					"buckets": []map[string]interface{}{
						{
							"key":       "chat-1",
							"doc_count": 4,
							"first": map[string]interface{}{"hits": map[string]interface{}{"hits": []map[string]interface{}{
								{"_source": map[string]interface{}{"message": "hello there", "user_id": "user-1"}},
							}}},
							"earliest": map[string]interface{}{"value": float64(base.UnixMilli())},
							"latest":   map[string]interface{}{"value": float64(base.Add(time.Hour).UnixMilli())},
						},
					},
				},
			},
		})
	})

	sessions, err := store.ListSessions(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.ChatID != "chat-1" || s.MessageCount != 4 || s.Title != "hello there" {
		t.Errorf("unexpected session %+v", s)
	}
	if !s.CreatedAt.Equal(base) || !s.LastMessageAt.Equal(base.Add(time.Hour)) {
		t.Errorf("unexpected timestamps %v %v", s.CreatedAt, s.LastMessageAt)
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"deleted": 0})
	})

	err := store.DeleteSession(context.Background(), "user-1", "missing")
	var nf *models.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDeleteSessionRemovesTurns(t *testing.T) {
	var path string
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{"deleted": 3})
	})

	if err := store.DeleteSession(context.Background(), "user-1", "chat-1"); err != nil {
		t.Fatal(err)
	}
	if path != "/chat_history/_delete_by_query" {
		t.Errorf("unexpected path %s", path)
	}
}
