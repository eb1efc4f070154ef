package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"ragchat/internal/chat_service/service"
	"ragchat/internal/config"
	"ragchat/internal/models"
	"ragchat/internal/rag/schema"
	"ragchat/internal/vectorstore"
	"ragchat/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	identity *models.Identity
	err      error
}

func (s stubVerifier) Verify(context.Context, string) (*models.Identity, error) {
	return s.identity, s.err
}

type stubStore struct {
	hits      []models.PassageHit
	turns     []models.Turn
	deleteErr error
}

func (s *stubStore) AddPassages(context.Context, string, []*schema.Document) error { return nil }
func (s *stubStore) SimilaritySearch(context.Context, string, []float32, int) ([]models.PassageHit, error) {
	return s.hits, nil
}
func (s *stubStore) ListDocuments(context.Context, string) ([]models.DocumentPreview, error) {
	return nil, nil
}
func (s *stubStore) AddTurn(_ context.Context, turn models.Turn, _ []float32) error {
	s.turns = append(s.turns, turn)
	return nil
}
func (s *stubStore) GetTurns(context.Context, string, string) ([]models.Turn, error) {
	return s.turns, nil
}
func (s *stubStore) ListSessions(context.Context, string) ([]models.Session, error) {
	return []models.Session{}, nil
}
func (s *stubStore) DeleteSession(context.Context, string, string) error { return s.deleteErr }
func (s *stubStore) Health(context.Context) error                        { return nil }

var _ vectorstore.Store = (*stubStore)(nil)

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}
func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type stubLLM struct{ answer string }

func (s stubLLM) Generate(context.Context, string) (string, error) { return s.answer, nil }

func newTestRouter(t *testing.T, st *stubStore, verifier stubVerifier) *gin.Engine {
	t.Helper()
	svc, err := service.New(service.Deps{
		Store:     st,
		Embedder:  stubEmbedder{},
		Model:     stubLLM{answer: "answer"},
		Retrieval: config.RetrievalConfig{ChatTopK: 3, SearchTopK: 5, MaxTopK: 20, ContextTokens: 3000},
		Upload:    config.UploadConfig{MaxFileSize: 1 << 20, TempDir: t.TempDir()},
		Log:       logger.New("test", ""),
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(svc, logger.New("test", ""))
	return SetupRouter(h, verifier, config.MiddlewareConfig{})
}

func authedVerifier() stubVerifier {
	return stubVerifier{identity: &models.Identity{SubjectID: "user-1"}}
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMissingAuthorizationHeader(t *testing.T) {
	r := newTestRouter(t, &stubStore{}, authedVerifier())
	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRejectedToken(t *testing.T) {
	r := newTestRouter(t, &stubStore{}, stubVerifier{err: &models.AuthError{Reason: "invalid token"}})
	w := doJSON(r, http.MethodGet, "/api/chats", nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRootAndHealthAreOpen(t *testing.T) {
	r := newTestRouter(t, &stubStore{}, stubVerifier{err: &models.AuthError{Reason: "invalid"}})
	for _, path := range []string{"/", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestChatReturnsResponse(t *testing.T) {
	st := &stubStore{hits: []models.PassageHit{{Content: "context", Metadata: map[string]string{}, Score: 0.8}}}
	r := newTestRouter(t, st, authedVerifier())

	w := doJSON(r, http.MethodPost, "/api/chat", map[string]string{"message": "hello", "chat_id": "chat-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "answer" || resp.ChatID != "chat-1" || len(resp.Sources) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
}

func TestChatValidatesMessage(t *testing.T) {
	r := newTestRouter(t, &stubStore{}, authedVerifier())
	w := doJSON(r, http.MethodPost, "/api/chat", map[string]string{"message": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeleteSessionMapsNotFound(t *testing.T) {
	st := &stubStore{deleteErr: &models.NotFoundError{Resource: "session", ID: "missing"}}
	r := newTestRouter(t, st, authedVerifier())

	w := doJSON(r, http.MethodDelete, "/api/chat/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeleteSessionSuccess(t *testing.T) {
	r := newTestRouter(t, &stubStore{}, authedVerifier())
	w := doJSON(r, http.MethodDelete, "/api/chat/chat-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	r := newTestRouter(t, &stubStore{}, authedVerifier())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("plain text"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	r := newTestRouter(t, &stubStore{}, authedVerifier())
	w := doJSON(r, http.MethodPost, "/api/search", map[string]interface{}{"k": 5})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSearchReturnsHits(t *testing.T) {
	st := &stubStore{hits: []models.PassageHit{{Content: "found", Metadata: map[string]string{}, Score: 0.9}}}
	r := newTestRouter(t, st, authedVerifier())

	w := doJSON(r, http.MethodPost, "/api/search", map[string]interface{}{"query": "find me"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Results []models.PassageHit `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Content != "found" {
		t.Errorf("unexpected results %+v", resp.Results)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&models.AuthError{Reason: "no"}, http.StatusUnauthorized},
		{&models.ValidationError{Field: "file", Reason: "too big"}, http.StatusBadRequest},
		{&models.NotFoundError{Resource: "session", ID: "x"}, http.StatusNotFound},
		{&models.RetrievalError{Op: "search", Err: errors.New("down")}, http.StatusBadGateway},
		{&models.IndexingError{FailedCount: 1, Err: errors.New("down")}, http.StatusBadGateway},
		{&models.EmbeddingError{Err: errors.New("down")}, http.StatusBadGateway},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tc.err)
		if w.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
	}
}
