package milvus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"ragchat/internal/config"
	db "ragchat/internal/database/milvus"
	"ragchat/internal/models"
	"ragchat/internal/rag/schema"
	"ragchat/pkg/logger"
)

// fakeMilvus records the calls the store makes. Only the methods the store
// uses are overridden; anything else panics through the embedded interface.
type fakeMilvus struct {
	client.Client

	inserts     []string
	flushes     []string
	deleteExprs []string
	queryResult client.ResultSet
	insertErr   error
}

func (f *fakeMilvus) Insert(_ context.Context, collName string, _ string, _ ...entity.Column) (entity.Column, error) {
	f.inserts = append(f.inserts, collName)
	return nil, f.insertErr
}

func (f *fakeMilvus) Flush(_ context.Context, collName string, _ bool, _ ...client.FlushOption) error {
	f.flushes = append(f.flushes, collName)
	return nil
}

func (f *fakeMilvus) Query(_ context.Context, _ string, _ []string, _ string, _ []string, _ ...client.SearchQueryOptionFunc) (client.ResultSet, error) {
	return f.queryResult, nil
}

func (f *fakeMilvus) Delete(_ context.Context, _ string, _ string, expr string) error {
	f.deleteExprs = append(f.deleteExprs, expr)
	return nil
}

func newTestStore(t *testing.T, fake *fakeMilvus) *Store {
	t.Helper()
	cfg := &config.MilvusConfig{
		PassageCollection: "rag_documents",
		TurnCollection:    "chat_history",
	}
	st, err := NewStore(&db.Client{Client: fake, Config: cfg}, logger.New("test", ""))
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestAddPassagesFlushesAfterInsert(t *testing.T) {
	fake := &fakeMilvus{}
	st := newTestStore(t, fake)

	docs := []*schema.Document{{
		ID:        "d1",
		Text:      "passage text",
		Embedding: []float32{0.1, 0.2},
		Metadata:  map[string]string{schema.MetadataKeyDocumentID: "doc-1"},
	}}
	if err := st.AddPassages(context.Background(), "user-1", docs); err != nil {
		t.Fatal(err)
	}

	if len(fake.inserts) != 1 || fake.inserts[0] != "rag_documents" {
		t.Fatalf("expected one insert into rag_documents, got %v", fake.inserts)
	}
	if len(fake.flushes) != 1 || fake.flushes[0] != "rag_documents" {
		t.Fatalf("inserted passages must be flushed, got flushes %v", fake.flushes)
	}
}

func TestAddPassagesSkipsFlushOnInsertFailure(t *testing.T) {
	fake := &fakeMilvus{insertErr: errors.New("segment full")}
	st := newTestStore(t, fake)

	docs := []*schema.Document{{ID: "d1", Text: "x", Embedding: []float32{0.1}, Metadata: map[string]string{}}}
	err := st.AddPassages(context.Background(), "user-1", docs)
	var iErr *models.IndexingError
	if !errors.As(err, &iErr) {
		t.Fatalf("expected IndexingError, got %v", err)
	}
	if len(fake.flushes) != 0 {
		t.Errorf("nothing to flush after a failed insert, got %v", fake.flushes)
	}
}

func TestAddTurnFlushesAfterInsert(t *testing.T) {
	fake := &fakeMilvus{}
	st := newTestStore(t, fake)

	turn := models.Turn{
		ID:        "t1",
		ChatID:    "chat-1",
		UserID:    "user-1",
		Message:   "hello",
		Response:  "hi",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := st.AddTurn(context.Background(), turn, []float32{0.1, 0.2}); err != nil {
		t.Fatal(err)
	}

	if len(fake.inserts) != 1 || fake.inserts[0] != "chat_history" {
		t.Fatalf("expected one insert into chat_history, got %v", fake.inserts)
	}
	if len(fake.flushes) != 1 || fake.flushes[0] != "chat_history" {
		t.Fatalf("inserted turns must be flushed, got flushes %v", fake.flushes)
	}
}

func TestDeleteSessionUnknownChat(t *testing.T) {
	fake := &fakeMilvus{queryResult: client.ResultSet{}}
	st := newTestStore(t, fake)

	err := st.DeleteSession(context.Background(), "user-1", "chat-missing")
	var nfErr *models.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(fake.deleteExprs) != 0 {
		t.Errorf("no delete may run for an unknown chat, got %v", fake.deleteExprs)
	}
}

func TestDeleteSessionScopesExprToOwner(t *testing.T) {
	fake := &fakeMilvus{queryResult: client.ResultSet{
		entity.NewColumnVarChar(fieldID, []string{"t1"}),
	}}
	st := newTestStore(t, fake)

	if err := st.DeleteSession(context.Background(), "user-1", "chat-1"); err != nil {
		t.Fatal(err)
	}
	if len(fake.deleteExprs) != 1 {
		t.Fatalf("expected one delete, got %v", fake.deleteExprs)
	}
	expr := fake.deleteExprs[0]
	if !strings.Contains(expr, `user_id == "user-1"`) || !strings.Contains(expr, `chat_id == "chat-1"`) {
		t.Errorf("delete expression must scope to owner and chat, got %q", expr)
	}
}
