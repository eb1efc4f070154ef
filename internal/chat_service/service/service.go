// Package service holds the request-level orchestration: chat turns,
// document ingestion, retrieval, and session shaping. All dependencies are
// injected at construction; nothing here owns a connection.
package service

import (
	"context"
	"fmt"

	"ragchat/internal/chat_service/publisher"
	"ragchat/internal/chat_service/store"
	"ragchat/internal/config"
	"ragchat/internal/embedding"
	"ragchat/internal/llm"
	"ragchat/internal/rag/interfaces"
	"ragchat/internal/vectorstore"
	"ragchat/pkg/logger"
)

// Deps collects everything a Service needs. Uploads and Archive may be nil
// when the corresponding backing stores are disabled.
type Deps struct {
	Store    vectorstore.Store
	Embedder embedding.Embedding
	Model    llm.LLM
	Uploads  store.UploadStore
	Events   publisher.Publisher
	Archive  Archiver
	Loader   interfaces.Loader
	Splitter interfaces.Splitter

	Retrieval config.RetrievalConfig
	Upload    config.UploadConfig
	Log       *logger.Logger
}

// Service drives one request at a time through the RAG pipeline.
type Service struct {
	store    vectorstore.Store
	embedder embedding.Embedding
	model    llm.LLM
	uploads  store.UploadStore
	events   publisher.Publisher
	archive  Archiver
	loader   interfaces.Loader
	splitter interfaces.Splitter
	prompts  *promptBuilder

	retrieval config.RetrievalConfig
	upload    config.UploadConfig
	log       *logger.Logger
}

// New validates the dependency set and builds a Service.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Embedder == nil || deps.Model == nil {
		return nil, fmt.Errorf("store, embedder and model are required")
	}
	if deps.Events == nil {
		deps.Events = publisher.NopPublisher{}
	}
	return &Service{
		store:     deps.Store,
		embedder:  deps.Embedder,
		model:     deps.Model,
		uploads:   deps.Uploads,
		events:    deps.Events,
		archive:   deps.Archive,
		loader:    deps.Loader,
		splitter:  deps.Splitter,
		prompts:   newPromptBuilder(deps.Retrieval.ContextTokens),
		retrieval: deps.Retrieval,
		upload:    deps.Upload,
		log:       deps.Log,
	}, nil
}

// Health reports whether the backing store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

// clampK bounds a caller-supplied result count to [1, MaxTopK], with def as
// the value used when k is unset.
func (s *Service) clampK(k, def int) int {
	if k <= 0 {
		k = def
	}
	if s.retrieval.MaxTopK > 0 && k > s.retrieval.MaxTopK {
		k = s.retrieval.MaxTopK
	}
	return k
}
