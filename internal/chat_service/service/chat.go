package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/chat_service/publisher"
	"ragchat/internal/models"
	"ragchat/pkg/logger"
)

// sourcePreviewLimit bounds the passage content echoed back in a chat
// response's sources.
const sourcePreviewLimit = 200

// ProcessChat drives one conversational turn. It never returns a hard
// failure: any internal error collapses into a degraded but fully formed
// response so the caller always gets an answer shape back.
func (s *Service) ProcessChat(ctx context.Context, identity models.Identity, req models.ChatRequest) *models.ChatResponse {
	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.New().String()
	}
	log := s.log.WithFields(map[string]interface{}{"chat_id": chatID, "user_id": identity.SubjectID})

	queryVector, err := s.embedder.Embed(ctx, req.Message)
	if err != nil {
		log.WithError(err).Error("failed to embed chat message")
		return s.degraded(chatID, err)
	}

	hits, err := s.store.SimilaritySearch(ctx, identity.SubjectID, queryVector, s.clampK(0, s.retrieval.ChatTopK))
	if err != nil {
		log.WithError(err).Error("retrieval failed")
		return s.degraded(chatID, err)
	}

	sources := make([]models.SourceRef, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, models.SourceRef{
			Content:         previewText(hit.Content, sourcePreviewLimit),
			Metadata:        hit.Metadata,
			SimilarityScore: hit.Score,
		})
	}

	answer, err := s.model.Generate(ctx, s.prompts.Build(req.Message, hits))
	if err != nil {
		log.WithError(err).Error("completion failed")
		return s.degraded(chatID, err)
	}

	s.recordTurn(ctx, log, models.Turn{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		UserID:    identity.SubjectID,
		Message:   req.Message,
		Response:  answer,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	})

	return &models.ChatResponse{
		Response:  answer,
		ChatID:    chatID,
		Sources:   sources,
		Timestamp: time.Now().UTC(),
	}
}

// recordTurn persists the turn and emits its event. Both are best effort;
// the chat response has already been produced and must reach the caller.
func (s *Service) recordTurn(ctx context.Context, log *logger.Logger, turn models.Turn) {
	vector, err := s.embedder.Embed(ctx, turn.Message+" "+turn.Response)
	if err != nil {
		log.WithError(err).Warn("failed to embed turn, history not recorded")
		return
	}
	if err := s.store.AddTurn(ctx, turn, vector); err != nil {
		log.WithError(err).Warn("failed to record turn")
		return
	}
	s.events.Publish(ctx, publisher.Event{
		Type:   publisher.EventTurnRecorded,
		UserID: turn.UserID,
		ChatID: turn.ChatID,
	})
}

// degraded is the availability fallback: an apologetic answer with the
// resolved chat id, empty sources, and the degraded marker set.
func (s *Service) degraded(chatID string, cause error) *models.ChatResponse {
	return &models.ChatResponse{
		Response:  fmt.Sprintf("I apologize, but I encountered an error processing your request: %v", cause),
		ChatID:    chatID,
		Sources:   []models.SourceRef{},
		Timestamp: time.Now().UTC(),
		Degraded:  true,
	}
}

// previewText truncates s to limit runes, appending an ellipsis when
// anything was cut.
func previewText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
