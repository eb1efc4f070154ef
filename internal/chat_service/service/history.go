package service

import (
	"context"
	"fmt"

	"ragchat/internal/chat_service/publisher"
	"ragchat/internal/models"
)

// GetHistory returns one chat's turns in API shape, ascending by creation
// time, each with a synthetic positional display id.
func (s *Service) GetHistory(ctx context.Context, userID, chatID string) ([]models.HistoryEntry, error) {
	turns, err := s.store.GetTurns(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	history := make([]models.HistoryEntry, 0, len(turns))
	for i, turn := range turns {
		history = append(history, models.HistoryEntry{
			ID:        fmt.Sprintf("%s_%d", chatID, i),
			ChatID:    chatID,
			UserID:    userID,
			Message:   turn.Message,
			Response:  turn.Response,
			Sources:   turn.Sources,
			Timestamp: turn.CreatedAt,
		})
	}
	return history, nil
}

// ListSessions returns the user's chat sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.store.ListSessions(ctx, userID)
}

// DeleteSession removes a chat and all its turns.
func (s *Service) DeleteSession(ctx context.Context, userID, chatID string) error {
	if err := s.store.DeleteSession(ctx, userID, chatID); err != nil {
		return err
	}
	s.events.Publish(ctx, publisher.Event{
		Type:   publisher.EventSessionDeleted,
		UserID: userID,
		ChatID: chatID,
	})
	return nil
}
