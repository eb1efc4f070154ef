package vectorstore

import (
	"sort"

	"ragchat/internal/models"
)

// sessionTitleLimit bounds the derived session title length in runes.
const sessionTitleLimit = 50

// FoldSessions groups turns by chat id into session summaries. Turns must be
// sorted ascending by creation time; the first turn of each chat names the
// session. Results are ordered by last activity, most recent first.
func FoldSessions(turns []models.Turn) []models.Session {
	byChat := make(map[string]*models.Session)
	var order []string

	for _, t := range turns {
		s, ok := byChat[t.ChatID]
		if !ok {
			s = &models.Session{
				ChatID:        t.ChatID,
				UserID:        t.UserID,
				Title:         SessionTitle(t.Message),
				CreatedAt:     t.CreatedAt,
				LastMessageAt: t.CreatedAt,
			}
			byChat[t.ChatID] = s
			order = append(order, t.ChatID)
		}
		if t.CreatedAt.Before(s.CreatedAt) {
			s.CreatedAt = t.CreatedAt
			s.Title = SessionTitle(t.Message)
		}
		if t.CreatedAt.After(s.LastMessageAt) {
			s.LastMessageAt = t.CreatedAt
		}
		s.MessageCount++
	}

	sessions := make([]models.Session, 0, len(order))
	for _, chatID := range order {
		sessions = append(sessions, *byChat[chatID])
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastMessageAt.After(sessions[j].LastMessageAt)
	})
	return sessions
}

// SortTurns orders turns ascending by creation time, ties broken by id so
// the order is deterministic for turns recorded in the same instant.
func SortTurns(turns []models.Turn) {
	sort.Slice(turns, func(i, j int) bool {
		if turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].ID < turns[j].ID
		}
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
}

// SessionTitle derives a session title from its first message.
func SessionTitle(message string) string {
	r := []rune(message)
	if len(r) <= sessionTitleLimit {
		return message
	}
	return string(r[:sessionTitleLimit]) + "..."
}
