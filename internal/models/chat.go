package models

import "time"

// Identity is the verified caller identity returned by the auth layer. Only
// SubjectID is required; it is the sole tenancy key across all stored data.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatRequest is the inbound payload for one chat turn. An empty ChatID
// starts a new session.
type ChatRequest struct {
	Message string `json:"message" binding:"required,min=1,max=4000"`
	ChatID  string `json:"chat_id"`
}

// SourceRef is one grounding passage attached to a chat response. Content is
// truncated for display; SimilarityScore is normalized to [0, 1] where 1
// means identical.
type SourceRef struct {
	Content         string            `json:"content"`
	Metadata        map[string]string `json:"metadata"`
	SimilarityScore float64           `json:"similarity_score"`
}

// ChatResponse is the outbound payload for one chat turn. Degraded marks the
// fallback branch taken when retrieval, completion, or persistence failed;
// the payload is still fully formed and the field is not serialized.
type ChatResponse struct {
	Response  string      `json:"response"`
	ChatID    string      `json:"chat_id"`
	Sources   []SourceRef `json:"sources"`
	Timestamp time.Time   `json:"timestamp"`
	Degraded  bool        `json:"-"`
}

// Turn is one stored exchange: a user message plus the assistant response,
// written once and never mutated.
type Turn struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	UserID    string      `json:"user_id"`
	Message   string      `json:"message"`
	Response  string      `json:"response"`
	Sources   []SourceRef `json:"sources"`
	CreatedAt time.Time   `json:"created_at"`
}

// HistoryEntry is the API-facing shape of a stored turn. ID is synthetic:
// "{chat_id}_{index}" by position in the ascending-timestamp sequence.
type HistoryEntry struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	UserID    string      `json:"user_id"`
	Message   string      `json:"message"`
	Response  string      `json:"response"`
	Sources   []SourceRef `json:"sources"`
	Timestamp time.Time   `json:"timestamp"`
}

// Session is a derived view over the turns sharing a chat id. It is never
// stored; it exists only while at least one turn references its ChatID.
type Session struct {
	ChatID        string    `json:"chat_id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
}

// PassageHit is one similarity-search result. Score is normalized to [0, 1].
type PassageHit struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"similarity_score"`
}

// DocumentPreview is a truncated view of one indexed passage, used by the
// document listing endpoint.
type DocumentPreview struct {
	ID                   string            `json:"id"`
	Content              string            `json:"content"`
	Metadata             map[string]string `json:"metadata"`
	IndexedAt            time.Time         `json:"indexed_at"`
	FullContentAvailable bool              `json:"full_content_available"`
}

// Upload lifecycle states recorded in the upload registry.
const (
	UploadStatusReceived  = "received"
	UploadStatusProcessed = "processed"
	UploadStatusFailed    = "failed"
)

// DocumentUpload is the registry record for one uploaded file.
type DocumentUpload struct {
	DocumentID   string     `bson:"_id" json:"document_id"`
	UserID       string     `bson:"user_id" json:"user_id"`
	Filename     string     `bson:"filename" json:"filename"`
	FileSize     int64      `bson:"file_size" json:"file_size"`
	Status       string     `bson:"status" json:"status"`
	PassageCount int        `bson:"passage_count" json:"passage_count"`
	UploadedAt   time.Time  `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	Error        string     `bson:"error,omitempty" json:"error,omitempty"`
}
