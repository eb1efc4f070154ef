package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ragchat/internal/chat_service/service"
	"ragchat/internal/models"
	"ragchat/pkg/logger"
)

// Handler exposes the chat service over HTTP.
type Handler struct {
	svc *service.Service
	log *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Root answers the unauthenticated liveness probe.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "RAG Chat API is running", "status": "healthy"})
}

// Health reports service and backing-store health.
func (h *Handler) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if err := h.svc.Health(c.Request.Context()); err != nil {
		h.log.WithError(err).Warn("health check failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "timestamp": time.Now().UTC()})
}

// Chat handles one conversational turn.
func (h *Handler) Chat(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required and must be at most 4000 characters"})
		return
	}

	resp := h.svc.ProcessChat(c.Request.Context(), identity, req)
	c.JSON(http.StatusOK, resp)
}

// History returns the turns of one chat.
func (h *Handler) History(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	history, err := h.svc.GetHistory(c.Request.Context(), identity.SubjectID, c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// Sessions lists the caller's chat sessions.
func (h *Handler) Sessions(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	sessions, err := h.svc.ListSessions(c.Request.Context(), identity.SubjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// DeleteSession removes one chat and its turns.
func (h *Handler) DeleteSession(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.svc.DeleteSession(c.Request.Context(), identity.SubjectID, c.Param("chat_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
}

// Upload ingests one PDF document.
func (h *Handler) Upload(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	documentID, err := h.svc.IngestDocument(c.Request.Context(), identity.SubjectID, fileHeader.Filename, data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document uploaded successfully", "document_id": documentID})
}

type searchRequestBody struct {
	Query string `json:"query" binding:"required,min=1"`
	K     int    `json:"k"`
}

// Search runs an explicit similarity search over the caller's documents.
func (h *Handler) Search(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var body searchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	hits, err := h.svc.SearchDocuments(c.Request.Context(), identity.SubjectID, body.Query, body.K)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// Documents lists the caller's indexed passages as previews.
func (h *Handler) Documents(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	previews, err := h.svc.ListDocuments(c.Request.Context(), identity.SubjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": previews})
}

// Uploads lists the caller's upload registry records.
func (h *Handler) Uploads(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	uploads, err := h.svc.ListUploads(c.Request.Context(), identity.SubjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": uploads})
}
