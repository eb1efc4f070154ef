package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ragchat/internal/models"
)

// writeError maps the error taxonomy onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message so internals never leak.
func writeError(c *gin.Context, err error) {
	var (
		authErr    *models.AuthError
		validation *models.ValidationError
		notFound   *models.NotFoundError
		embedding  *models.EmbeddingError
		indexing   *models.IndexingError
		retrieval  *models.RetrievalError
	)

	switch {
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &embedding), errors.As(err, &indexing), errors.As(err, &retrieval):
		c.JSON(http.StatusBadGateway, gin.H{"error": "a backing service failed, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
