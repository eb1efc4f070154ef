package api

import (
	"github.com/gin-gonic/gin"

	"ragchat/internal/auth"
	"ragchat/internal/config"
	"ragchat/pkg/ratelimiter"
)

// SetupRouter wires the HTTP surface: public liveness endpoints plus the
// authenticated /api group.
func SetupRouter(h *Handler, verifier auth.Verifier, mw config.MiddlewareConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(AuthMiddleware(verifier))
	if mw.RateLimiter.Enabled {
		limiter := ratelimiter.NewTokenBucket(mw.RateLimiter.Rate, mw.RateLimiter.Capacity)
		api.Use(RateLimitMiddleware(limiter))
	}
	{
		api.POST("/chat", h.Chat)
		api.GET("/chat/:chat_id/history", h.History)
		api.GET("/chats", h.Sessions)
		api.DELETE("/chat/:chat_id", h.DeleteSession)
		api.POST("/upload", h.Upload)
		api.POST("/search", h.Search)
		api.GET("/documents", h.Documents)
		api.GET("/uploads", h.Uploads)
	}

	return r
}
