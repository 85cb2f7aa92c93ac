package api

import (
	"github.com/gin-gonic/gin"
)

// NewServer creates the monitor-mode status server. It exposes read-only
// endpoints only; the pipeline itself is never driven over HTTP.
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handler.HealthCheck)
	r.GET("/stats", handler.GetStats)
	r.GET("/entries", handler.GetRecentEntries)

	return r
}
