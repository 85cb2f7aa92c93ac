package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/foodsync/food-sync/app/imageproc"
	"github.com/foodsync/food-sync/app/pipeline"
	"github.com/foodsync/food-sync/app/sheets"
)

// EntryReader reads back recent rows for the /entries endpoint.
type EntryReader interface {
	GetRecentEntries(ctx context.Context, limit int) ([]sheets.Entry, error)
}

var _ EntryReader = (*sheets.Client)(nil)

type Handler struct {
	orchestrator *pipeline.Orchestrator
	entries      EntryReader
	version      string
	startedAt    time.Time
}

func NewHandler(orchestrator *pipeline.Orchestrator, entries EntryReader, version string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		entries:      entries,
		version:      version,
		startedAt:    time.Now(),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"version":      h.version,
		"heif_support": imageproc.HEIFSupported(),
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := h.orchestrator.Stats()

	c.JSON(http.StatusOK, gin.H{
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"cycles":    stats.Cycles,
		"processed": stats.Processed,
		"last_cycle_at": func() string {
			if stats.LastCycleAt.IsZero() {
				return ""
			}
			return stats.LastCycleAt.Format(time.RFC3339)
		}(),
		"last_error": stats.LastError,
	})
}

func (h *Handler) GetRecentEntries(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	entries, err := h.entries.GetRecentEntries(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Failed to read recent entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read entries"})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		out = append(out, gin.H{
			"date":      entry.Date,
			"food_name": entry.FoodName,
			"recipe":    entry.Recipe,
			"photo_url": entry.PhotoURL,
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": out, "count": len(out)})
}
