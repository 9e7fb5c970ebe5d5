package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/quest-engine/internal/logger"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ContentCounter reports how much content is loaded.
type ContentCounter interface {
	Counts() (quests, recipes, items, characters int)
}

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
}

type HealthHandler struct {
	progress Pinger
	content  ContentCounter
	logger   *slog.Logger
}

func NewHealthHandler(progress Pinger, content ContentCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		progress: progress,
		content:  content,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	overallStatus := "healthy"

	if err := h.progress.Ping(ctx); err != nil {
		logger.WithError(h.logger, err).Warn("Progress store health check failed")
		components["progress_store"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["progress_store"] = "healthy"
	}

	if h.content != nil {
		quests, recipes, items, characters := h.content.Counts()
		components["content"] = map[string]int{
			"quests":     quests,
			"recipes":    recipes,
			"items":      items,
			"characters": characters,
		}
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "quest-engine",
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(h.logger, err).Error("Error encoding health response",
			"method", r.Method,
			"path", r.URL.Path)
	}
}
