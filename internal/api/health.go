package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/support-relay/internal/kv"
	"github.com/ashureev/support-relay/internal/store"
	"github.com/go-chi/chi/v5"
)

const serviceName = "support-relay"

// HealthHandler handles the liveness endpoint.
type HealthHandler struct {
	repo    store.Repository
	kv      kv.Store
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, kvStore kv.Store, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, kv: kvStore, timeout: timeout}
}

// Health returns the service identity and the status of its backing stores.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"service": serviceName,
		"status":  "healthy",
		"checks":  checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "dependency", "database", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if err := h.kv.Ping(ctx); err != nil {
		slog.Error("Health check failed", "dependency", "fast_store", "error", err)
		status["status"] = "degraded"
		checks["fast_store"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["fast_store"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
