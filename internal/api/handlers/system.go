package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/marina/internal/queue"
	"github.com/your-org/marina/internal/storage"
)

// SystemHandler reports liveness and readiness. A detection travels through
// Postgres (evidence), MinIO (images) and NATS (the relay boundary); readiness
// means all three answer.
type SystemHandler struct {
	db     *storage.PostgresStore
	images *storage.MinIOStore
	relay  *queue.Producer
}

func NewSystemHandler(db *storage.PostgresStore, images *storage.MinIOStore, relay *queue.Producer) *SystemHandler {
	return &SystemHandler{db: db, images: images, relay: relay}
}

// Healthz reports process liveness only. It must stay dependency-free so a
// wedged backing service does not get the process restarted.
func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	type dependency struct {
		name string
		ping func() error
	}
	deps := []dependency{
		{"postgres", func() error { return h.db.Ping(ctx) }},
		{"minio", func() error { return h.images.Ping(ctx) }},
		{"nats", func() error { return h.relay.Ping() }},
	}

	checks := make(map[string]string, len(deps))
	ready := true
	for _, dep := range deps {
		if err := dep.ping(); err != nil {
			checks[dep.name] = err.Error()
			ready = false
			slog.Warn("readiness check failed", "dependency", dep.name, "error", err)
			continue
		}
		checks[dep.name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
