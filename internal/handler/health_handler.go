package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"solarbill/internal/domain"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PathLister exposes the configured extraction paths.
type PathLister interface {
	Paths() []domain.ProcessingPath
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db       Pinger
	pipeline PathLister
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, pipeline PathLister) *HealthHandler {
	return &HealthHandler{db: db, pipeline: pipeline}
}

// Liveness handles GET /healthz
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz. A pipeline without extraction paths is
// still ready; it serves fallback records.
// @Summary Readiness probe
// @Description Checks the database and reports the configured extraction paths
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database not reachable"})
		return
	}
	paths := []domain.ProcessingPath{}
	if h.pipeline != nil {
		paths = append(paths, h.pipeline.Paths()...)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "extraction_paths": paths, "degraded": len(paths) == 0})
}
