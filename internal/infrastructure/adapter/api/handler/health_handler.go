package handler

import (
	"context"
	"net/http"
	"time"

	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/database"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type poolReporter interface {
	PoolMetrics() database.ConnectionPoolMetrics
}

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	db           Pinger // nil for the in-memory store
	driver       string
	timeProvider coreport.TimeProvider
	startedAt    time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, driver string, timeProvider coreport.TimeProvider) *HealthHandler {
	return &HealthHandler{
		db:           db,
		driver:       driver,
		timeProvider: timeProvider,
		startedAt:    timeProvider.Now(),
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	dbStatus := gin.H{"driver": h.driver, "status": "up"}

	if h.db != nil {
		ctx, cancel := h.timeProvider.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			dbStatus["status"] = "down"
			dbStatus["error"] = err.Error()
		}
		if r, ok := h.db.(poolReporter); ok {
			dbStatus["pool"] = r.PoolMetrics()
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"database": dbStatus,
		"uptime":   h.timeProvider.Since(h.startedAt).Round(time.Second).String(),
	})
}
