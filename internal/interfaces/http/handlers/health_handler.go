package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/common"
)

// HealthChecker is implemented by infrastructure clients that can probe
// their backing service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Component pairs a checker with its display name.
type Component struct {
	Name    string
	Checker HealthChecker
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	components   []Component
	checkTimeout time.Duration
	log          logging.Logger
}

// NewHealthHandler builds the handler over the given dependency probes.
func NewHealthHandler(log logging.Logger, components ...Component) *HealthHandler {
	return &HealthHandler{
		components:   components,
		checkTimeout: 2 * time.Second,
		log:          log.Named("health"),
	}
}

// Liveness answers "is the process up" and never touches dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"status": common.HealthUp})
}

// Readiness probes every registered component. Any failing dependency turns
// the probe 503 so the instance is pulled from rotation.
func (h *HealthHandler) Readiness(c *gin.Context) {
	results := make([]common.ComponentHealth, 0, len(h.components))
	status := http.StatusOK

	for _, component := range h.components {
		results = append(results, h.check(c.Request.Context(), component))
		if results[len(results)-1].Status != common.HealthUp {
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, common.APIResponse[[]common.ComponentHealth]{
		Success:   status == http.StatusOK,
		Data:      results,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

func (h *HealthHandler) check(ctx context.Context, component Component) common.ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	start := time.Now()
	err := component.Checker.HealthCheck(ctx)
	latency := time.Since(start)

	if err != nil {
		h.log.Warn("component unhealthy",
			logging.String("component", component.Name),
			logging.Err(err))
		return common.ComponentHealth{
			Name:    component.Name,
			Status:  common.HealthDown,
			Latency: latency,
			Message: err.Error(),
		}
	}
	return common.ComponentHealth{
		Name:    component.Name,
		Status:  common.HealthUp,
		Latency: latency,
	}
}
