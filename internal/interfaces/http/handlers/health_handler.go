package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
)

// Pinger is anything whose availability readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the Pinger interface.
type PingFunc func(ctx context.Context) error

// Ping calls the wrapped function.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	components map[string]Pinger
	timeout    time.Duration
	logger     logging.Logger
}

// NewHealthHandler returns a handler probing the named components.
func NewHealthHandler(components map[string]Pinger, logger logging.Logger) *HealthHandler {
	return &HealthHandler{
		components: components,
		timeout:    2 * time.Second,
		logger:     logger,
	}
}

// Liveness handles GET /healthz: the process is up.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz: every dependency answers within the probe
// timeout or the endpoint reports 503 with the failing components named.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	components := make(map[string]string, len(h.components))
	ready := true
	for name, p := range h.components {
		if err := p.Ping(ctx); err != nil {
			components[name] = "unavailable"
			ready = false
			h.logger.Warn("readiness probe failed",
				logging.String("component", name),
				logging.Err(err))
			continue
		}
		components[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "components": components})
}
