// Package http assembles the gin route tree and HTTP server for the API.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/prometheus"
	"github.com/caselight/caselight/internal/interfaces/http/handlers"
	"github.com/caselight/caselight/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.
type RouterConfig struct {
	CaseHandler   *handlers.CaseHandler
	HealthHandler *handlers.HealthHandler

	Logger     logging.Logger
	AppMetrics *prometheus.AppMetrics
	Collector  prometheus.MetricsCollector
	CORS       *middleware.CORSConfig

	// Mode is gin's run mode: debug, release, or test.
	Mode string
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	r.Use(middleware.Metrics(cfg.AppMetrics))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.Collector != nil {
		r.GET("/metrics", gin.WrapH(cfg.Collector.Handler()))
	}

	api := r.Group("/api/v1")
	registerCaseRoutes(api, cfg.CaseHandler)

	return r
}

func registerCaseRoutes(api *gin.RouterGroup, h *handlers.CaseHandler) {
	if h == nil {
		return
	}

	cases := api.Group("/cases")
	cases.POST("", h.Create)
	cases.GET("", h.List)

	item := cases.Group("/:caseID")
	item.GET("", h.Get)
	item.PUT("/service-facts", h.UpdateServiceFacts)
	item.POST("/events", h.RecordEvent)
	item.POST("/evaluate", h.Evaluate)

	item.GET("/deadlines", h.ListDeadlines)
	item.POST("/deadlines/answer/confirm", h.ConfirmAnswerDeadline)
	item.POST("/deadlines/discovery", h.RecordDiscoveryRequest)
	item.GET("/reminders", h.ListReminders)

	item.GET("/risk", h.GetRiskReport)
	item.GET("/risk/history", h.GetRiskHistory)
	item.GET("/escalations", h.ListEscalations)
	item.GET("/alerts", h.ListHealthAlerts)

	item.GET("/workflow", h.ListWorkflowTasks)
	item.POST("/workflow/:taskKey/complete", h.CompleteWorkflowTask)
}
