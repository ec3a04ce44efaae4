package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caselight/caselight/internal/application/caseops"
	"github.com/caselight/caselight/internal/domain/casefile"
	"github.com/caselight/caselight/internal/domain/deadline"
	"github.com/caselight/caselight/internal/domain/escalation"
	"github.com/caselight/caselight/internal/domain/gatekeeper"
	"github.com/caselight/caselight/internal/domain/health"
	"github.com/caselight/caselight/internal/domain/risk"
	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
	"github.com/caselight/caselight/pkg/types/common"
)

// CaseService is the slice of the caseops service the HTTP layer consumes.
type CaseService interface {
	CreateCase(ctx context.Context, in caseops.CreateCaseInput) (*casefile.Case, error)
	GetCase(ctx context.Context, caseID common.ID) (*casefile.Case, error)
	ListCases(ctx context.Context, opts ...casefile.QueryOption) ([]*casefile.Case, int64, error)
	UpdateServiceFacts(ctx context.Context, caseID common.ID, servedAt, returnFiledAt *time.Time) (*caseops.EvaluationSummary, error)
	RecordTaskEvent(ctx context.Context, caseID common.ID, kind string) (*caseops.EvaluationSummary, error)
	ConfirmAnswerDeadline(ctx context.Context, caseID common.ID, dueAt time.Time) (*caseops.EvaluationSummary, error)
	RecordDiscoveryRequest(ctx context.Context, caseID common.ID, label string, dueAt time.Time) (*caseops.EvaluationSummary, error)
	EvaluateCase(ctx context.Context, caseID common.ID, now time.Time) (*caseops.EvaluationSummary, error)
	CompleteWorkflowTask(ctx context.Context, caseID common.ID, taskKey, docketResult string) (*caseops.EvaluationSummary, error)

	GetRiskReport(ctx context.Context, caseID common.ID) (*risk.Snapshot, error)
	GetRiskHistory(ctx context.Context, caseID common.ID, limit int) ([]risk.Snapshot, error)
	ListDeadlines(ctx context.Context, caseID common.ID) ([]deadline.Deadline, error)
	ListReminders(ctx context.Context, caseID common.ID) ([]deadline.Reminder, error)
	ListEscalations(ctx context.Context, caseID common.ID) ([]escalation.Record, error)
	ListWorkflowTasks(ctx context.Context, caseID common.ID) ([]gatekeeper.Task, error)
	ListHealthAlerts(ctx context.Context, caseID common.ID, limit int) ([]health.Alert, error)
}

// CaseHandler serves the case resource tree.
type CaseHandler struct {
	service CaseService
	logger  logging.Logger
}

// NewCaseHandler returns a CaseHandler.
func NewCaseHandler(service CaseService, logger logging.Logger) *CaseHandler {
	return &CaseHandler{service: service, logger: logger}
}

func caseIDParam(c *gin.Context) common.ID {
	return common.ID(c.Param("caseID"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Case resource
// ─────────────────────────────────────────────────────────────────────────────

type createCaseRequest struct {
	Title       string `json:"title" binding:"required"`
	CourtName   string `json:"court_name"`
	CauseNumber string `json:"cause_number"`
}

// Create handles POST /cases.
func (h *CaseHandler) Create(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	created, err := h.service.CreateCase(c.Request.Context(), caseops.CreateCaseInput{
		Title:       req.Title,
		CourtName:   req.CourtName,
		CauseNumber: req.CauseNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, created)
}

// Get handles GET /cases/:caseID.
func (h *CaseHandler) Get(c *gin.Context) {
	found, err := h.service.GetCase(c.Request.Context(), caseIDParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, found)
}

// List handles GET /cases.
func (h *CaseHandler) List(c *gin.Context) {
	opts := []casefile.QueryOption{
		casefile.WithLimit(queryInt(c, "limit", 20)),
		casefile.WithOffset(queryInt(c, "offset", 0)),
	}
	if status := c.Query("status"); status != "" {
		opts = append(opts, casefile.WithStatus(casefile.CaseStatus(status)))
	}

	cases, total, err := h.service.ListCases(c.Request.Context(), opts...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cases, "total": total})
}

type serviceFactsRequest struct {
	ServedAt      *time.Time `json:"served_at"`
	ReturnFiledAt *time.Time `json:"return_filed_at"`
}

// UpdateServiceFacts handles PUT /cases/:caseID/service-facts.  Recording the
// facts kicks off an evaluation, so the response is the evaluation summary.
func (h *CaseHandler) UpdateServiceFacts(c *gin.Context) {
	var req serviceFactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	summary, err := h.service.UpdateServiceFacts(c.Request.Context(), caseIDParam(c), req.ServedAt, req.ReturnFiledAt)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}

type recordEventRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// RecordEvent handles POST /cases/:caseID/events.
func (h *CaseHandler) RecordEvent(c *gin.Context) {
	var req recordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	summary, err := h.service.RecordTaskEvent(c.Request.Context(), caseIDParam(c), req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, summary)
}

// Evaluate handles POST /cases/:caseID/evaluate.  A zero time in the service
// means "now"; the endpoint never accepts a caller-supplied instant.
func (h *CaseHandler) Evaluate(c *gin.Context) {
	summary, err := h.service.EvaluateCase(c.Request.Context(), caseIDParam(c), time.Time{})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}

// ─────────────────────────────────────────────────────────────────────────────
// Deadlines and reminders
// ─────────────────────────────────────────────────────────────────────────────

// ListDeadlines handles GET /cases/:caseID/deadlines.
func (h *CaseHandler) ListDeadlines(c *gin.Context) {
	deadlines, err := h.service.ListDeadlines(c.Request.Context(), caseIDParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, deadlines)
}

type confirmDeadlineRequest struct {
	DueAt time.Time `json:"due_at" binding:"required"`
}

// ConfirmAnswerDeadline handles POST /cases/:caseID/deadlines/answer/confirm.
func (h *CaseHandler) ConfirmAnswerDeadline(c *gin.Context) {
	var req confirmDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	summary, err := h.service.ConfirmAnswerDeadline(c.Request.Context(), caseIDParam(c), req.DueAt)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}

type discoveryRequestRequest struct {
	Label string    `json:"label"`
	DueAt time.Time `json:"due_at" binding:"required"`
}

// RecordDiscoveryRequest handles POST /cases/:caseID/deadlines/discovery.  It
// records a served discovery request set and the deadline for responding to
// it; the label keeps concurrent sets apart.
func (h *CaseHandler) RecordDiscoveryRequest(c *gin.Context) {
	var req discoveryRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	summary, err := h.service.RecordDiscoveryRequest(c.Request.Context(), caseIDParam(c), req.Label, req.DueAt)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, summary)
}

// ListReminders handles GET /cases/:caseID/reminders.
func (h *CaseHandler) ListReminders(c *gin.Context) {
	reminders, err := h.service.ListReminders(c.Request.Context(), caseIDParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, reminders)
}

// ─────────────────────────────────────────────────────────────────────────────
// Risk, escalations, alerts
// ─────────────────────────────────────────────────────────────────────────────

// GetRiskReport handles GET /cases/:caseID/risk.
func (h *CaseHandler) GetRiskReport(c *gin.Context) {
	snapshot, err := h.service.GetRiskReport(c.Request.Context(), caseIDParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, snapshot)
}

// GetRiskHistory handles GET /cases/:caseID/risk/history.
func (h *CaseHandler) GetRiskHistory(c *gin.Context) {
	snapshots, err := h.service.GetRiskHistory(c.Request.Context(), caseIDParam(c), queryInt(c, "limit", 30))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, snapshots)
}

// ListEscalations handles GET /cases/:caseID/escalations.
func (h *CaseHandler) ListEscalations(c *gin.Context) {
	records, err := h.service.ListEscalations(c.Request.Context(), caseIDParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, records)
}

// ListHealthAlerts handles GET /cases/:caseID/alerts.
func (h *CaseHandler) ListHealthAlerts(c *gin.Context) {
	alerts, err := h.service.ListHealthAlerts(c.Request.Context(), caseIDParam(c), queryInt(c, "limit", 30))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, alerts)
}

// ─────────────────────────────────────────────────────────────────────────────
// Workflow
// ─────────────────────────────────────────────────────────────────────────────

// ListWorkflowTasks handles GET /cases/:caseID/workflow.
func (h *CaseHandler) ListWorkflowTasks(c *gin.Context) {
	tasks, err := h.service.ListWorkflowTasks(c.Request.Context(), caseIDParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, tasks)
}

type completeTaskRequest struct {
	DocketResult string `json:"docket_result"`
}

// CompleteWorkflowTask handles POST /cases/:caseID/workflow/:taskKey/complete.
// The body is optional; only the docket check carries a result.
func (h *CaseHandler) CompleteWorkflowTask(c *gin.Context) {
	var req completeTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request body"))
			return
		}
	}

	summary, err := h.service.CompleteWorkflowTask(c.Request.Context(), caseIDParam(c), c.Param("taskKey"), req.DocketResult)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}
