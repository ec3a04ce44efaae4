package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	return NewAppMetrics(c), c
}

func TestNewAppMetrics_AllMetricsRegistered(t *testing.T) {
	m, _ := newTestAppMetrics(t)
	require.NotNil(t, m)

	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.EvaluationsTotal)
	assert.NotNil(t, m.DeadlinesComputedTotal)
	assert.NotNil(t, m.RiskScoreDistribution)
	assert.NotNil(t, m.EscalationsEmittedTotal)
	assert.NotNil(t, m.HealthAlertsEmittedTotal)
	assert.NotNil(t, m.MessagesSuppressedTotal)
	assert.NotNil(t, m.WorkflowTransitionsTotal)
	assert.NotNil(t, m.EventsPublishedTotal)
	assert.NotNil(t, m.ErrorsTotal)
}

func TestRecordHTTPRequest(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordHTTPRequest(m, "GET", "/api/v1/cases", 200, 100*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_http_requests_total{method="GET",path="/api/v1/cases",status_code="200"} 1`)
	assert.Contains(t, out, `test_unit_http_request_duration_seconds_count{method="GET",path="/api/v1/cases"} 1`)
}

func TestRecordEvaluation_SuccessAndFailure(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordEvaluation(m, "api", nil, 50*time.Millisecond)
	RecordEvaluation(m, "api", errors.New("boom"), 50*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_evaluations_total{status="success",trigger="api"} 1`)
	assert.Contains(t, out, `test_unit_evaluations_total{status="failure",trigger="api"} 1`)
	assert.Contains(t, out, `test_unit_evaluation_duration_seconds_count{trigger="api"} 2`)
}

func TestRecordRiskScore(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordRiskScore(m, "moderate", 65)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_risk_snapshots_total{level="moderate"} 1`)
	assert.Contains(t, out, `test_unit_risk_score_bucket{level="moderate",le="80"} 1`)
	assert.Contains(t, out, `test_unit_risk_score_bucket{level="moderate",le="60"} 0`)
}

func TestRecordSuppression(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordSuppression(m, "escalation")
	RecordSuppression(m, "escalation")
	RecordSuppression(m, "health")

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_messages_suppressed_total{source="escalation"} 2`)
	assert.Contains(t, out, `test_unit_messages_suppressed_total{source="health"} 1`)
}

func TestRecordDBQuery_ErrorIncrementsErrors(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordDBQuery(m, "deadline", "upsert", time.Millisecond, nil)
	RecordDBQuery(m, "deadline", "upsert", time.Millisecond, errors.New("timeout"))

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_db_query_duration_seconds_count{operation="upsert",repository="deadline"} 2`)
	assert.Contains(t, out, `test_unit_errors_total{code="query_error",component="deadline"} 1`)
}

func TestRecordCacheAccess(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordCacheAccess(m, "risk_snapshot", true)
	RecordCacheAccess(m, "risk_snapshot", false)
	RecordCacheAccess(m, "risk_snapshot", false)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_cache_hits_total{cache="risk_snapshot"} 1`)
	assert.Contains(t, out, `test_unit_cache_misses_total{cache="risk_snapshot"} 2`)
}

func TestRecordEventPublished(t *testing.T) {
	m, c := newTestAppMetrics(t)

	RecordEventPublished(m, "caselight.escalation.triggered", nil)
	RecordEventPublished(m, "caselight.escalation.triggered", errors.New("broker down"))

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_events_published_total{status="success",topic="caselight.escalation.triggered"} 1`)
	assert.Contains(t, out, `test_unit_events_published_total{status="failure",topic="caselight.escalation.triggered"} 1`)
}
