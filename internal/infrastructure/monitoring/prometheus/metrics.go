package prometheus

import (
	"fmt"
	"time"
)

// AppMetrics holds every metric the service records.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Case evaluation pipeline
	EvaluationsTotal   CounterVec
	EvaluationDuration HistogramVec

	// Deadline engine
	DeadlinesComputedTotal  CounterVec
	RemindersScheduledTotal CounterVec

	// Risk engine
	RiskScoreDistribution HistogramVec
	RiskSnapshotsTotal    CounterVec

	// Escalation and health alerts
	EscalationsEmittedTotal   CounterVec
	EscalationsDuplicateTotal CounterVec
	HealthAlertsEmittedTotal  CounterVec
	MessagesSuppressedTotal   CounterVec
	WorkflowTransitionsTotal  CounterVec

	// Infrastructure
	DBQueryDuration      HistogramVec
	CacheHitsTotal       CounterVec
	CacheMissesTotal     CounterVec
	EventsPublishedTotal CounterVec

	ErrorsTotal CounterVec
}

// Default buckets.
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultDBDurationBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	// RiskScoreBuckets mirror the risk level thresholds so the histogram can
	// answer "how many cases sit below each band".
	RiskScoreBuckets = []float64{0, 20, 40, 60, 80, 100}
)

// NewAppMetrics registers all service metrics against the collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	// Evaluation pipeline
	m.EvaluationsTotal = collector.RegisterCounter("evaluations_total", "Case evaluations run", "trigger", "status")
	m.EvaluationDuration = collector.RegisterHistogram("evaluation_duration_seconds", "Case evaluation duration", DefaultHTTPDurationBuckets, "trigger")

	// Deadlines
	m.DeadlinesComputedTotal = collector.RegisterCounter("deadlines_computed_total", "Deadlines produced by the calculator", "rule_set", "deadline_key")
	m.RemindersScheduledTotal = collector.RegisterCounter("reminders_scheduled_total", "Reminders scheduled for deadlines", "deadline_key")

	// Risk
	m.RiskScoreDistribution = collector.RegisterHistogram("risk_score", "Overall risk scores produced per evaluation", RiskScoreBuckets, "level")
	m.RiskSnapshotsTotal = collector.RegisterCounter("risk_snapshots_total", "Risk snapshots persisted", "level")

	// Escalations, health alerts, workflow
	m.EscalationsEmittedTotal = collector.RegisterCounter("escalations_emitted_total", "Escalation messages emitted", "level")
	m.EscalationsDuplicateTotal = collector.RegisterCounter("escalations_duplicate_total", "Escalations skipped as already recorded", "level")
	m.HealthAlertsEmittedTotal = collector.RegisterCounter("health_alerts_emitted_total", "Case-health alerts emitted", "level")
	m.MessagesSuppressedTotal = collector.RegisterCounter("messages_suppressed_total", "Outbound messages dropped by the safety filter", "source")
	m.WorkflowTransitionsTotal = collector.RegisterCounter("workflow_transitions_total", "Workflow task transitions applied", "task_key", "action")

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "repository", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "Domain events published to Kafka", "topic", "status")

	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "code")

	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Recording helpers
// ─────────────────────────────────────────────────────────────────────────────

// RecordHTTPRequest updates the HTTP counters and latency histogram.
func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	status := fmt.Sprintf("%d", statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEvaluation records one full evaluation pass.
func RecordEvaluation(m *AppMetrics, trigger string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.EvaluationsTotal.WithLabelValues(trigger, status).Inc()
	m.EvaluationDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordRiskScore records a computed overall score and its level.
func RecordRiskScore(m *AppMetrics, level string, score int) {
	m.RiskScoreDistribution.WithLabelValues(level).Observe(float64(score))
	m.RiskSnapshotsTotal.WithLabelValues(level).Inc()
}

// RecordSuppression counts a message dropped by the safety filter.  source
// names the producing engine, e.g. "escalation" or "health".
func RecordSuppression(m *AppMetrics, source string) {
	m.MessagesSuppressedTotal.WithLabelValues(source).Inc()
}

// RecordDBQuery records query latency and, on error, increments the error counter.
func RecordDBQuery(m *AppMetrics, repository, operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(repository, operation).Observe(duration.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues(repository, "query_error").Inc()
	}
}

// RecordCacheAccess counts a cache hit or miss.
func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordEventPublished counts a Kafka publish attempt.
func RecordEventPublished(m *AppMetrics, topic string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}
