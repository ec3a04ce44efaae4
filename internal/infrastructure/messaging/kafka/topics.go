// Package kafka carries the event plumbing: topic catalog, the JSON event
// envelope, and producer/consumer wrappers over segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
	apperrors "github.com/caselight/caselight/pkg/errors"
)

// Topic names.  A deployment-level prefix from the kafka config is applied by
// the producer, not baked into these constants.
const (
	TopicEvaluationRequested  = "case.evaluation_requested"
	TopicCaseEvaluated        = "case.evaluated"
	TopicDeadlineConfirmed    = "deadline.confirmed"
	TopicEscalationTriggered  = "escalation.triggered"
	TopicHealthAlertRaised    = "health.alert_raised"
	TopicRiskSnapshotRecorded = "risk.snapshot_recorded"
	TopicWorkflowAdvanced     = "workflow.advanced"
	TopicDeadLetter           = "dead_letter.default"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one consumed message.  A non-nil error triggers
// the consumer's retry-then-dead-letter path.
type MessageHandler func(ctx context.Context, msg *Message) error

// EventEnvelope is the wire format shared by every topic.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Event payloads
// ─────────────────────────────────────────────────────────────────────────────

type EvaluationRequestedPayload struct {
	CaseID      string    `json:"case_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

type CaseEvaluatedPayload struct {
	CaseID            string    `json:"case_id"`
	Trigger           string    `json:"trigger"`
	DeadlinesComputed int       `json:"deadlines_computed"`
	EscalationsFired  int       `json:"escalations_fired"`
	RiskScore         int       `json:"risk_score"`
	RiskLevel         string    `json:"risk_level"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
}

type DeadlineConfirmedPayload struct {
	CaseID      string    `json:"case_id"`
	DeadlineKey string    `json:"deadline_key"`
	DueAt       time.Time `json:"due_at"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type EscalationTriggeredPayload struct {
	CaseID      string    `json:"case_id"`
	DeadlineID  string    `json:"deadline_id"`
	Level       int       `json:"level"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggered_at"`
}

type HealthAlertRaisedPayload struct {
	CaseID  string `json:"case_id"`
	Day     string `json:"day"`
	Level   int    `json:"level"`
	Message string `json:"message"`
}

type RiskSnapshotRecordedPayload struct {
	CaseID       string    `json:"case_id"`
	Day          string    `json:"day"`
	OverallScore int       `json:"overall_score"`
	Level        string    `json:"level"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

type WorkflowAdvancedPayload struct {
	CaseID  string `json:"case_id"`
	TaskKey string `json:"task_key"`
	Action  string `json:"action"` // unlock_task or complete_task
	Status  string `json:"status"`
}

// NewEventEnvelope wraps a payload in a v1 envelope.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return apperrors.New(apperrors.ErrCodeValidation, "event payload is empty")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

// ToMessage serializes the envelope for publishing, mirroring the envelope
// identity into headers so consumers can route without unmarshaling.
func (e *EventEnvelope) ToMessage(topic string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to marshal event envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   []byte(e.EventID),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// ParseEnvelope reads an EventEnvelope back out of a consumed message.
func ParseEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "failed to unmarshal event envelope")
	}
	return &env, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Topic management
// ─────────────────────────────────────────────────────────────────────────────

// TopicConfig describes one topic to ensure at startup.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// ConnInterface abstracts kafka.Conn for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates and inspects topics.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMessageQueueError, "failed to dial kafka broker")
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

// NewTopicManagerWithConn wires a preexisting connection, used by tests.
func NewTopicManagerWithConn(conn ConnInterface, logger logging.Logger) *TopicManager {
	return &TopicManager{conn: conn, logger: logger}
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return apperrors.New(apperrors.ErrCodeValidation, "topic name required")
	}
	if cfg.NumPartitions <= 0 || cfg.ReplicationFactor <= 0 {
		return apperrors.New(apperrors.ErrCodeValidation, "partitions and replication factor must be positive")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = []kafka.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs)},
		}
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		// CreateTopics is not idempotent across broker versions; an existing
		// topic is success.
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return apperrors.Wrap(err, apperrors.ErrCodeMessageQueueError, "failed to create topic")
	}
	m.logger.Info("created topic", logging.String("topic", cfg.Name))
	return nil
}

func (m *TopicManager) TopicExists(_ context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) EnsureDefaultTopics(ctx context.Context) error {
	return m.EnsureTopics(ctx, DefaultTopics())
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// DefaultTopics is the full catalog with retention tuned per stream: request
// and notification streams are short-lived, audit-grade streams keep 90 days.
func DefaultTopics() []TopicConfig {
	const day = int64(24 * 3600 * 1000)
	return []TopicConfig{
		{Name: TopicEvaluationRequested, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 3 * day},
		{Name: TopicCaseEvaluated, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: TopicDeadlineConfirmed, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
		{Name: TopicEscalationTriggered, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 90 * day},
		{Name: TopicHealthAlertRaised, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 90 * day},
		{Name: TopicRiskSnapshotRecorded, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
		{Name: TopicWorkflowAdvanced, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
		{Name: TopicDeadLetter, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
	}
}
