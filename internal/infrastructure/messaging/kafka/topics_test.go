package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselight/caselight/internal/infrastructure/monitoring/logging"
)

func TestNewEventEnvelope(t *testing.T) {
	env, err := NewEventEnvelope("risk.snapshot_recorded", "caselight", RiskSnapshotRecordedPayload{
		CaseID:       "case-1",
		Day:          "2026-08-31",
		OverallScore: 72,
		Level:        "moderate",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "risk.snapshot_recorded", env.EventType)
	assert.Equal(t, "caselight", env.Source)
	assert.Equal(t, "v1", env.SchemaVersion)
	assert.False(t, env.Timestamp.IsZero())

	var decoded RiskSnapshotRecordedPayload
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, 72, decoded.OverallScore)
}

func TestEventEnvelope_DecodeEmptyPayload(t *testing.T) {
	env := &EventEnvelope{}
	var out RiskSnapshotRecordedPayload
	assert.Error(t, env.DecodePayload(&out))
}

func TestEventEnvelope_ToMessage(t *testing.T) {
	env, err := NewEventEnvelope("workflow.advanced", "caselight", WorkflowAdvancedPayload{
		CaseID:  "case-1",
		TaskKey: "wait_for_answer",
		Action:  "unlock_task",
		Status:  "todo",
	})
	require.NoError(t, err)

	msg, err := env.ToMessage(TopicWorkflowAdvanced)
	require.NoError(t, err)

	assert.Equal(t, TopicWorkflowAdvanced, msg.Topic)
	assert.Equal(t, env.EventID, string(msg.Key))
	assert.Equal(t, "workflow.advanced", msg.Headers["event_type"])
	assert.Equal(t, "v1", msg.Headers["schema_version"])

	parsed, err := ParseEnvelope(&Message{Topic: msg.Topic, Value: msg.Value})
	require.NoError(t, err)
	assert.Equal(t, env.EventID, parsed.EventID)
}

func TestParseEnvelope_Invalid(t *testing.T) {
	_, err := ParseEnvelope(&Message{})
	assert.Error(t, err)

	_, err = ParseEnvelope(&Message{Value: []byte("not json")})
	assert.Error(t, err)
}

type mockConn struct {
	created    []kafka.TopicConfig
	createErr  error
	partitions map[string][]kafka.Partition
	closed     bool
}

func (c *mockConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.created = append(c.created, topics...)
	return nil
}

func (c *mockConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	parts, ok := c.partitions[topics[0]]
	if !ok {
		return nil, errors.New("unknown topic")
	}
	return parts, nil
}

func (c *mockConn) Close() error {
	c.closed = true
	return nil
}

func TestTopicManager_CreateTopic(t *testing.T) {
	conn := &mockConn{}
	mgr := NewTopicManagerWithConn(conn, logging.NewNopLogger())

	err := mgr.CreateTopic(context.Background(), TopicConfig{
		Name:              TopicEscalationTriggered,
		NumPartitions:     3,
		ReplicationFactor: 1,
		RetentionMs:       1000,
	})
	require.NoError(t, err)

	require.Len(t, conn.created, 1)
	assert.Equal(t, TopicEscalationTriggered, conn.created[0].Topic)
	require.Len(t, conn.created[0].ConfigEntries, 1)
	assert.Equal(t, "retention.ms", conn.created[0].ConfigEntries[0].ConfigName)
}

func TestTopicManager_CreateTopic_Validation(t *testing.T) {
	mgr := NewTopicManagerWithConn(&mockConn{}, logging.NewNopLogger())
	ctx := context.Background()

	assert.Error(t, mgr.CreateTopic(ctx, TopicConfig{NumPartitions: 1, ReplicationFactor: 1}))
	assert.Error(t, mgr.CreateTopic(ctx, TopicConfig{Name: "t", ReplicationFactor: 1}))
	assert.Error(t, mgr.CreateTopic(ctx, TopicConfig{Name: "t", NumPartitions: 1}))
}

func TestTopicManager_CreateTopic_AlreadyExists(t *testing.T) {
	conn := &mockConn{
		createErr: errors.New("topic already exists"),
		partitions: map[string][]kafka.Partition{
			"t": {{Topic: "t"}},
		},
	}
	mgr := NewTopicManagerWithConn(conn, logging.NewNopLogger())

	err := mgr.CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1})
	assert.NoError(t, err)
}

func TestTopicManager_EnsureDefaultTopics(t *testing.T) {
	conn := &mockConn{}
	mgr := NewTopicManagerWithConn(conn, logging.NewNopLogger())

	require.NoError(t, mgr.EnsureDefaultTopics(context.Background()))
	assert.Len(t, conn.created, len(DefaultTopics()))
}

func TestTopicManager_Close(t *testing.T) {
	conn := &mockConn{}
	mgr := NewTopicManagerWithConn(conn, logging.NewNopLogger())
	require.NoError(t, mgr.Close())
	assert.True(t, conn.closed)
}
