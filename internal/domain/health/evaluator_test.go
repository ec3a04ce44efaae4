package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselight/caselight/internal/domain/safety"
	"github.com/caselight/caselight/pkg/types/common"
)

var (
	healthCaseID = common.ID("11111111-1111-1111-1111-111111111111")
	healthNow    = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(safety.ReminderFilter())
}

func TestEvaluate_LowScoreProducesLevelThree(t *testing.T) {
	e := newTestEvaluator()
	for _, score := range []int{0, 25, 49} {
		action, suppression := e.Evaluate(healthCaseID, score, healthNow)
		require.NotNil(t, action, "score %d", score)
		assert.Nil(t, suppression)
		assert.Equal(t, LevelConcern, action.Level)
		assert.Equal(t, healthCaseID, action.CaseID)
		assert.Equal(t, healthNow, action.CreatedAt)
		assert.NotEmpty(t, action.Message)
	}
}

func TestEvaluate_MidScoreProducesLevelTwo(t *testing.T) {
	e := newTestEvaluator()
	for _, score := range []int{50, 60, 69} {
		action, _ := e.Evaluate(healthCaseID, score, healthNow)
		require.NotNil(t, action, "score %d", score)
		assert.Equal(t, LevelAttention, action.Level)
	}
}

func TestEvaluate_HealthyScoreProducesNothing(t *testing.T) {
	e := newTestEvaluator()
	for _, score := range []int{70, 85, 100} {
		action, suppression := e.Evaluate(healthCaseID, score, healthNow)
		assert.Nil(t, action, "score %d", score)
		assert.Nil(t, suppression)
	}
}

func TestEvaluate_LevelsUseDistinctMessages(t *testing.T) {
	e := newTestEvaluator()
	concern, _ := e.Evaluate(healthCaseID, 30, healthNow)
	attention, _ := e.Evaluate(healthCaseID, 60, healthNow)
	require.NotNil(t, concern)
	require.NotNil(t, attention)
	assert.NotEqual(t, concern.Message, attention.Message)
}

func TestEvaluate_StaticMessagesPassTheReminderFilter(t *testing.T) {
	f := safety.ReminderFilter()
	assert.True(t, f.IsSafe(concernMessage))
	assert.True(t, f.IsSafe(attentionMessage))
}

func TestEvaluate_UnsafeMessageIsSuppressed(t *testing.T) {
	// A filter that blocks part of the static message exercises the gate.
	e := NewEvaluator(safety.NewFilter([]string{"health score"}))

	action, suppression := e.Evaluate(healthCaseID, 30, healthNow)
	assert.Nil(t, action)
	require.NotNil(t, suppression)
	assert.Equal(t, LevelConcern, suppression.Level)
	assert.Equal(t, "health score", suppression.BlockedPhrase)
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := newTestEvaluator()
	a1, _ := e.Evaluate(healthCaseID, 45, healthNow)
	a2, _ := e.Evaluate(healthCaseID, 45, healthNow)
	assert.Equal(t, a1, a2)
}
