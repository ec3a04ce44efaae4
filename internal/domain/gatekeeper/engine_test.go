package gatekeeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caselight/caselight/internal/domain/deadline"
)

var gateNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func confirmedDeadline(daysOut int) deadline.Deadline {
	return deadline.Deadline{
		Key:   deadline.KeyAnswerConfirmed,
		DueAt: gateNow.AddDate(0, 0, daysOut),
	}
}

func task(key string, status Status) Task {
	return Task{TaskKey: key, Status: status}
}

func taskWithMeta(key string, status Status, metaKey, metaValue string) Task {
	return Task{TaskKey: key, Status: status, Metadata: map[string]string{metaKey: metaValue}}
}

// freshWorkflow is the task set a new case starts with.
func freshWorkflow() []Task {
	return []Task{
		task(TaskWaitForAnswer, StatusLocked),
		task(TaskCheckDocket, StatusLocked),
		task(TaskDefaultPacketPrep, StatusLocked),
		task(TaskUploadAnswer, StatusLocked),
		task(TaskDiscoveryStarterPack, StatusLocked),
	}
}

// apply mutates a task snapshot the way the orchestrator would.
func apply(tasks []Task, actions []Action) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	for _, a := range actions {
		for i := range out {
			if out[i].TaskKey != a.TaskKey {
				continue
			}
			switch a.Type {
			case ActionUnlockTask:
				out[i].Status = StatusTodo
				out[i].DueAt = a.DueAt
			case ActionCompleteTask:
				out[i].Status = StatusCompleted
			}
		}
	}
	return out
}

func TestEvaluate_ConfirmedDeadlineUnlocksWaitTask(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(10)

	actions := e.Evaluate(freshWorkflow(), []deadline.Deadline{d}, gateNow)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionUnlockTask, actions[0].Type)
	assert.Equal(t, TaskWaitForAnswer, actions[0].TaskKey)
	require.NotNil(t, actions[0].DueAt)
	assert.Equal(t, d.DueAt, *actions[0].DueAt)
}

func TestEvaluate_NoConfirmedDeadlineNoActions(t *testing.T) {
	e := NewEngine()
	estimated := deadline.Deadline{Key: deadline.KeyAnswerEstimated, DueAt: gateNow.AddDate(0, 0, 5)}

	actions := e.Evaluate(freshWorkflow(), []deadline.Deadline{estimated}, gateNow)
	assert.Empty(t, actions, "an estimated deadline does not start the workflow")
}

func TestEvaluate_DoesNotReunlockInFlightTask(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(10)

	for _, status := range []Status{StatusTodo, StatusInProgress, StatusCompleted} {
		tasks := freshWorkflow()
		tasks[0] = task(TaskWaitForAnswer, status)
		actions := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
		assert.Empty(t, actions, "status %s", status)
	}
}

func TestEvaluate_PassedDeadlineCompletesWaitAndUnlocksDocketCheck(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(-1)
	tasks := freshWorkflow()
	tasks[0] = task(TaskWaitForAnswer, StatusTodo)

	actions := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	require.Len(t, actions, 2)
	assert.Equal(t, Action{Type: ActionCompleteTask, TaskKey: TaskWaitForAnswer}, actions[0])
	assert.Equal(t, Action{Type: ActionUnlockTask, TaskKey: TaskCheckDocket}, actions[1])
}

func TestEvaluate_DocketCheckUnlockCarriesItsDeadline(t *testing.T) {
	e := NewEngine()
	check := deadline.Deadline{
		Key:   deadline.KeyCheckDocket,
		DueAt: gateNow.AddDate(0, 0, 3),
	}
	tasks := freshWorkflow()
	tasks[0] = task(TaskWaitForAnswer, StatusTodo)

	actions := e.Evaluate(tasks, []deadline.Deadline{confirmedDeadline(-1), check}, gateNow)
	require.Len(t, actions, 2)
	assert.Equal(t, TaskCheckDocket, actions[1].TaskKey)
	require.NotNil(t, actions[1].DueAt)
	assert.Equal(t, check.DueAt, *actions[1].DueAt)
}

func TestEvaluate_DeadlinePassesExactlyAtDueInstant(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(0) // due exactly at gateNow
	tasks := freshWorkflow()
	tasks[0] = task(TaskWaitForAnswer, StatusTodo)

	actions := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	require.Len(t, actions, 2, "now >= due_at triggers the completion")
}

func TestEvaluate_FutureDeadlineDoesNotComplete(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(2)
	tasks := freshWorkflow()
	tasks[0] = task(TaskWaitForAnswer, StatusTodo)

	actions := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	assert.Empty(t, actions)
}

func TestEvaluate_NoAnswerBranchUnlocksDefaultPacketOnly(t *testing.T) {
	e := NewEngine()
	tasks := freshWorkflow()
	tasks[1] = taskWithMeta(TaskCheckDocket, StatusCompleted, MetaDocketResult, DocketResultNoAnswer)

	actions := e.Evaluate(tasks, nil, gateNow)
	require.Len(t, actions, 1)
	assert.Equal(t, TaskDefaultPacketPrep, actions[0].TaskKey)
	for _, a := range actions {
		assert.NotEqual(t, TaskUploadAnswer, a.TaskKey,
			"no_answer must never unlock upload_answer")
	}
}

func TestEvaluate_AnswerFiledBranchUnlocksUploadOnly(t *testing.T) {
	e := NewEngine()
	tasks := freshWorkflow()
	tasks[1] = taskWithMeta(TaskCheckDocket, StatusCompleted, MetaDocketResult, DocketResultAnswerFiled)

	actions := e.Evaluate(tasks, nil, gateNow)
	require.Len(t, actions, 1)
	assert.Equal(t, TaskUploadAnswer, actions[0].TaskKey)
	for _, a := range actions {
		assert.NotEqual(t, TaskDefaultPacketPrep, a.TaskKey,
			"answer_filed must never unlock default_packet_prep")
	}
}

func TestEvaluate_DocketCompletedWithoutResultDoesNothing(t *testing.T) {
	e := NewEngine()
	tasks := freshWorkflow()
	tasks[1] = task(TaskCheckDocket, StatusCompleted)

	actions := e.Evaluate(tasks, nil, gateNow)
	assert.Empty(t, actions)
}

func TestEvaluate_UploadCompletedUnlocksDiscoveryPack(t *testing.T) {
	e := NewEngine()
	tasks := freshWorkflow()
	tasks[3] = task(TaskUploadAnswer, StatusCompleted)

	actions := e.Evaluate(tasks, nil, gateNow)
	require.Len(t, actions, 1)
	assert.Equal(t, Action{Type: ActionUnlockTask, TaskKey: TaskDiscoveryStarterPack}, actions[0])
}

func TestEvaluate_MissingTasksAreTolerated(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(-1)

	// Snapshot contains only the docket-check task; every other rule's task
	// is absent and must simply not fire.
	tasks := []Task{task(TaskCheckDocket, StatusLocked)}
	actions := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	assert.Empty(t, actions)

	// Entirely empty snapshot.
	assert.Empty(t, e.Evaluate(nil, []deadline.Deadline{d}, gateNow))
}

func TestEvaluate_ConvergesInOneStep(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(-1)
	tasks := freshWorkflow()
	tasks[0] = task(TaskWaitForAnswer, StatusTodo)

	first := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	require.NotEmpty(t, first)

	second := e.Evaluate(apply(tasks, first), []deadline.Deadline{d}, gateNow)
	assert.Empty(t, second, "applying the engine's own output must reach a fixed point")
}

func TestEvaluate_ConvergesAfterUnlock(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(10)
	tasks := freshWorkflow()

	first := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	require.Len(t, first, 1)

	second := e.Evaluate(apply(tasks, first), []deadline.Deadline{d}, gateNow)
	assert.Empty(t, second)
}

func TestEvaluate_RepeatedCallsSameInputSameOutput(t *testing.T) {
	e := NewEngine()
	d := confirmedDeadline(-2)
	tasks := freshWorkflow()
	tasks[0] = task(TaskWaitForAnswer, StatusTodo)

	a := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	b := e.Evaluate(tasks, []deadline.Deadline{d}, gateNow)
	assert.Equal(t, a, b)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusLocked, StatusTodo, true},
		{StatusLocked, StatusCompleted, false},
		{StatusTodo, StatusInProgress, true},
		{StatusTodo, StatusCompleted, true},
		{StatusTodo, StatusSkipped, true},
		{StatusInProgress, StatusNeedsReview, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusNeedsReview, StatusCompleted, true},
		{StatusSkipped, StatusTodo, true},
		{StatusCompleted, StatusTodo, false},
		{StatusCompleted, StatusLocked, false},
		{StatusTodo, StatusLocked, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDocketResult_NilMetadata(t *testing.T) {
	assert.Equal(t, "", Task{}.DocketResult())
}
