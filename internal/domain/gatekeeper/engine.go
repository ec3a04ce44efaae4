package gatekeeper

import (
	"time"

	"github.com/caselight/caselight/internal/domain/deadline"
)

// ActionType discriminates gatekeeper actions.
type ActionType string

const (
	ActionUnlockTask   ActionType = "unlock_task"
	ActionCompleteTask ActionType = "complete_task"
)

// Action is one instruction for the orchestrator to apply.
type Action struct {
	Type    ActionType
	TaskKey string
	// DueAt accompanies unlock actions that carry a deadline, so the newly
	// unlocked task shows its due date.
	DueAt *time.Time
}

// Engine evaluates the fixed workflow rules.  Every rule is checked
// independently on every call and only ever acts on a task in the exact
// status the rule names, so evaluation is idempotent: applying the returned
// actions and re-running yields an empty result.
type Engine struct{}

// NewEngine returns a gatekeeper Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate returns the state-transition actions due for the given task and
// deadline snapshot at now.  The task list is a snapshot; rules whose task is
// absent simply do not fire.
func (e *Engine) Evaluate(tasks []Task, deadlines []deadline.Deadline, now time.Time) []Action {
	byKey := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byKey[t.TaskKey] = t
	}

	confirmed := findDeadline(deadlines, deadline.KeyAnswerConfirmed)

	var actions []Action

	// Rule 1: a confirmed answer deadline unlocks the waiting task.  A task
	// already at todo or beyond is in flight and must not be re-unlocked.
	if confirmed != nil {
		if t, ok := byKey[TaskWaitForAnswer]; ok && t.Status == StatusLocked {
			due := confirmed.DueAt
			actions = append(actions, Action{Type: ActionUnlockTask, TaskKey: TaskWaitForAnswer, DueAt: &due})
		}
	}

	// Rule 2: once the confirmed deadline has passed, the wait completes and
	// the docket check opens, together in the same pass.  The unlock carries
	// the docket-check deadline's due date when one exists.
	if confirmed != nil && !now.Before(confirmed.DueAt) {
		if t, ok := byKey[TaskWaitForAnswer]; ok && t.Status == StatusTodo {
			actions = append(actions, Action{Type: ActionCompleteTask, TaskKey: TaskWaitForAnswer})
			if dc, ok := byKey[TaskCheckDocket]; ok && dc.Status == StatusLocked {
				unlock := Action{Type: ActionUnlockTask, TaskKey: TaskCheckDocket}
				if check := findDeadline(deadlines, deadline.KeyCheckDocket); check != nil {
					due := check.DueAt
					unlock.DueAt = &due
				}
				actions = append(actions, unlock)
			}
		}
	}

	// Rules 3 and 4: the docket result picks exactly one branch.  The two
	// branches are alternatives and are never both unlocked from the same
	// trigger.
	if dc, ok := byKey[TaskCheckDocket]; ok && dc.Status == StatusCompleted {
		switch dc.DocketResult() {
		case DocketResultNoAnswer:
			if t, ok := byKey[TaskDefaultPacketPrep]; ok && t.Status == StatusLocked {
				actions = append(actions, Action{Type: ActionUnlockTask, TaskKey: TaskDefaultPacketPrep})
			}
		case DocketResultAnswerFiled:
			if t, ok := byKey[TaskUploadAnswer]; ok && t.Status == StatusLocked {
				actions = append(actions, Action{Type: ActionUnlockTask, TaskKey: TaskUploadAnswer})
			}
		}
	}

	// Rule 5: an uploaded answer opens discovery.
	if ua, ok := byKey[TaskUploadAnswer]; ok && ua.Status == StatusCompleted {
		if t, ok := byKey[TaskDiscoveryStarterPack]; ok && t.Status == StatusLocked {
			actions = append(actions, Action{Type: ActionUnlockTask, TaskKey: TaskDiscoveryStarterPack})
		}
	}

	return actions
}

func findDeadline(deadlines []deadline.Deadline, key string) *deadline.Deadline {
	for i := range deadlines {
		if deadlines[i].Key == key {
			return &deadlines[i]
		}
	}
	return nil
}
