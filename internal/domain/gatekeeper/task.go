// Package gatekeeper implements the workflow gatekeeper: a rule-ordered,
// idempotent evaluator that decides which tasks unlock or auto-complete as
// deadlines pass and docket results come in.
package gatekeeper

import (
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// Status is a workflow task's state.
type Status string

const (
	StatusLocked      Status = "locked"
	StatusTodo        Status = "todo"
	StatusInProgress  Status = "in_progress"
	StatusNeedsReview Status = "needs_review"
	StatusCompleted   Status = "completed"
	StatusSkipped     Status = "skipped"
)

// Workflow task keys, in rough workflow order.
const (
	TaskWaitForAnswer        = "wait_for_answer"
	TaskCheckDocket          = "check_docket_for_answer"
	TaskDefaultPacketPrep    = "default_packet_prep"
	TaskUploadAnswer         = "upload_answer"
	TaskDiscoveryStarterPack = "discovery_starter_pack"
)

// Metadata keys and docket-result values used by the branch rules.
const (
	MetaDocketResult        = "docket_result"
	DocketResultNoAnswer    = "no_answer"
	DocketResultAnswerFiled = "answer_filed"
)

// Task is a snapshot of one workflow task.
type Task struct {
	ID       common.ID
	CaseID   common.ID
	TaskKey  string
	Status   Status
	DueAt    *time.Time
	Metadata map[string]string
}

// DocketResult returns the task's recorded docket result, if any.
func (t Task) DocketResult() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[MetaDocketResult]
}

// validTransitions restricts task status changes.  Unlocking moves locked to
// todo; the gatekeeper may auto-complete a todo task; skipped tasks can be
// reopened.
var validTransitions = map[Status][]Status{
	StatusLocked:      {StatusTodo},
	StatusTodo:        {StatusInProgress, StatusCompleted, StatusSkipped},
	StatusInProgress:  {StatusNeedsReview, StatusCompleted, StatusSkipped},
	StatusNeedsReview: {StatusInProgress, StatusCompleted},
	StatusSkipped:     {StatusTodo},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
