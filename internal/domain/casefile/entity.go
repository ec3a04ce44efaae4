// Package casefile holds the case aggregate and the append-only activity log
// shared by every rule engine.
package casefile

import (
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	CaseStatusActive   CaseStatus = "active"
	CaseStatusClosed   CaseStatus = "closed"
	CaseStatusArchived CaseStatus = "archived"
)

// Case is the root record a self-represented litigant works on.  Service
// facts live on the case itself; everything derived from them (deadlines,
// reminders, escalations, risk snapshots) hangs off the case ID.
type Case struct {
	ID            common.ID
	Title         string
	CourtName     string
	CauseNumber   string
	Status        CaseStatus
	ServedAt      *time.Time
	ReturnFiledAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the case still accepts evaluation.
func (c Case) IsActive() bool {
	return c.Status == CaseStatusActive
}

// TaskEvent is one entry in a case's append-only activity log.  Its presence
// after a given instant is the sole signal for "has X happened yet" checks;
// events are never mutated or deleted.
type TaskEvent struct {
	ID        common.ID
	CaseID    common.ID
	Kind      string
	CreatedAt time.Time
}

// Well-known task event kinds.
const (
	EventAnswerFiled               = "answer_filed"
	EventDiscoveryResponseReceived = "discovery_response_received"
	EventDocketChecked             = "docket_checked"
	EventDocumentUploaded          = "document_uploaded"
	EventExhibitAdded              = "exhibit_added"
	EventExhibitSetCreated         = "exhibit_set_created"
	EventNoteAdded                 = "note_added"
	EventTrialBinderCreated        = "trial_binder_created"
)
