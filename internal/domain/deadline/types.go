// Package deadline holds the deadline entities and the two pure engines that
// produce them: the versioned deadline calculator and the reminder scheduler.
package deadline

import (
	"strings"
	"time"

	"github.com/caselight/caselight/pkg/types/common"
)

// Source records how a deadline came to exist.
type Source string

const (
	// SourceSystemEstimated marks deadlines derived by the calculator.
	SourceSystemEstimated Source = "system_estimated"
	// SourceUserConfirmed marks deadlines the user entered from court papers,
	// superseding the system estimate.
	SourceUserConfirmed Source = "user_confirmed"
)

// Well-known deadline keys.  One case may hold many deadlines distinguished
// by key.
const (
	KeyAnswerEstimated = "answer_deadline_estimated"
	KeyAnswerConfirmed = "answer_deadline_confirmed"
	KeyCheckDocket     = "check_docket_after_answer_deadline"
	KeyDefaultEarliest = "default_earliest_info"
	DiscoveryKeyPrefix = "discovery_response_due"
)

// IsDiscoveryKey reports whether key marks a discovery-response deadline.
// Discovery deadlines are excluded from generic deadline-risk scoring and
// scored separately.
func IsDiscoveryKey(key string) bool {
	return strings.HasPrefix(key, DiscoveryKeyPrefix)
}

// ServiceFacts are the case facts the calculator consumes.  A nil ServedAt
// means service has not been recorded yet and no deadlines can be derived.
type ServiceFacts struct {
	ServedAt      *time.Time
	ReturnFiledAt *time.Time
}

// Draft is a deadline produced by the calculator.  It carries no identity;
// the orchestrator assigns IDs and persistence timestamps.
type Draft struct {
	Key         string
	DueAt       time.Time
	Source      Source
	Rationale   string
	CalcVersion string
}

// Deadline is a persisted deadline record.
type Deadline struct {
	ID          common.ID
	CaseID      common.ID
	Key         string
	DueAt       time.Time
	Source      Source
	Rationale   string
	CalcVersion string
	CreatedAt   time.Time
}

// IsDiscovery reports whether the deadline is a discovery-response deadline.
func (d Deadline) IsDiscovery() bool {
	return IsDiscoveryKey(d.Key)
}
