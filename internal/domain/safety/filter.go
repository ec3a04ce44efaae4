// Package safety implements the message-safety filter that gates every piece
// of user-facing text the rule engines emit.  The filter is a fixed,
// case-insensitive substring blocklist: a message containing any blocked
// phrase is rejected outright and the caller drops it.  Messages are never
// rewritten or sanitized — suppression is the only remedy, so the system can
// never ship legal-advice-shaped or alarmist language even when an upstream
// template produces it.
package safety

import "strings"

// Filter checks candidate messages against an immutable phrase blocklist.
type Filter struct {
	blocked []string
}

// NewFilter constructs a Filter over the given phrases.  Phrases are matched
// case-insensitively as substrings.  The slice is copied and lowercased once
// so a Filter is immutable and safe for concurrent use.
func NewFilter(phrases []string) *Filter {
	blocked := make([]string, len(phrases))
	for i, p := range phrases {
		blocked[i] = strings.ToLower(p)
	}
	return &Filter{blocked: blocked}
}

// IsSafe reports whether text contains none of the blocked phrases.
func (f *Filter) IsSafe(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range f.blocked {
		if strings.Contains(lowered, phrase) {
			return false
		}
	}
	return true
}

// BlockedPhrase returns the first blocked phrase found in text, or "" when the
// text is safe.  Useful for diagnostic logging at suppression sites.
func (f *Filter) BlockedPhrase(text string) string {
	lowered := strings.ToLower(text)
	for _, phrase := range f.blocked {
		if strings.Contains(lowered, phrase) {
			return phrase
		}
	}
	return ""
}

// reminderBlocklist gates escalation and reminder messages.  These go out
// unprompted, so alarmist urgency framing is blocked alongside anything that
// reads as an instruction to act.
var reminderBlocklist = []string{
	"you must",
	"you should",
	"you need to",
	"file a motion",
	"sanctions",
	"urgent",
	"immediately",
	"act now",
	"final warning",
	"or else",
	"guaranteed outcome",
	"winning",
	"losing",
	"you will win",
	"you will lose",
}

// explanationBlocklist gates risk explanations shown next to a score.  The
// user is already looking at an assessment, so urgency words are tolerated
// there, but outcome predictions and directives are not.
var explanationBlocklist = []string{
	"you must",
	"you should",
	"you need to",
	"file a motion",
	"sanctions",
	"guaranteed outcome",
	"guaranteed to",
	"certain to win",
	"certain to lose",
	"winning",
	"losing",
	"you will win",
	"you will lose",
	"hire a lawyer",
}

// ReminderFilter returns the filter applied to escalation and reminder
// messages before they are emitted.
func ReminderFilter() *Filter {
	return NewFilter(reminderBlocklist)
}

// ExplanationFilter returns the filter applied to risk-explanation text.
func ExplanationFilter() *Filter {
	return NewFilter(explanationBlocklist)
}
