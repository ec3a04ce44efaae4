package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"
)

// Case Module Error Codes
const (
	ErrCodeCaseNotFound      ErrorCode = "CASE_001"
	ErrCodeCaseAlreadyExists ErrorCode = "CASE_002"
	ErrCodeCaseArchived      ErrorCode = "CASE_003"
	ErrCodeTaskEventInvalid  ErrorCode = "CASE_004"
)

// Deadline Module Error Codes
const (
	ErrCodeDeadlineNotFound     ErrorCode = "DLN_001"
	ErrCodeDeadlineKeyInvalid   ErrorCode = "DLN_002"
	ErrCodeServiceFactsMissing  ErrorCode = "DLN_003"
	ErrCodeRuleSetUnsupported   ErrorCode = "DLN_004"
	ErrCodeDeadlineDateInvalid  ErrorCode = "DLN_005"
	ErrCodeReminderRangeInvalid ErrorCode = "DLN_006"
)

// Escalation Module Error Codes
const (
	ErrCodeEscalationRuleInvalid ErrorCode = "ESC_001"
	ErrCodeEscalationDuplicate   ErrorCode = "ESC_002"
	ErrCodeEscalationNotFound    ErrorCode = "ESC_003"
)

// Risk Module Error Codes
const (
	ErrCodeRiskInputInvalid   ErrorCode = "RISK_001"
	ErrCodeRiskSnapshotFailed ErrorCode = "RISK_002"
)

// Workflow Module Error Codes
const (
	ErrCodeWorkflowTaskNotFound  ErrorCode = "WF_001"
	ErrCodeWorkflowStatusInvalid ErrorCode = "WF_002"
	ErrCodeWorkflowTransition    ErrorCode = "WF_003"
)

// Alerting Module Error Codes
const (
	ErrCodeAlertDuplicate      ErrorCode = "ALERT_001"
	ErrCodeAlertMessageUnsafe  ErrorCode = "ALERT_002"
	ErrCodeAlertDeliveryFailed ErrorCode = "ALERT_003"
)

// Aliases for the fluent factory functions.
const (
	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeUnauthorized   = ErrCodeUnauthorized
	CodeForbidden      = ErrCodeForbidden
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeRateLimit      = ErrCodeTooManyRequests
	CodeNotImplemented = ErrCodeNotImplemented
	CodeOK             = ErrorCode("OK")
	CodeUnknown        = ErrorCode("UNKNOWN")

	// Domain specific aliases
	CodeCaseNotFound      = ErrCodeCaseNotFound
	CodeDeadlineNotFound  = ErrCodeDeadlineNotFound
	CodeDatabaseError     = ErrCodeDatabaseError
	CodeCacheError        = ErrCodeCacheError
	CodeMessageQueueError = ErrCodeMessageQueueError
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeCaseNotFound:      http.StatusNotFound,
	ErrCodeCaseAlreadyExists: http.StatusConflict,
	ErrCodeCaseArchived:      http.StatusConflict,
	ErrCodeTaskEventInvalid:  http.StatusBadRequest,

	ErrCodeDeadlineNotFound:     http.StatusNotFound,
	ErrCodeDeadlineKeyInvalid:   http.StatusBadRequest,
	ErrCodeServiceFactsMissing:  http.StatusUnprocessableEntity,
	ErrCodeRuleSetUnsupported:   http.StatusBadRequest,
	ErrCodeDeadlineDateInvalid:  http.StatusBadRequest,
	ErrCodeReminderRangeInvalid: http.StatusBadRequest,

	ErrCodeEscalationRuleInvalid: http.StatusBadRequest,
	ErrCodeEscalationDuplicate:   http.StatusConflict,
	ErrCodeEscalationNotFound:    http.StatusNotFound,

	ErrCodeRiskInputInvalid:   http.StatusBadRequest,
	ErrCodeRiskSnapshotFailed: http.StatusInternalServerError,

	ErrCodeWorkflowTaskNotFound:  http.StatusNotFound,
	ErrCodeWorkflowStatusInvalid: http.StatusBadRequest,
	ErrCodeWorkflowTransition:    http.StatusConflict,

	ErrCodeAlertDuplicate:      http.StatusConflict,
	ErrCodeAlertMessageUnsafe:  http.StatusUnprocessableEntity,
	ErrCodeAlertDeliveryFailed: http.StatusInternalServerError,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeMessageQueueError:  "message queue error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeCaseNotFound:      "case not found",
	ErrCodeCaseAlreadyExists: "case already exists",
	ErrCodeCaseArchived:      "case is archived",
	ErrCodeTaskEventInvalid:  "invalid task event",

	ErrCodeDeadlineNotFound:     "deadline not found",
	ErrCodeDeadlineKeyInvalid:   "invalid deadline key",
	ErrCodeServiceFactsMissing:  "service facts not yet confirmed",
	ErrCodeRuleSetUnsupported:   "unsupported deadline rule set",
	ErrCodeDeadlineDateInvalid:  "invalid deadline date",
	ErrCodeReminderRangeInvalid: "invalid reminder range",

	ErrCodeEscalationRuleInvalid: "invalid escalation rule",
	ErrCodeEscalationDuplicate:   "escalation level already triggered",
	ErrCodeEscalationNotFound:    "escalation not found",

	ErrCodeRiskInputInvalid:   "invalid risk scoring input",
	ErrCodeRiskSnapshotFailed: "failed to record risk snapshot",

	ErrCodeWorkflowTaskNotFound:  "workflow task not found",
	ErrCodeWorkflowStatusInvalid: "invalid workflow task status",
	ErrCodeWorkflowTransition:    "invalid workflow transition",

	ErrCodeAlertDuplicate:      "alert already recorded for this day",
	ErrCodeAlertMessageUnsafe:  "alert message rejected by safety filter",
	ErrCodeAlertDeliveryFailed: "failed to deliver alert",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
