package command

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

type Kind string

const (
	KindNone                Kind = ""
	KindAuthorizationDenied Kind = "authorization_denied"
	KindValidationRejected  Kind = "validation_rejected"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindExecutionFailed     Kind = "execution_failed"
	KindSessionExpired      Kind = "session_expired"
	KindInternal            Kind = "internal"
	KindCanceled            Kind = "canceled"
	KindUnknownAction       Kind = "unknown_action"
	KindInvalidParameters   Kind = "invalid_parameters"
)

// Stable result codes. Callers may match on these; they never carry
// internal diagnostics.
const (
	CodeNotAuthorized     = "USER_NOT_AUTHORIZED_TO_PERFORM_ACTION"
	CodeValidationFailed  = "ACTION_TYPE_FAILED_VALIDATION"
	CodeQuotaExceeded     = "ACTION_TYPE_FAILED_QUOTA_STORAGE_LIMIT_EXCEEDED"
	CodeExecutionFailed   = "ACTION_EXECUTION_FAILED"
	CodeSessionExpired    = "ACTION_TYPE_FAILED_IMAGE_TRANSFER_SESSION_EXPIRED"
	CodeInternal          = "INTERNAL_ERROR"
	CodeCanceled          = "ACTION_CANCELED"
	CodeUnknownAction     = "ACTION_TYPE_UNKNOWN"
	CodeInvalidParameters = "ACTION_TYPE_FAILED_INVALID_PARAMETERS"
)

// EventUnknownActionFailed audits requests naming no registered action.
const EventUnknownActionFailed = "USER_RUN_UNKNOWN_ACTION_FAILED"

type Result struct {
	ActionType    string   `json:"action_type,omitempty"`
	Outcome       Outcome  `json:"outcome"`
	Kind          Kind     `json:"kind,omitempty"`
	Code          string   `json:"code,omitempty"`
	Reasons       []Reason `json:"reasons,omitempty"`
	ReturnValue   any      `json:"return_value,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	State         State    `json:"state"`
}

func (r Result) Succeeded() bool { return r.Outcome == OutcomeSucceeded }
