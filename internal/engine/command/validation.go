package command

import (
	"fmt"
	"strings"

	"github.com/yungbote/dcengine/internal/data/store"
)

type Reason struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Validation collects every failed check instead of stopping at the first.
type Validation struct {
	reasons []Reason
	fault   error
}

func (v *Validation) Fail(code, message string) {
	v.reasons = append(v.reasons, Reason{Code: strings.TrimSpace(code), Message: strings.TrimSpace(message)})
}

func (v *Validation) Failf(code, format string, args ...any) {
	v.Fail(code, fmt.Sprintf(format, args...))
}

// Check fails with code unless ok, and returns ok so dependent checks can
// be skipped.
func (v *Validation) Check(ok bool, code, message string) bool {
	if !ok {
		v.Fail(code, message)
	}
	return ok
}

// Fault records an infrastructure failure met while validating. The first
// one wins; the invocation then ends as an internal failure.
func (v *Validation) Fault(err error) {
	if err != nil && v.fault == nil {
		v.fault = err
	}
}

func (v *Validation) Err() error { return v.fault }

func (v *Validation) Valid() bool { return len(v.reasons) == 0 && v.fault == nil }

func (v *Validation) Reasons() []Reason {
	return append([]Reason(nil), v.reasons...)
}

// Has reports whether a reason with code was recorded.
func (v *Validation) Has(code string) bool {
	for _, r := range v.reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// Rejected is an execute-time refusal, such as a lost uniqueness race. The
// dispatcher reports it like a validation rejection.
type Rejected struct {
	Reasons []Reason
}

func Reject(reasons ...Reason) error {
	return &Rejected{Reasons: append([]Reason(nil), reasons...)}
}

func (r *Rejected) Error() string {
	codes := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		codes = append(codes, reason.Code)
	}
	return "command rejected: " + strings.Join(codes, ", ")
}

// Is lets a store writer classify a refusal returned from its unit of work
// as a conflict rather than an internal failure.
func (r *Rejected) Is(target error) bool { return target == store.ErrConflict }
