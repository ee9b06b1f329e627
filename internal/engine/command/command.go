// Package command drives the two-phase protocol every state-changing
// operation follows: permission check, read-only validation, then a single
// execution whose outcome is audited exactly once.
package command

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

type ActionType string

type QueryType string

type State string

const (
	StateCreated    State = "CREATED"
	StateValidating State = "VALIDATING"
	StateValid      State = "VALID"
	StateRejected   State = "REJECTED"
	StateExecuting  State = "EXECUTING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateSucceeded || s == StateFailed
}

// AuditEvents names the success and failure variants of one action.
type AuditEvents struct {
	Success string
	Failure string
}

// ExecContext is what the dispatcher resolved for one invocation.
type ExecContext struct {
	ActorID       uuid.UUID
	CorrelationID string
}

// Command is one invocation of a business operation.
type Command interface {
	Type() ActionType
	PermissionSubjects() permissions.Requirement
	// Validate must only read; it runs in a unit of work that is always
	// rolled back.
	Validate(dbc dbctx.Context, v *Validation)
	Execute(ctx context.Context) (any, error)
	AuditEvents() AuditEvents
}

// Compensator is implemented by commands that can undo a partial execution.
type Compensator interface {
	Compensate(ctx context.Context) error
}

// Targeter names the entity an audit record is about.
type Targeter interface {
	AuditTarget() string
}

// Query is a read-only request. It is never audited.
type Query interface {
	Type() QueryType
	PermissionSubjects() permissions.Requirement
	Run(dbc dbctx.Context) (any, error)
}

// ErrCancelRejected is returned once execution has started.
var ErrCancelRejected = errors.New("command execution already started")
