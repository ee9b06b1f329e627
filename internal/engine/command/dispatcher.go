package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	daudit "github.com/yungbote/dcengine/internal/domain/audit"
	"github.com/yungbote/dcengine/internal/domain/faults"
	"github.com/yungbote/dcengine/internal/engine/audit"
	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/platform/ctxutil"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

const tracerName = "github.com/yungbote/dcengine/internal/engine/command"

type Authorizer interface {
	ResolveE(ctx context.Context, actorID uuid.UUID, req permissions.Requirement) (bool, error)
}

type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) *types.AuditRecord
}

// Observer records per-dispatch outcomes. Optional.
type Observer interface {
	ObserveCommand(action, outcome, kind string, dur time.Duration)
}

type Deps struct {
	Registry    *Registry
	Permissions Authorizer
	Runner      store.TxRunner
	Audit       Auditor
	Tracer      trace.Tracer
	Metrics     Observer
}

type Dispatcher struct {
	log    *logger.Logger
	reg    *Registry
	perms  Authorizer
	runner store.TxRunner
	audit  Auditor
	tracer trace.Tracer
	obs    Observer
}

func NewDispatcher(log *logger.Logger, deps Deps) (*Dispatcher, error) {
	if deps.Registry == nil || deps.Permissions == nil || deps.Runner == nil || deps.Audit == nil {
		return nil, errors.New("dispatcher requires registry, permissions, runner and audit")
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Dispatcher{
		log:    log.With("component", "CommandDispatcher"),
		reg:    deps.Registry,
		perms:  deps.Permissions,
		runner: deps.Runner,
		audit:  deps.Audit,
		tracer: tracer,
		obs:    deps.Metrics,
	}, nil
}

// Invocation tracks one asynchronous dispatch.
type Invocation struct {
	mu       sync.Mutex
	state    State
	canceled bool
	done     chan struct{}
	result   Result
}

func newInvocation() *Invocation {
	return &Invocation{state: StateCreated, done: make(chan struct{})}
}

// Cancel stops the invocation if Execute has not begun.
func (i *Invocation) Cancel() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == StateExecuting || i.state.Terminal() {
		return ErrCancelRejected
	}
	i.canceled = true
	return nil
}

func (i *Invocation) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Invocation) Done() <-chan struct{} { return i.done }

func (i *Invocation) Wait() Result {
	<-i.done
	return i.result
}

func (i *Invocation) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

// enterExecuting is the cancellation cutoff.
func (i *Invocation) enterExecuting(ctx context.Context) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.canceled || ctx.Err() != nil {
		return false
	}
	i.state = StateExecuting
	return true
}

func (i *Invocation) stopped(ctx context.Context) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.canceled || ctx.Err() != nil
}

// Dispatch runs the action to completion and returns its result.
func (d *Dispatcher) Dispatch(ctx context.Context, action ActionType, params any, actorID uuid.UUID) Result {
	inv := newInvocation()
	d.run(ctxutil.Default(ctx), inv, action, params, actorID)
	return inv.result
}

// Start dispatches in the background.
func (d *Dispatcher) Start(ctx context.Context, action ActionType, params any, actorID uuid.UUID) *Invocation {
	inv := newInvocation()
	ctx = ctxutil.Default(ctx)
	go d.run(ctx, inv, action, params, actorID)
	return inv
}

type invocation struct {
	action        ActionType
	actorID       uuid.UUID
	correlationID string
	failureEvent  string
	cmd           Command
}

func (d *Dispatcher) run(ctx context.Context, inv *Invocation, action ActionType, params any, actorID uuid.UUID) {
	start := time.Now()
	run := &invocation{action: action, actorID: actorID, correlationID: correlationID(ctx)}
	ctx, span := d.tracer.Start(ctx, "command.dispatch", trace.WithAttributes(
		attribute.String("dcengine.action_type", string(action)),
		attribute.String("dcengine.correlation_id", run.correlationID),
		attribute.String("dcengine.actor_id", actorID.String()),
	))
	defer span.End()

	res := d.process(ctx, inv, run, params)
	res.ActionType = string(action)
	res.CorrelationID = run.correlationID

	d.emit(ctx, run, res)
	if d.obs != nil {
		d.obs.ObserveCommand(string(action), string(res.Outcome), string(res.Kind), time.Since(start))
	}
	span.SetAttributes(
		attribute.String("dcengine.outcome", string(res.Outcome)),
		attribute.String("dcengine.result_code", res.Code),
	)
	if !res.Succeeded() {
		span.SetStatus(otelcodes.Error, res.Code)
	}

	inv.mu.Lock()
	inv.state = res.State
	inv.result = res
	inv.mu.Unlock()
	close(inv.done)
}

func (d *Dispatcher) process(ctx context.Context, inv *Invocation, run *invocation, params any) Result {
	entry, ok := d.reg.action(run.action)
	if !ok {
		run.failureEvent = EventUnknownActionFailed
		return rejected(KindUnknownAction, CodeUnknownAction, nil)
	}
	run.failureEvent = entry.def.FailureEvent

	cmd, err := entry.build(params, ExecContext{ActorID: run.actorID, CorrelationID: run.correlationID})
	if err != nil {
		d.log.Warn("command parameters rejected", "action_type", run.action, "correlation_id", run.correlationID, "error", err)
		return rejected(KindInvalidParameters, CodeInvalidParameters, nil)
	}
	run.cmd = cmd

	if inv.stopped(ctx) {
		return rejected(KindCanceled, CodeCanceled, nil)
	}
	allowed, err := d.perms.ResolveE(ctx, run.actorID, cmd.PermissionSubjects())
	if err != nil {
		d.log.Error("permission check failed", "action_type", run.action, "correlation_id", run.correlationID, "error", err)
		return Result{Outcome: OutcomeFailed, Kind: KindInternal, Code: CodeInternal, State: StateRejected}
	}
	if !allowed {
		return rejected(KindAuthorizationDenied, CodeNotAuthorized, nil)
	}

	if inv.stopped(ctx) {
		return rejected(KindCanceled, CodeCanceled, nil)
	}
	inv.setState(StateValidating)
	v := &Validation{}
	if err := d.validate(ctx, cmd, v); err != nil {
		d.log.Error("command validation faulted", "action_type", run.action, "correlation_id", run.correlationID, "error", err)
		return Result{Outcome: OutcomeFailed, Kind: KindInternal, Code: CodeInternal, State: StateRejected}
	}
	if !v.Valid() {
		reasons := v.Reasons()
		return rejected(KindValidationRejected, firstCode(reasons, CodeValidationFailed), reasons)
	}
	inv.setState(StateValid)

	if !inv.enterExecuting(ctx) {
		return rejected(KindCanceled, CodeCanceled, nil)
	}
	value, err := d.execute(context.WithoutCancel(ctx), cmd)
	if err != nil {
		d.compensate(ctx, run, cmd)
		return d.failure(run, err)
	}
	return Result{Outcome: OutcomeSucceeded, ReturnValue: value, State: StateSucceeded}
}

func (d *Dispatcher) validate(ctx context.Context, cmd Command, v *Validation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validate panicked: %v\n%s", r, debug.Stack())
		}
	}()
	err = d.runner.InReadTx(ctx, func(dbc dbctx.Context) error {
		cmd.Validate(dbc, v)
		return nil
	})
	if err != nil {
		return err
	}
	return v.Err()
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("execute panicked: %v", p.value) }

func (d *Dispatcher) execute(ctx context.Context, cmd Command) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return cmd.Execute(ctx)
}

func (d *Dispatcher) compensate(ctx context.Context, run *invocation, cmd Command) {
	c, ok := cmd.(Compensator)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("compensation panicked", "action_type", run.action, "correlation_id", run.correlationID, "panic", fmt.Sprint(r))
		}
	}()
	if err := c.Compensate(context.WithoutCancel(ctx)); err != nil {
		d.log.Error("compensation failed", "action_type", run.action, "correlation_id", run.correlationID, "error", err)
	}
}

func (d *Dispatcher) failure(run *invocation, err error) Result {
	var rej *Rejected
	var pe *panicError
	switch {
	case errors.As(err, &rej):
		reasons := append([]Reason(nil), rej.Reasons...)
		return Result{Outcome: OutcomeRejected, Kind: KindValidationRejected, Code: firstCode(reasons, CodeValidationFailed), Reasons: reasons, State: StateFailed}
	case errors.As(err, &pe):
		d.log.Error("command execution panicked", "action_type", run.action, "correlation_id", run.correlationID, "panic", fmt.Sprint(pe.value), "stack", string(pe.stack))
		return Result{Outcome: OutcomeFailed, Kind: KindInternal, Code: CodeInternal, State: StateFailed}
	case faults.IsCode(err, faults.CodeQuotaExceeded):
		return Result{Outcome: OutcomeRejected, Kind: KindQuotaExceeded, Code: CodeQuotaExceeded, State: StateFailed}
	case faults.IsCode(err, faults.CodeSessionExpired):
		return Result{Outcome: OutcomeFailed, Kind: KindSessionExpired, Code: CodeSessionExpired, State: StateFailed}
	case faults.IsCode(err, faults.CodeInternal):
		d.log.Error("command execution faulted", "action_type", run.action, "correlation_id", run.correlationID, "error", err)
		return Result{Outcome: OutcomeFailed, Kind: KindInternal, Code: CodeInternal, State: StateFailed}
	default:
		d.log.Warn("command execution failed", "action_type", run.action, "correlation_id", run.correlationID, "code", faults.CodeOf(err), "error", err)
		return Result{Outcome: OutcomeFailed, Kind: KindExecutionFailed, Code: CodeExecutionFailed, State: StateFailed}
	}
}

// emit writes the single audit record of an invocation. It runs after every
// unit of work has finished.
func (d *Dispatcher) emit(ctx context.Context, run *invocation, res Result) {
	event := run.failureEvent
	outcome := daudit.OutcomeFailed
	target := ""
	if run.cmd != nil {
		events := run.cmd.AuditEvents()
		if res.Succeeded() {
			event = events.Success
			outcome = daudit.OutcomeSucceeded
		} else if strings.TrimSpace(events.Failure) != "" {
			event = events.Failure
		}
		if t, ok := run.cmd.(Targeter); ok {
			target = t.AuditTarget()
		}
	}
	detail := map[string]any{"state": string(res.State)}
	if res.Kind != KindNone {
		detail["kind"] = string(res.Kind)
	}
	if res.Code != "" {
		detail["code"] = res.Code
	}
	if len(res.Reasons) > 0 {
		codes := make([]string, 0, len(res.Reasons))
		for _, r := range res.Reasons {
			codes = append(codes, r.Code)
		}
		detail["reasons"] = codes
	}
	d.audit.Emit(ctx, audit.Entry{
		CommandType:   string(run.action),
		EventType:     event,
		Outcome:       outcome,
		ActorID:       run.actorID,
		TargetID:      target,
		CorrelationID: run.correlationID,
		Detail:        detail,
	})
	d.log.Info("command dispatched",
		"action_type", run.action,
		"correlation_id", run.correlationID,
		"outcome", res.Outcome,
		"code", res.Code,
		"state", res.State,
	)
}

// Query runs a read-only request. Queries are not audited.
func (d *Dispatcher) Query(ctx context.Context, qt QueryType, params any, actorID uuid.UUID) Result {
	ctx = ctxutil.Default(ctx)
	cid := correlationID(ctx)
	ctx, span := d.tracer.Start(ctx, "command.query", trace.WithAttributes(
		attribute.String("dcengine.query_type", string(qt)),
		attribute.String("dcengine.correlation_id", cid),
	))
	defer span.End()

	res := d.query(ctx, qt, params, actorID, cid)
	res.ActionType = string(qt)
	res.CorrelationID = cid
	if !res.Succeeded() {
		span.SetStatus(otelcodes.Error, res.Code)
	}
	return res
}

func (d *Dispatcher) query(ctx context.Context, qt QueryType, params any, actorID uuid.UUID, cid string) Result {
	entry, ok := d.reg.query(qt)
	if !ok {
		return rejected(KindUnknownAction, CodeUnknownAction, nil)
	}
	q, err := entry.build(params, ExecContext{ActorID: actorID, CorrelationID: cid})
	if err != nil {
		return rejected(KindInvalidParameters, CodeInvalidParameters, nil)
	}
	allowed, err := d.perms.ResolveE(ctx, actorID, q.PermissionSubjects())
	if err != nil {
		d.log.Error("permission check failed", "query_type", qt, "correlation_id", cid, "error", err)
		return Result{Outcome: OutcomeFailed, Kind: KindInternal, Code: CodeInternal, State: StateRejected}
	}
	if !allowed {
		return rejected(KindAuthorizationDenied, CodeNotAuthorized, nil)
	}
	var value any
	err = d.runner.InReadTx(ctx, func(dbc dbctx.Context) error {
		var runErr error
		value, runErr = q.Run(dbc)
		return runErr
	})
	if err != nil {
		d.log.Warn("query failed", "query_type", qt, "correlation_id", cid, "error", err)
		if faults.IsCode(err, faults.CodeValidation) {
			return rejected(KindInvalidParameters, CodeInvalidParameters, nil)
		}
		return Result{Outcome: OutcomeFailed, Kind: KindInternal, Code: CodeInternal, State: StateFailed}
	}
	return Result{Outcome: OutcomeSucceeded, ReturnValue: value, State: StateSucceeded}
}

func rejected(kind Kind, code string, reasons []Reason) Result {
	return Result{Outcome: OutcomeRejected, Kind: kind, Code: code, Reasons: reasons, State: StateRejected}
}

func firstCode(reasons []Reason, fallback string) string {
	if len(reasons) > 0 && reasons[0].Code != "" {
		return reasons[0].Code
	}
	return fallback
}

func correlationID(ctx context.Context) string {
	if td := ctxutil.GetTraceData(ctx); td != nil && strings.TrimSpace(td.RequestID) != "" {
		return strings.TrimSpace(td.RequestID)
	}
	return uuid.New().String()
}
