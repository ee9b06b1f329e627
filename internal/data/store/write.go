package store

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/dcengine/internal/domain/faults"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

// Writer runs named units of work and maps their failures to coded errors.
type Writer struct {
	Runner TxRunner
	Hooks  Hooks
}

// Execute runs fn inside one transaction. When dbc already carries a
// transaction, fn joins it instead of opening a nested one.
func (w Writer) Execute(dbc dbctx.Context, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	hooks := w.Hooks
	if hooks == nil {
		hooks = NoopHooks{}
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "store.write"
	}
	var err error
	switch {
	case dbc.Tx != nil:
		err = fn(dbc)
	case w.Runner == nil:
		err = faults.New(faults.CodeInternal, op, "writer has no transaction runner", nil)
	default:
		ctx := dbc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		err = w.Runner.InTx(ctx, fn)
	}
	mapped := MapError(op, err)

	status := "success"
	if mapped != nil {
		status = statusOf(mapped)
		if faults.IsCode(mapped, faults.CodeConflict) {
			hooks.IncConflict(op)
		}
		if faults.IsCode(mapped, faults.CodeRetryable) {
			hooks.IncRetry(op)
		}
	}
	hooks.ObserveOperation(op, status, time.Since(start))
	return mapped
}

func statusOf(err error) string {
	code := strings.TrimSpace(string(faults.CodeOf(err)))
	if code == "" {
		return "failure"
	}
	return code
}
