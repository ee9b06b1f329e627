package store

import (
	"context"
	"errors"

	"github.com/yungbote/dcengine/internal/domain/faults"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"gorm.io/gorm"
)

// TxRunner provides the transaction scope primitive for the persistence gateway.
type TxRunner interface {
	// InTx runs fn in one unit of work; any error rolls every write back.
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
	// InReadTx runs fn in a unit of work that is always rolled back.
	InReadTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

var errReadOnlyRollback = errors.New("read-only unit of work")

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner returns a transaction runner backed by GORM transactions.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return faults.New(faults.CodeInternal, "store.tx", "transaction runner has nil db", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

func (r *gormTxRunner) InReadTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return faults.New(faults.CodeInternal, "store.read_tx", "transaction runner has nil db", nil)
	}
	var inner error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner = fn(dbctx.Context{Ctx: ctx, Tx: tx})
		return errReadOnlyRollback
	})
	if inner != nil {
		return inner
	}
	if err != nil && !errors.Is(err, errReadOnlyRollback) {
		return err
	}
	return nil
}
