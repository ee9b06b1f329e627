// Package quota debits storage capacity through provisional reservations
// that are later committed or released.
package quota

import (
	"time"

	"github.com/google/uuid"

	quotarepo "github.com/yungbote/dcengine/internal/data/repos/quota"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/domain/faults"
	dquota "github.com/yungbote/dcengine/internal/domain/quota"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

// Token identifies one reservation. The zero Token is never reserved.
type Token struct {
	ID      uuid.UUID `json:"id"`
	QuotaID uuid.UUID `json:"quota_id"`
	Amount  int64     `json:"amount"`
}

func (t Token) IsZero() bool { return t.ID == uuid.Nil }

type Ledger struct {
	quotas       quotarepo.QuotaRepo
	reservations quotarepo.ReservationRepo
	writer       store.Writer
	log          *logger.Logger
}

func NewLedger(log *logger.Logger, runner store.TxRunner, hooks store.Hooks, quotas quotarepo.QuotaRepo, reservations quotarepo.ReservationRepo) *Ledger {
	return &Ledger{
		quotas:       quotas,
		reservations: reservations,
		writer:       store.Writer{Runner: runner, Hooks: hooks},
		log:          log.With("component", "QuotaLedger"),
	}
}

// NewUnlimited builds the default quota created alongside a pool.
func NewUnlimited(poolID, ownerID uuid.UUID) *types.Quota {
	now := time.Now().UTC()
	return &types.Quota{
		ID:            uuid.New(),
		StoragePoolID: poolID,
		OwnerID:       ownerID,
		Name:          "Default",
		Description:   "Default unlimited quota",
		IsDefault:     true,
		Unlimited:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ForOwner resolves the quota owner consumes in pool: a quota of its own
// first, then the pool's Everyone quota.
func (l *Ledger) ForOwner(dbc dbctx.Context, poolID, ownerID uuid.UUID) (*types.Quota, error) {
	const op = "quota.for_owner"
	for _, id := range []uuid.UUID{ownerID, access.EveryoneID} {
		if id == uuid.Nil {
			continue
		}
		q, err := l.quotas.GetByPoolOwner(dbc, poolID, id)
		if err != nil {
			return nil, store.MapError(op, err)
		}
		if q != nil {
			return q, nil
		}
	}
	return nil, faults.New(faults.CodeNotFound, op, "no quota available in storage pool", nil)
}

// Reserve debits amount from the quota. Admission is one conditional
// update, so concurrent reservations can never jointly exceed the limit.
func (l *Ledger) Reserve(dbc dbctx.Context, quotaID uuid.UUID, amount int64) (Token, error) {
	const op = "quota.reserve"
	if amount < 0 {
		return Token{}, faults.New(faults.CodeValidation, op, "reservation amount must not be negative", nil)
	}
	var tok Token
	err := l.writer.Execute(dbc, op, func(dbc dbctx.Context) error {
		q, err := l.quotas.GetByID(dbc, quotaID)
		if err != nil {
			return err
		}
		if q == nil {
			return faults.New(faults.CodeNotFound, op, "quota not found", nil)
		}
		ok, err := l.quotas.TryDebit(dbc, quotaID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return faults.New(faults.CodeQuotaExceeded, op, "quota capacity exceeded", nil)
		}
		res := &types.QuotaReservation{
			ID:        uuid.New(),
			QuotaID:   quotaID,
			Amount:    amount,
			Unlimited: q.Unlimited,
			Status:    dquota.ReservationReserved,
		}
		if err := l.reservations.Create(dbc, res); err != nil {
			return err
		}
		tok = Token{ID: res.ID, QuotaID: quotaID, Amount: amount}
		return nil
	})
	if err != nil {
		return Token{}, err
	}
	l.log.Debug("quota reserved", "quota_id", quotaID, "reservation_id", tok.ID, "amount", amount)
	return tok, nil
}

// Commit finalizes a reservation. Committing twice is a no-op; committing a
// released reservation is a conflict.
func (l *Ledger) Commit(dbc dbctx.Context, tok Token) error {
	const op = "quota.commit"
	if tok.IsZero() {
		return faults.New(faults.CodeValidation, op, "reservation token is required", nil)
	}
	return l.writer.Execute(dbc, op, func(dbc dbctx.Context) error {
		res, err := l.reservations.GetByID(dbc, tok.ID)
		if err != nil {
			return err
		}
		if res == nil {
			return faults.New(faults.CodeNotFound, op, "reservation not found", nil)
		}
		won, err := l.reservations.Transition(dbc, res.ID, dquota.ReservationReserved, dquota.ReservationCommitted)
		if err != nil {
			return err
		}
		if won {
			return l.quotas.Settle(dbc, res.QuotaID, res.Amount)
		}
		return l.settled(dbc, op, res.ID, dquota.ReservationCommitted)
	})
}

// Release returns reserved capacity. Releasing a released or unknown
// reservation is a no-op; releasing a committed one is a conflict.
func (l *Ledger) Release(dbc dbctx.Context, tok Token) error {
	const op = "quota.release"
	if tok.IsZero() {
		return nil
	}
	return l.writer.Execute(dbc, op, func(dbc dbctx.Context) error {
		res, err := l.reservations.GetByID(dbc, tok.ID)
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}
		won, err := l.reservations.Transition(dbc, res.ID, dquota.ReservationReserved, dquota.ReservationReleased)
		if err != nil {
			return err
		}
		if won {
			return l.quotas.Credit(dbc, res.QuotaID, res.Amount)
		}
		return l.settled(dbc, op, res.ID, dquota.ReservationReleased)
	})
}

// settled handles a lost transition: reaching want already is fine, any
// other terminal status conflicts.
func (l *Ledger) settled(dbc dbctx.Context, op string, id uuid.UUID, want dquota.ReservationStatus) error {
	cur, err := l.reservations.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if cur == nil || cur.Status == want {
		return nil
	}
	return faults.New(faults.CodeConflict, op, "reservation already "+string(cur.Status), nil)
}
