// Package ticket tracks image transfer sessions. A session's whole state is
// its durable row; every status change is a compare-and-set on that row, so
// a renewal can never revive a session another caller already expired, and
// the attached quota reservation is settled exactly once.
package ticket

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	transferrepo "github.com/yungbote/dcengine/internal/data/repos/transfer"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/faults"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

type Config struct {
	Lifetime    time.Duration
	MaxRenewals int
}

// Ticket is a session plus the signed capability handed to the agent.
type Ticket struct {
	Session *types.TransferSession
	Token   string
}

type OpenInput struct {
	ImageID         uuid.UUID
	StorageDomainID uuid.UUID
	HostID          string
	OwnerID         uuid.UUID
	Direction       dtransfer.Direction
	SizeBytes       int64
	Reservation     quota.Token
}

type CloseInput struct {
	// Succeeded commits an upload's reservation instead of releasing it.
	Succeeded bool
	Reason    string
}

type Tracker struct {
	sessions transferrepo.SessionRepo
	ledger   *quota.Ledger
	signer   *Signer
	writer   store.Writer
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
	onEnd    EndHook
}

func NewTracker(log *logger.Logger, runner store.TxRunner, hooks store.Hooks, sessions transferrepo.SessionRepo, ledger *quota.Ledger, signer *Signer, cfg Config) *Tracker {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 5 * time.Minute
	}
	if cfg.MaxRenewals < 0 {
		cfg.MaxRenewals = 0
	}
	return &Tracker{
		sessions: sessions,
		ledger:   ledger,
		signer:   signer,
		writer:   store.Writer{Runner: runner, Hooks: hooks},
		cfg:      cfg,
		log:      log.With("component", "TicketTracker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of the tracker reading time from now.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	cp := *t
	cp.now = now
	return &cp
}

// WithEndHook returns a copy of the tracker that runs hook whenever it ends a
// session.
func (t *Tracker) WithEndHook(hook EndHook) *Tracker {
	cp := *t
	cp.onEnd = hook
	return &cp
}

// Open creates a session. It joins the caller's transaction when dbc has one.
func (t *Tracker) Open(dbc dbctx.Context, in OpenInput) (Ticket, error) {
	const op = "ticket.open"
	if !in.Direction.Known() {
		return Ticket{}, faults.New(faults.CodeValidation, op, "unknown transfer direction", nil)
	}
	if in.ImageID == uuid.Nil || in.OwnerID == uuid.Nil {
		return Ticket{}, faults.New(faults.CodeValidation, op, "image and owner are required", nil)
	}
	now := t.now()
	sess := &types.TransferSession{
		ID:              uuid.New(),
		ImageID:         in.ImageID,
		StorageDomainID: in.StorageDomainID,
		HostID:          in.HostID,
		OwnerID:         in.OwnerID,
		Direction:       in.Direction,
		Status:          dtransfer.SessionOpen,
		SizeBytes:       in.SizeBytes,
		MaxRenewals:     t.cfg.MaxRenewals,
		ExpiresAt:       now.Add(t.cfg.Lifetime),
		CreatedAt:       now,
	}
	if !in.Reservation.IsZero() {
		id := in.Reservation.ID
		sess.ReservationID = &id
	}
	err := t.writer.Execute(dbc, op, func(dbc dbctx.Context) error {
		return t.sessions.Create(dbc, sess)
	})
	if err != nil {
		return Ticket{}, err
	}
	token, err := t.signer.Sign(sess, now)
	if err != nil {
		return Ticket{}, faults.New(faults.CodeInternal, op, "sign ticket", err)
	}
	t.log.Debug("transfer session opened", "session_id", sess.ID, "direction", sess.Direction, "expires_at", sess.ExpiresAt)
	return Ticket{Session: sess, Token: token}, nil
}

// Renew extends a live session by the configured lifetime. A session that
// is past its expiry or out of renewals is expired instead, its reservation
// released, and CodeSessionExpired returned.
func (t *Tracker) Renew(ctx context.Context, id uuid.UUID) (Ticket, error) {
	const op = "ticket.renew"
	now := t.now()
	var (
		sess    *types.TransferSession
		expired bool
	)
	err := t.writer.Execute(dbctx.New(ctx), op, func(dbc dbctx.Context) error {
		cur, err := t.sessions.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return faults.New(faults.CodeNotFound, op, "transfer session not found", nil)
		}
		switch cur.Status {
		case dtransfer.SessionExpired:
			expired = true
			return nil
		case dtransfer.SessionClosed:
			return faults.New(faults.CodePreconditionFailed, op, "transfer session is closed", nil)
		}
		won, err := t.sessions.Renew(dbc, id, now, now.Add(t.cfg.Lifetime))
		if err != nil {
			return err
		}
		if !won {
			expired = true
			_, err := t.finish(dbc, cur, dtransfer.SessionExpired, CloseInput{Reason: "renewal refused"}, now)
			return err
		}
		sess, err = t.sessions.GetByID(dbc, id)
		return err
	})
	if err != nil {
		return Ticket{}, err
	}
	if expired {
		return Ticket{}, faults.New(faults.CodeSessionExpired, op, "transfer session expired", nil)
	}
	token, err := t.signer.Sign(sess, now)
	if err != nil {
		return Ticket{}, faults.New(faults.CodeInternal, op, "sign ticket", err)
	}
	t.log.Debug("transfer session renewed", "session_id", id, "renewals", sess.Renewals, "expires_at", sess.ExpiresAt)
	return Ticket{Session: sess, Token: token}, nil
}

// Close ends a live session. Closing a session that already ended is a no-op
// and reports false.
func (t *Tracker) Close(ctx context.Context, id uuid.UUID, in CloseInput) (bool, error) {
	return t.end(ctx, "ticket.close", id, dtransfer.SessionClosed, in)
}

// Expire ends a live session as expired, releasing its reservation. It
// reports whether this call made the transition.
func (t *Tracker) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.end(ctx, "ticket.expire", id, dtransfer.SessionExpired, CloseInput{Reason: "expired"})
}

func (t *Tracker) end(ctx context.Context, op string, id uuid.UUID, to dtransfer.SessionStatus, in CloseInput) (bool, error) {
	now := t.now()
	var won bool
	err := t.writer.Execute(dbctx.New(ctx), op, func(dbc dbctx.Context) error {
		cur, err := t.sessions.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return faults.New(faults.CodeNotFound, op, "transfer session not found", nil)
		}
		if !cur.Status.Live() {
			return nil
		}
		won, err = t.finish(dbc, cur, to, in, now)
		return err
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// finish moves the session to a terminal status, settles its reservation and
// runs the end hook in the same unit of work. Losing the status race means
// someone else did all of that.
func (t *Tracker) finish(dbc dbctx.Context, sess *types.TransferSession, to dtransfer.SessionStatus, in CloseInput, now time.Time) (bool, error) {
	won, err := t.sessions.Finish(dbc, sess.ID, to, in.Reason, now)
	if err != nil || !won {
		return false, err
	}
	if sess.ReservationID != nil && t.ledger != nil {
		tok := quota.Token{ID: *sess.ReservationID}
		if to == dtransfer.SessionClosed && in.Succeeded && sess.Direction == dtransfer.DirectionUpload {
			err = t.ledger.Commit(dbc, tok)
		} else {
			err = t.ledger.Release(dbc, tok)
		}
		if err != nil {
			return false, err
		}
	}
	if t.onEnd != nil {
		if err := t.onEnd(dbc, sess, to, in); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (*types.TransferSession, error) {
	sess, err := t.sessions.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, store.MapError("ticket.get", err)
	}
	return sess, nil
}

// Verify checks a ticket's signature and expiry.
func (t *Tracker) Verify(token string) (*Claims, error) {
	const op = "ticket.verify"
	claims, err := t.signer.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, faults.New(faults.CodeSessionExpired, op, "ticket expired", err)
		}
		return nil, faults.New(faults.CodeUnauthorized, op, "invalid ticket", err)
	}
	return claims, nil
}

func (t *Tracker) ListExpired(ctx context.Context, now time.Time, limit int) ([]*types.TransferSession, error) {
	out, err := t.sessions.ListExpired(dbctx.New(ctx), now, limit)
	if err != nil {
		return nil, store.MapError("ticket.list_expired", err)
	}
	return out, nil
}
