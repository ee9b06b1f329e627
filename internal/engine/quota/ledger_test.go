package quota

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	quotarepo "github.com/yungbote/dcengine/internal/data/repos/quota"
	"github.com/yungbote/dcengine/internal/data/repos/testutil"
	"github.com/yungbote/dcengine/internal/data/store"
	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/domain/faults"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

func newLedger(t *testing.T, db *gorm.DB) (*Ledger, *store.CountingHooks) {
	t.Helper()
	log := testutil.Logger(t)
	hooks := store.NewCountingHooks()
	return NewLedger(log, store.NewGormTxRunner(db), hooks, quotarepo.NewQuotaRepo(db, log), quotarepo.NewReservationRepo(db, log)), hooks
}

func TestReserveBoundedSequential(t *testing.T) {
	db := testutil.DB(t)
	sp := testutil.SeedStoragePool(t, db, "dc", "4.4")
	q := testutil.SeedQuota(t, db, sp.ID, uuid.New(), 100, false)
	l, _ := newLedger(t, db)
	dbc := dbctx.New(context.Background())

	first, err := l.Reserve(dbc, q.ID, 70)
	if err != nil {
		t.Fatalf("Reserve 70: %v", err)
	}
	if _, err := l.Reserve(dbc, q.ID, 31); !faults.IsCode(err, faults.CodeQuotaExceeded) {
		t.Fatalf("Reserve 31: want quota_exceeded got=%v", err)
	}
	if err := l.Release(dbc, first); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := l.Reserve(dbc, q.ID, 100); err != nil {
		t.Fatalf("Reserve 100 after release: %v", err)
	}
	if _, err := l.Reserve(dbc, q.ID, -1); !faults.IsCode(err, faults.CodeValidation) {
		t.Fatalf("negative amount: want validation got=%v", err)
	}
	if _, err := l.Reserve(dbc, uuid.New(), 1); !faults.IsCode(err, faults.CodeNotFound) {
		t.Fatalf("unknown quota: want not_found got=%v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	db := testutil.DB(t)
	sp := testutil.SeedStoragePool(t, db, "dc", "4.4")
	q := testutil.SeedQuota(t, db, sp.ID, uuid.New(), 100, false)
	l, _ := newLedger(t, db)
	dbc := dbctx.New(context.Background())

	tok, err := l.Reserve(dbc, q.ID, 40)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := l.Release(dbc, tok); err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
	}
	if err := l.Release(dbc, Token{ID: uuid.New(), QuotaID: q.ID, Amount: 5}); err != nil {
		t.Fatalf("Release of never-reserved token: %v", err)
	}
	if err := l.Release(dbc, Token{}); err != nil {
		t.Fatalf("Release of zero token: %v", err)
	}

	var got struct{ ReservedBytes int64 }
	if err := db.Table("quota").Select("reserved_bytes").Where("id = ?", q.ID).Scan(&got).Error; err != nil {
		t.Fatalf("load quota: %v", err)
	}
	if got.ReservedBytes != 0 {
		t.Fatalf("reserved after releases: want=0 got=%d", got.ReservedBytes)
	}
}

func TestCommitSemantics(t *testing.T) {
	db := testutil.DB(t)
	sp := testutil.SeedStoragePool(t, db, "dc", "4.4")
	q := testutil.SeedQuota(t, db, sp.ID, uuid.New(), 100, false)
	l, hooks := newLedger(t, db)
	dbc := dbctx.New(context.Background())

	tok, err := l.Reserve(dbc, q.ID, 30)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := l.Commit(dbc, tok); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := l.Commit(dbc, tok); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if err := l.Release(dbc, tok); !faults.IsCode(err, faults.CodeConflict) {
		t.Fatalf("Release after commit: want conflict got=%v", err)
	}
	if hooks.Conflicts["quota.release"] != 1 {
		t.Fatalf("conflict hook: want=1 got=%d", hooks.Conflicts["quota.release"])
	}

	released, err := l.Reserve(dbc, q.ID, 10)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := l.Release(dbc, released); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Commit(dbc, released); !faults.IsCode(err, faults.CodeConflict) {
		t.Fatalf("Commit after release: want conflict got=%v", err)
	}

	// 30 committed, 70 left.
	if _, err := l.Reserve(dbc, q.ID, 71); !faults.IsCode(err, faults.CodeQuotaExceeded) {
		t.Fatalf("Reserve 71: want quota_exceeded got=%v", err)
	}
}

func TestReserveJoinsCallerTransaction(t *testing.T) {
	db := testutil.DB(t)
	sp := testutil.SeedStoragePool(t, db, "dc", "4.4")
	q := testutil.SeedQuota(t, db, sp.ID, uuid.New(), 100, false)
	l, _ := newLedger(t, db)
	runner := store.NewGormTxRunner(db)

	boom := errors.New("boom")
	err := runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		if _, err := l.Reserve(dbc, q.ID, 100); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx: want boom got=%v", err)
	}
	if _, err := l.Reserve(dbctx.New(context.Background()), q.ID, 100); err != nil {
		t.Fatalf("rolled back reservation still holds capacity: %v", err)
	}
}

func TestConcurrentReservationsNeverExceedLimit(t *testing.T) {
	db := testutil.DB(t)
	sp := testutil.SeedStoragePool(t, db, "dc", "4.4")
	const limit, each, workers = 55, 10, 12
	q := testutil.SeedQuota(t, db, sp.ID, uuid.New(), limit, false)
	l, _ := newLedger(t, db)

	var admitted atomic.Int64
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := l.Reserve(dbctx.New(context.Background()), q.ID, each)
			switch {
			case err == nil:
				admitted.Add(1)
				return nil
			case faults.IsCode(err, faults.CodeQuotaExceeded):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := admitted.Load() * each; got > limit {
		t.Fatalf("admitted %d bytes over limit %d", got, limit)
	}
	if got := admitted.Load(); got != limit/each {
		t.Fatalf("admitted: want=%d got=%d", limit/each, got)
	}
}

func TestForOwnerFallsBackToEveryone(t *testing.T) {
	db := testutil.DB(t)
	sp := testutil.SeedStoragePool(t, db, "dc", "4.4")
	everyone := testutil.SeedQuota(t, db, sp.ID, access.EveryoneID, 0, true)
	owner := uuid.New()
	own := testutil.SeedQuota(t, db, sp.ID, owner, 10, false)
	l, _ := newLedger(t, db)
	dbc := dbctx.New(context.Background())

	got, err := l.ForOwner(dbc, sp.ID, owner)
	if err != nil || got.ID != own.ID {
		t.Fatalf("ForOwner own: want=%s got=%+v err=%v", own.ID, got, err)
	}
	got, err = l.ForOwner(dbc, sp.ID, uuid.New())
	if err != nil || got.ID != everyone.ID {
		t.Fatalf("ForOwner fallback: want=%s got=%+v err=%v", everyone.ID, got, err)
	}
	if _, err := l.ForOwner(dbc, uuid.New(), owner); !faults.IsCode(err, faults.CodeNotFound) {
		t.Fatalf("ForOwner unknown pool: want not_found got=%v", err)
	}
}
