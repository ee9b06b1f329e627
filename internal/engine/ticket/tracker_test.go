package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	quotarepo "github.com/yungbote/dcengine/internal/data/repos/quota"
	"github.com/yungbote/dcengine/internal/data/repos/testutil"
	transferrepo "github.com/yungbote/dcengine/internal/data/repos/transfer"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/faults"
	dquota "github.com/yungbote/dcengine/internal/domain/quota"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

type fixture struct {
	db      *gorm.DB
	tracker *Tracker
	ledger  *quota.Ledger
	quota   *types.Quota
	clock   time.Time
}

func newFixture(t *testing.T, maxRenewals int) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	runner := store.NewGormTxRunner(db)
	ledger := quota.NewLedger(log, runner, nil, quotarepo.NewQuotaRepo(db, log), quotarepo.NewReservationRepo(db, log))
	signer, err := NewSigner("test-signing-key", "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sp := testutil.SeedStoragePool(t, db, "dc", "4.4")
	f := &fixture{
		db:     db,
		ledger: ledger,
		quota:  testutil.SeedQuota(t, db, sp.ID, uuid.New(), 100, false),
		clock:  time.Now().UTC().Truncate(time.Second),
	}
	tracker := NewTracker(log, runner, nil, transferrepo.NewSessionRepo(db, log), ledger, signer, Config{Lifetime: time.Minute, MaxRenewals: maxRenewals})
	f.tracker = tracker.WithClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) open(t *testing.T, dir dtransfer.Direction, amount int64) Ticket {
	t.Helper()
	dbc := dbctx.New(context.Background())
	tok, err := f.ledger.Reserve(dbc, f.quota.ID, amount)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	tk, err := f.tracker.Open(dbc, OpenInput{
		ImageID:     uuid.New(),
		OwnerID:     uuid.New(),
		Direction:   dir,
		SizeBytes:   amount,
		Reservation: tok,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tk
}

func (f *fixture) reserved(t *testing.T) (int64, int64) {
	t.Helper()
	var q types.Quota
	if err := f.db.Where("id = ?", f.quota.ID).Take(&q).Error; err != nil {
		t.Fatalf("load quota: %v", err)
	}
	return q.ReservedBytes, q.CommittedBytes
}

func (f *fixture) reservation(t *testing.T, sess *types.TransferSession) *types.QuotaReservation {
	t.Helper()
	var res types.QuotaReservation
	if err := f.db.Where("id = ?", *sess.ReservationID).Take(&res).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	return &res
}

func TestRenewBoundedThenExpires(t *testing.T) {
	f := newFixture(t, 5)
	tk := f.open(t, dtransfer.DirectionUpload, 40)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		f.clock = f.clock.Add(10 * time.Second)
		renewed, err := f.tracker.Renew(ctx, tk.Session.ID)
		if err != nil {
			t.Fatalf("Renew %d: %v", i, err)
		}
		if renewed.Session.Renewals != i || renewed.Session.Status != dtransfer.SessionRenewed {
			t.Fatalf("Renew %d: renewals=%d status=%s", i, renewed.Session.Renewals, renewed.Session.Status)
		}
		if !renewed.Session.ExpiresAt.Equal(f.clock.Add(time.Minute)) {
			t.Fatalf("Renew %d: expires_at=%s want=%s", i, renewed.Session.ExpiresAt, f.clock.Add(time.Minute))
		}
	}

	if _, err := f.tracker.Renew(ctx, tk.Session.ID); !faults.IsCode(err, faults.CodeSessionExpired) {
		t.Fatalf("Renew 6: want session_expired got=%v", err)
	}
	sess, err := f.tracker.Get(ctx, tk.Session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Status != dtransfer.SessionExpired || !sess.ReservationSettled {
		t.Fatalf("after 6th renewal: status=%s settled=%v", sess.Status, sess.ReservationSettled)
	}
	if res := f.reservation(t, sess); res.Status != dquota.ReservationReleased {
		t.Fatalf("reservation: want=released got=%s", res.Status)
	}
	if reserved, _ := f.reserved(t); reserved != 0 {
		t.Fatalf("reserved bytes: want=0 got=%d", reserved)
	}

	// Later attempts change nothing and never release twice.
	if won, err := f.tracker.Expire(ctx, tk.Session.ID); err != nil || won {
		t.Fatalf("Expire after expiry: won=%v err=%v", won, err)
	}
	if _, err := f.tracker.Renew(ctx, tk.Session.ID); !faults.IsCode(err, faults.CodeSessionExpired) {
		t.Fatalf("Renew after expiry: want session_expired got=%v", err)
	}
	if reserved, _ := f.reserved(t); reserved != 0 {
		t.Fatalf("reserved bytes after retries: want=0 got=%d", reserved)
	}
}

func TestRenewAfterDeadlineExpires(t *testing.T) {
	f := newFixture(t, 5)
	tk := f.open(t, dtransfer.DirectionDownload, 10)

	f.clock = f.clock.Add(2 * time.Minute)
	if _, err := f.tracker.Renew(context.Background(), tk.Session.ID); !faults.IsCode(err, faults.CodeSessionExpired) {
		t.Fatalf("late Renew: want session_expired got=%v", err)
	}
	if reserved, _ := f.reserved(t); reserved != 0 {
		t.Fatalf("reserved bytes: want=0 got=%d", reserved)
	}
}

func TestCloseSettlesOnce(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	upload := f.open(t, dtransfer.DirectionUpload, 30)
	if won, err := f.tracker.Close(ctx, upload.Session.ID, CloseInput{Succeeded: true, Reason: "finalized"}); err != nil || !won {
		t.Fatalf("Close upload: won=%v err=%v", won, err)
	}
	if won, err := f.tracker.Close(ctx, upload.Session.ID, CloseInput{Succeeded: false}); err != nil || won {
		t.Fatalf("second Close: won=%v err=%v", won, err)
	}
	if reserved, committed := f.reserved(t); reserved != 0 || committed != 30 {
		t.Fatalf("after successful upload close: reserved=%d committed=%d", reserved, committed)
	}

	failed := f.open(t, dtransfer.DirectionUpload, 20)
	if _, err := f.tracker.Close(ctx, failed.Session.ID, CloseInput{Reason: "agent error"}); err != nil {
		t.Fatalf("Close failed upload: %v", err)
	}
	if reserved, committed := f.reserved(t); reserved != 0 || committed != 30 {
		t.Fatalf("after failed close: reserved=%d committed=%d", reserved, committed)
	}
	if _, err := f.tracker.Renew(ctx, failed.Session.ID); !faults.IsCode(err, faults.CodePreconditionFailed) {
		t.Fatalf("Renew closed session: want precondition_failed got=%v", err)
	}
	if _, err := f.tracker.Close(ctx, uuid.New(), CloseInput{}); !faults.IsCode(err, faults.CodeNotFound) {
		t.Fatalf("Close unknown: want not_found got=%v", err)
	}
}

func TestRenewRacingExpiryNeverRevives(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	tk := f.open(t, dtransfer.DirectionUpload, 10)

	var g errgroup.Group
	g.Go(func() error {
		_, err := f.tracker.Expire(ctx, tk.Session.ID)
		return err
	})
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := f.tracker.Renew(ctx, tk.Session.ID)
			if err != nil && !faults.IsCode(err, faults.CodeSessionExpired) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("race: %v", err)
	}
	sess, err := f.tracker.Get(ctx, tk.Session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Status != dtransfer.SessionExpired {
		t.Fatalf("status after race: want=expired got=%s", sess.Status)
	}
	if reserved, _ := f.reserved(t); reserved != 0 {
		t.Fatalf("reserved bytes: want=0 got=%d", reserved)
	}
}

type endCall struct {
	id uuid.UUID
	to dtransfer.SessionStatus
}

func TestEndHookRunsOnceForRefusedRenewal(t *testing.T) {
	f := newFixture(t, 0)
	var calls []endCall
	f.tracker = f.tracker.WithEndHook(func(_ dbctx.Context, sess *types.TransferSession, to dtransfer.SessionStatus, _ CloseInput) error {
		calls = append(calls, endCall{id: sess.ID, to: to})
		return nil
	})
	ctx := context.Background()
	tk := f.open(t, dtransfer.DirectionDownload, 10)

	if _, err := f.tracker.Renew(ctx, tk.Session.ID); !faults.IsCode(err, faults.CodeSessionExpired) {
		t.Fatalf("Renew: want session_expired got=%v", err)
	}
	if len(calls) != 1 || calls[0].id != tk.Session.ID || calls[0].to != dtransfer.SessionExpired {
		t.Fatalf("hook calls after refused renewal: %+v", calls)
	}

	if won, err := f.tracker.Expire(ctx, tk.Session.ID); err != nil || won {
		t.Fatalf("Expire ended session: won=%v err=%v", won, err)
	}
	if won, err := f.tracker.Close(ctx, tk.Session.ID, CloseInput{Succeeded: true}); err != nil || won {
		t.Fatalf("Close ended session: won=%v err=%v", won, err)
	}
	if len(calls) != 1 {
		t.Fatalf("hook ran for a lost transition: %+v", calls)
	}
}

func TestExpireReportsWinner(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	tk := f.open(t, dtransfer.DirectionUpload, 10)

	wins := make([]bool, 4)
	var g errgroup.Group
	for i := range wins {
		g.Go(func() error {
			won, err := f.tracker.Expire(ctx, tk.Session.ID)
			wins[i] = won
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	n := 0
	for _, w := range wins {
		if w {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("winners: want=1 got=%d", n)
	}
}

func TestReleasedStatus(t *testing.T) {
	tests := []struct {
		dir       dtransfer.Direction
		to        dtransfer.SessionStatus
		succeeded bool
		want      dcluster.ImageStatus
	}{
		{dtransfer.DirectionUpload, dtransfer.SessionClosed, true, dcluster.ImageOK},
		{dtransfer.DirectionUpload, dtransfer.SessionClosed, false, dcluster.ImageIllegal},
		{dtransfer.DirectionUpload, dtransfer.SessionExpired, true, dcluster.ImageIllegal},
		{dtransfer.DirectionDownload, dtransfer.SessionClosed, false, dcluster.ImageOK},
		{dtransfer.DirectionDownload, dtransfer.SessionExpired, false, dcluster.ImageOK},
	}
	for _, tt := range tests {
		if got := ReleasedStatus(tt.dir, tt.to, tt.succeeded); got != tt.want {
			t.Fatalf("ReleasedStatus(%s, %s, %v): want=%s got=%s", tt.dir, tt.to, tt.succeeded, tt.want, got)
		}
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t, 5)
	tk := f.open(t, dtransfer.DirectionDownload, 5)

	claims, err := f.tracker.Verify(tk.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.SessionID != tk.Session.ID.String() || claims.Direction != "download" || len(claims.Ops) != 1 || claims.Ops[0] != "read" {
		t.Fatalf("claims: %+v", claims)
	}
	if _, err := f.tracker.Verify(tk.Token + "x"); !faults.IsCode(err, faults.CodeUnauthorized) {
		t.Fatalf("tampered: want unauthorized got=%v", err)
	}

	other, _ := NewSigner("other-key", "")
	forged, err := other.Sign(tk.Session, time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := f.tracker.Verify(forged); !faults.IsCode(err, faults.CodeUnauthorized) {
		t.Fatalf("foreign key: want unauthorized got=%v", err)
	}

	stale := *tk.Session
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	expired, err := f.tracker.signer.Sign(&stale, time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := f.tracker.Verify(expired); !faults.IsCode(err, faults.CodeSessionExpired) {
		t.Fatalf("expired ticket: want session_expired got=%v", err)
	}
}

func TestOpenValidatesInput(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.tracker.Open(dbctx.New(context.Background()), OpenInput{ImageID: uuid.New(), OwnerID: uuid.New(), Direction: "sideways"})
	if !faults.IsCode(err, faults.CodeValidation) {
		t.Fatalf("unknown direction: want validation got=%v", err)
	}
}
