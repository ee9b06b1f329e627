package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/clients/imageio"
	"github.com/yungbote/dcengine/internal/data/repos/testutil"
	types "github.com/yungbote/dcengine/internal/domain"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
	"github.com/yungbote/dcengine/internal/engine/enginetest"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/engine/ticket"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

type agentAdapter struct {
	mu      sync.Mutex
	removed []string
}

func (a *agentAdapter) AddTicket(context.Context, imageio.Ticket) error { return nil }

func (a *agentAdapter) ExtendTicket(context.Context, string, time.Duration) error { return nil }

func (a *agentAdapter) RemoveTicket(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removed = append(a.removed, id)
	return nil
}

type seeded struct {
	quota   *types.Quota
	image   *types.DiskImage
	session *types.TransferSession
}

func openSession(t *testing.T, e *enginetest.Env, dir dtransfer.Direction) seeded {
	t.Helper()
	pool := testutil.SeedStoragePool(t, e.DB, "dc-"+uuid.NewString()[:8], "4.7")
	sd := testutil.SeedStorageDomain(t, e.DB, pool.ID, "data", 100<<30)
	owner := testutil.SeedPrincipal(t, e.DB, "owner-"+uuid.NewString()[:8])
	q := testutil.SeedQuota(t, e.DB, pool.ID, owner.ID, 10<<30, false)
	img := testutil.SeedDiskImage(t, e.DB, sd.ID, "disk", 1<<30)
	if err := e.DB.Model(img).Update("status", dcluster.ImageLocked).Error; err != nil {
		t.Fatalf("lock image: %v", err)
	}

	var tk ticket.Ticket
	err := e.Runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		var tok quota.Token
		if dir == dtransfer.DirectionUpload {
			var err error
			if tok, err = e.Ledger.Reserve(dbc, q.ID, img.SizeBytes); err != nil {
				return err
			}
		}
		var err error
		tk, err = e.Tracker.Open(dbc, ticket.OpenInput{
			ImageID:         img.ID,
			StorageDomainID: sd.ID,
			OwnerID:         owner.ID,
			Direction:       dir,
			SizeBytes:       img.SizeBytes,
			Reservation:     tok,
		})
		return err
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return seeded{quota: q, image: img, session: tk.Session}
}

func newSweeper(e *enginetest.Env, agent *agentAdapter) *Sweeper {
	return New(e.Log, Deps{
		Tracker: e.Tracker,
		Agent:   agent,
		Audit:   e.Emitter,
	}, Config{Concurrency: 2}).WithClock(e.Clock.Now)
}

func TestSweepExpiresLapsedUpload(t *testing.T) {
	e := enginetest.New(t)
	agent := &agentAdapter{}
	s := openSession(t, e, dtransfer.DirectionUpload)
	sw := newSweeper(e, agent)

	if n, err := sw.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("sweep before expiry: n=%d err=%v", n, err)
	}

	e.Clock.Advance(6 * time.Minute)
	n, err := sw.Sweep(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Sweep: n=%d err=%v", n, err)
	}

	dbc := dbctx.New(context.Background())
	sess, _ := e.Sessions.GetByID(dbc, s.session.ID)
	if sess.Status != dtransfer.SessionExpired || !sess.ReservationSettled {
		t.Fatalf("session: %+v", sess)
	}
	q, _ := e.Quotas.GetByID(dbc, s.quota.ID)
	if q.ReservedBytes != 0 || q.CommittedBytes != 0 {
		t.Fatalf("quota not released: %+v", q)
	}
	img, _ := e.Images.GetByID(dbc, s.image.ID)
	if img.Status != dcluster.ImageIllegal {
		t.Fatalf("image status: %s", img.Status)
	}
	if len(agent.removed) != 1 || agent.removed[0] != s.session.ID.String() {
		t.Fatalf("agent removals: %v", agent.removed)
	}
	rec := e.RequireAudit(t, EventSessionExpired)
	if rec.TargetID != s.image.ID.String() {
		t.Fatalf("audit target: %s", rec.TargetID)
	}

	// A second sweep finds nothing left to do.
	if n, err := sw.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("repeat sweep: n=%d err=%v", n, err)
	}
}

func TestSweepUnlocksLapsedDownload(t *testing.T) {
	e := enginetest.New(t)
	s := openSession(t, e, dtransfer.DirectionDownload)
	e.Clock.Advance(time.Hour)

	if n, err := newSweeper(e, &agentAdapter{}).Sweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("Sweep: n=%d err=%v", n, err)
	}
	img, _ := e.Images.GetByID(dbctx.New(context.Background()), s.image.ID)
	if img.Status != dcluster.ImageOK {
		t.Fatalf("image status: %s", img.Status)
	}
}

func TestSweepSkipsRenewedSession(t *testing.T) {
	e := enginetest.New(t)
	s := openSession(t, e, dtransfer.DirectionUpload)

	e.Clock.Advance(4 * time.Minute)
	if _, err := e.Tracker.Renew(context.Background(), s.session.ID); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	e.Clock.Advance(4 * time.Minute)

	if n, err := newSweeper(e, &agentAdapter{}).Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("Sweep: n=%d err=%v", n, err)
	}
	sess, _ := e.Sessions.GetByID(dbctx.New(context.Background()), s.session.ID)
	if !sess.Status.Live() {
		t.Fatalf("renewed session expired: %s", sess.Status)
	}
}

func TestSweepLeavesSessionsEndedElsewhere(t *testing.T) {
	e := enginetest.New(t, "values:\n  TransferMaxTicketRenewals: 0\n")
	agent := &agentAdapter{}
	s := openSession(t, e, dtransfer.DirectionDownload)

	// A refused renewal already expired the session and released the image.
	if _, err := e.Tracker.Renew(context.Background(), s.session.ID); err == nil {
		t.Fatalf("Renew: expected refusal")
	}
	img, _ := e.Images.GetByID(dbctx.New(context.Background()), s.image.ID)
	if img.Status != dcluster.ImageOK {
		t.Fatalf("image after refused renewal: %s", img.Status)
	}

	e.Clock.Advance(time.Hour)
	if n, err := newSweeper(e, agent).Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("Sweep: n=%d err=%v", n, err)
	}
	if len(agent.removed) != 0 {
		t.Fatalf("agent removals: %v", agent.removed)
	}
	if recs := e.Audit(t); len(recs) != 0 {
		t.Fatalf("audit records: %d", len(recs))
	}
}
