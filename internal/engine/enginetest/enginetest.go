// Package enginetest wires a complete engine over a private in-memory
// database for command tests.
package enginetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	accessrepo "github.com/yungbote/dcengine/internal/data/repos/access"
	auditrepo "github.com/yungbote/dcengine/internal/data/repos/audit"
	clusterrepo "github.com/yungbote/dcengine/internal/data/repos/cluster"
	quotarepo "github.com/yungbote/dcengine/internal/data/repos/quota"
	"github.com/yungbote/dcengine/internal/data/repos/testutil"
	transferrepo "github.com/yungbote/dcengine/internal/data/repos/transfer"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/engine/audit"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/configstore"
	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/engine/ticket"
	"github.com/yungbote/dcengine/internal/engine/versioning"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

const SigningKey = "enginetest-signing-key"

type Env struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner store.TxRunner
	Hooks  *store.CountingHooks

	Pools        clusterrepo.StoragePoolRepo
	Networks     clusterrepo.NetworkRepo
	Domains      clusterrepo.StorageDomainRepo
	Images       clusterrepo.DiskImageRepo
	Principals   accessrepo.PrincipalRepo
	Permissions  accessrepo.PermissionRepo
	Quotas       quotarepo.QuotaRepo
	Reservations quotarepo.ReservationRepo
	Sessions     transferrepo.SessionRepo
	AuditLog     auditrepo.AuditLogRepo

	Config   *configstore.Store
	Versions *versioning.Oracle
	Resolver *permissions.Resolver
	Emitter  *audit.Emitter
	Ledger   *quota.Ledger
	Tracker  *ticket.Tracker
	Clock    *Clock

	Registry   *command.Registry
	Dispatcher *command.Dispatcher
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// New builds an engine. configYAML documents are layered over the defaults.
func New(tb testing.TB, configYAML ...string) *Env {
	tb.Helper()
	db := testutil.DB(tb)
	log := testutil.Logger(tb)
	docs := make([][]byte, 0, len(configYAML))
	for _, d := range configYAML {
		docs = append(docs, []byte(d))
	}
	cfg, err := configstore.Load(docs...)
	if err != nil {
		tb.Fatalf("load config: %v", err)
	}
	versions, err := versioning.New(cfg)
	if err != nil {
		tb.Fatalf("version oracle: %v", err)
	}

	e := &Env{
		DB:           db,
		Log:          log,
		Runner:       store.NewGormTxRunner(db),
		Hooks:        store.NewCountingHooks(),
		Pools:        clusterrepo.NewStoragePoolRepo(db, log),
		Networks:     clusterrepo.NewNetworkRepo(db, log),
		Domains:      clusterrepo.NewStorageDomainRepo(db, log),
		Images:       clusterrepo.NewDiskImageRepo(db, log),
		Principals:   accessrepo.NewPrincipalRepo(db, log),
		Permissions:  accessrepo.NewPermissionRepo(db, log),
		Quotas:       quotarepo.NewQuotaRepo(db, log),
		Reservations: quotarepo.NewReservationRepo(db, log),
		Sessions:     transferrepo.NewSessionRepo(db, log),
		AuditLog:     auditrepo.NewAuditLogRepo(db, log),
		Config:       cfg,
		Versions:     versions,
		Clock:        &Clock{now: time.Now().UTC()},
		Registry:     command.NewRegistry(),
	}
	e.Resolver = permissions.NewResolver(log, permissions.Deps{
		Principals:     e.Principals,
		Permissions:    e.Permissions,
		StorageDomains: e.Domains,
		DiskImages:     e.Images,
		Quotas:         e.Quotas,
	})
	e.Emitter = audit.NewEmitter(log, audit.NewGormSink(e.AuditLog), e.Hooks, 0)
	e.Ledger = quota.NewLedger(log, e.Runner, e.Hooks, e.Quotas, e.Reservations)
	signer, err := ticket.NewSigner(SigningKey, "")
	if err != nil {
		tb.Fatalf("signer: %v", err)
	}
	e.Tracker = ticket.NewTracker(log, e.Runner, e.Hooks, e.Sessions, e.Ledger, signer, ticket.Config{
		Lifetime:    cfg.Duration(configstore.TransferTicketLifetime),
		MaxRenewals: cfg.Int(configstore.TransferMaxTicketRenewals),
	}).WithClock(e.Clock.Now).WithEndHook(ticket.ReleaseImage(e.Images))
	e.Observe(tb, nil)
	return e
}

// Observe rebuilds the dispatcher so every dispatch reports to obs. Commands
// already registered stay registered.
func (e *Env) Observe(tb testing.TB, obs command.Observer) {
	tb.Helper()
	d, err := command.NewDispatcher(e.Log, command.Deps{
		Registry:    e.Registry,
		Permissions: e.Resolver,
		Runner:      e.Runner,
		Audit:       e.Emitter,
		Metrics:     obs,
	})
	if err != nil {
		tb.Fatalf("dispatcher: %v", err)
	}
	e.Dispatcher = d
}

// Admin returns an active principal holding SuperUser on the system object.
func (e *Env) Admin(tb testing.TB) uuid.UUID {
	tb.Helper()
	p := testutil.SeedPrincipal(tb, e.DB, "admin-"+uuid.NewString()[:8])
	testutil.Grant(tb, e.DB, p.ID, access.RoleSuperUser, access.SystemObjectID, access.ObjectSystem)
	return p.ID
}

// Audit lists every persisted record in sequence order.
func (e *Env) Audit(tb testing.TB) []*types.AuditRecord {
	tb.Helper()
	recs, err := e.AuditLog.List(dbctx.New(context.Background()), auditrepo.Filter{})
	if err != nil {
		tb.Fatalf("list audit: %v", err)
	}
	return recs
}

// RequireAudit asserts exactly one record exists, with the given event.
func (e *Env) RequireAudit(tb testing.TB, event string) *types.AuditRecord {
	tb.Helper()
	recs := e.Audit(tb)
	if len(recs) != 1 {
		events := make([]string, 0, len(recs))
		for _, r := range recs {
			events = append(events, r.EventType)
		}
		tb.Fatalf("audit records: want 1 (%s) got=%d %v", event, len(recs), events)
	}
	if recs[0].EventType != event {
		tb.Fatalf("audit event: want %s got=%s", event, recs[0].EventType)
	}
	return recs[0]
}
