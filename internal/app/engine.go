package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/yungbote/dcengine/internal/clients/imageio"
	"github.com/yungbote/dcengine/internal/commands/storagepool"
	"github.com/yungbote/dcengine/internal/commands/transfer"
	"github.com/yungbote/dcengine/internal/data/store"
	"github.com/yungbote/dcengine/internal/engine/audit"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/configstore"
	"github.com/yungbote/dcengine/internal/engine/permissions"
	"github.com/yungbote/dcengine/internal/engine/quota"
	"github.com/yungbote/dcengine/internal/engine/sweeper"
	"github.com/yungbote/dcengine/internal/engine/ticket"
	"github.com/yungbote/dcengine/internal/engine/versioning"
	"github.com/yungbote/dcengine/internal/observability"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"github.com/yungbote/dcengine/internal/queries/cpu"
)

type Engine struct {
	Config     *configstore.Store
	Versions   *versioning.Oracle
	Runner     store.TxRunner
	Hooks      store.Hooks
	Resolver   *permissions.Resolver
	Emitter    *audit.Emitter
	Ledger     *quota.Ledger
	Tracker    *ticket.Tracker
	Agent      imageio.Agent
	Registry   *command.Registry
	Dispatcher *command.Dispatcher
	Sweeper    *sweeper.Sweeper
}

func wireEngine(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, rdb goredis.UniversalClient, metrics *observability.Metrics) (*Engine, error) {
	log.Info("Wiring engine...")
	conf, err := configstore.LoadFile(cfg.EngineConfigPath)
	if err != nil {
		return nil, err
	}
	versions, err := versioning.New(conf)
	if err != nil {
		return nil, fmt.Errorf("version oracle: %w", err)
	}

	e := &Engine{
		Config:   conf,
		Versions: versions,
		Runner:   store.NewGormTxRunner(db),
		Hooks:    store.JoinHooks(store.NewLogHooks(log, cfg.SlowWrite), metrics),
		Registry: command.NewRegistry(),
	}
	e.Resolver = permissions.NewResolver(log, permissions.Deps{
		Principals:     repos.Principals,
		Permissions:    repos.Permissions,
		StorageDomains: repos.Domains,
		DiskImages:     repos.Images,
		Quotas:         repos.Quotas,
	})

	sink := audit.NewGormSink(repos.AuditLog)
	if rdb != nil {
		sink = audit.NewMultiSink(sink, audit.NewRedisStreamSink(rdb, cfg.AuditStream, cfg.AuditStreamMaxLen))
	}
	lastSeq, err := repos.AuditLog.MaxSeq(dbctx.Context{})
	if err != nil {
		return nil, fmt.Errorf("audit sequence: %w", err)
	}
	e.Emitter = audit.NewEmitter(log, sink, e.Hooks, lastSeq)

	e.Ledger = quota.NewLedger(log, e.Runner, e.Hooks, repos.Quotas, repos.Reservations)
	signer, err := ticket.NewSigner(cfg.TicketSigningKey, cfg.TicketIssuer)
	if err != nil {
		return nil, err
	}
	e.Tracker = ticket.NewTracker(log, e.Runner, e.Hooks, repos.Sessions, e.Ledger, signer, ticket.Config{
		Lifetime:    conf.Duration(configstore.TransferTicketLifetime),
		MaxRenewals: conf.Int(configstore.TransferMaxTicketRenewals),
	}).WithEndHook(ticket.ReleaseImage(repos.Images))

	e.Agent = imageio.Noop{}
	if cfg.ImageIO.BaseURL != "" {
		if e.Agent, err = imageio.New(log, cfg.ImageIO); err != nil {
			return nil, err
		}
	} else {
		log.Warn("IMAGEIO_URL not set; transfer tickets are not registered with a host agent")
	}

	if err := registerCommands(e, log, repos); err != nil {
		return nil, err
	}
	e.Dispatcher, err = command.NewDispatcher(log, command.Deps{
		Registry:    e.Registry,
		Permissions: e.Resolver,
		Runner:      e.Runner,
		Audit:       e.Emitter,
		Tracer:      otel.Tracer("dcengine/command"),
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	e.Sweeper = sweeper.New(log, sweeper.Deps{
		Tracker: e.Tracker,
		Agent:   e.Agent,
		Audit:   e.Emitter,
		Metrics: metrics,
	}, sweeper.Config{
		Interval:    cfg.SweepInterval,
		BatchSize:   cfg.SweepBatch,
		Concurrency: cfg.SweepConcurrency,
	})
	return e, nil
}

func registerCommands(e *Engine, log *logger.Logger, repos Repos) error {
	if err := storagepool.Register(e.Registry, storagepool.NewHandler(storagepool.Deps{
		Log:         log,
		Runner:      e.Runner,
		Hooks:       e.Hooks,
		Pools:       repos.Pools,
		Networks:    repos.Networks,
		Quotas:      repos.Quotas,
		Permissions: repos.Permissions,
		Config:      e.Config,
		Versions:    e.Versions,
	})); err != nil {
		return err
	}
	if err := transfer.Register(e.Registry, transfer.NewHandler(transfer.Deps{
		Log:      log,
		Runner:   e.Runner,
		Hooks:    e.Hooks,
		Pools:    repos.Pools,
		Domains:  repos.Domains,
		Images:   repos.Images,
		Sessions: repos.Sessions,
		Ledger:   e.Ledger,
		Tracker:  e.Tracker,
		Agent:    e.Agent,
		Config:   e.Config,
		Versions: e.Versions,
	})); err != nil {
		return err
	}
	if err := cpu.Register(e.Registry, e.Config); err != nil {
		return err
	}
	log.Info("Registered commands", "actions", e.Registry.Actions(), "queries", e.Registry.Queries())
	return nil
}
