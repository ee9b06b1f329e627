package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/dcengine/internal/clients/redis"
	"github.com/yungbote/dcengine/internal/data/db"
	httpx "github.com/yungbote/dcengine/internal/http"
	httpMW "github.com/yungbote/dcengine/internal/http/middleware"
	"github.com/yungbote/dcengine/internal/observability"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

type App struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Redis   goredis.UniversalClient
	Cfg     Config
	Repos   Repos
	Engine  *Engine
	Server  *httpx.Server
	Auth    *httpMW.AuthMiddleware
	Metrics *observability.Metrics

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(context.Background(), log, cfg.Otel)

	theDB, err := db.Open(db.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
	}, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := db.AutoMigrateAll(theDB); err != nil {
			log.Sync()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		if err := db.SeedAccess(theDB); err != nil {
			log.Sync()
			return nil, fmt.Errorf("seed access: %w", err)
		}
	}

	rdb, err := redisclient.New(context.Background(), log, redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Sync()
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	reposet := wireRepos(theDB, log)
	eng, err := wireEngine(theDB, log, cfg, reposet, rdb, metrics)
	if err != nil {
		log.Sync()
		return nil, err
	}
	srv, auth, err := wireHTTP(theDB, log, cfg, eng, metrics)
	if err != nil {
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Redis:        rdb,
		Cfg:          cfg,
		Repos:        reposet,
		Engine:       eng,
		Server:       srv,
		Auth:         auth,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers. It is safe to call once.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Engine != nil && a.Engine.Sweeper != nil {
		a.Engine.Sweeper.Start(ctx)
	}
	if a.Metrics != nil {
		a.Metrics.StartCollectors(ctx, a.Log, a.Cfg.MetricsInterval, a.DB, a.Redis, a.Engine.Emitter.Dropped)
		if a.Cfg.MetricsAddr != "" {
			a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		}
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run()
}

func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	var errs []error
	if a.Server != nil {
		errs = append(errs, a.Server.Shutdown(ctx))
	}
	if a.otelShutdown != nil {
		errs = append(errs, a.otelShutdown(ctx))
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}
