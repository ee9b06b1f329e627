package app

import (
	"gorm.io/gorm"

	httpx "github.com/yungbote/dcengine/internal/http"
	httpH "github.com/yungbote/dcengine/internal/http/handlers"
	httpMW "github.com/yungbote/dcengine/internal/http/middleware"
	"github.com/yungbote/dcengine/internal/observability"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

func wireHTTP(db *gorm.DB, log *logger.Logger, cfg Config, eng *Engine, metrics *observability.Metrics) (*httpx.Server, *httpMW.AuthMiddleware, error) {
	log.Info("Wiring HTTP surface...")
	auth, err := httpMW.NewAuthMiddleware(log, httpMW.AuthConfig{
		Secret: cfg.AuthTokenSecret,
		Issuer: cfg.AuthTokenIssuer,
	})
	if err != nil {
		return nil, nil, err
	}
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	srv := httpx.NewServer(cfg.HTTPAddr, httpx.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSOrigins,
		AuthMiddleware: auth,
		CommandHandler: httpH.NewCommandHandler(log, eng.Dispatcher, eng.Registry),
		HealthHandler:  httpH.NewHealthHandler(db),
	})
	return srv, auth, nil
}
