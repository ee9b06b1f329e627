package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/dcengine/internal/http/handlers"
	httpMW "github.com/yungbote/dcengine/internal/http/middleware"
	"github.com/yungbote/dcengine/internal/observability"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	CommandHandler *httpH.CommandHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}
	if cfg.CommandHandler != nil {
		api.GET("/actions", cfg.CommandHandler.Catalog)
		api.POST("/actions/:type", cfg.CommandHandler.RunAction)
		api.POST("/queries/:type", cfg.CommandHandler.RunQuery)
		api.GET("/invocations/:id", cfg.CommandHandler.GetInvocation)
		api.DELETE("/invocations/:id", cfg.CommandHandler.CancelInvocation)
	}
	return r
}
