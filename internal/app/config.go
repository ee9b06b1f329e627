package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/yungbote/dcengine/internal/clients/imageio"
	"github.com/yungbote/dcengine/internal/observability"
)

type Config struct {
	LogMode  string `env:"LOG_MODE" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DBDriver       string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBAutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	SlowWrite      time.Duration `env:"STORE_SLOW_WRITE_THRESHOLD" envDefault:"500ms"`

	// EngineConfigPath is a YAML document layered over the built-in
	// engine configuration.
	EngineConfigPath string `env:"ENGINE_CONFIG_PATH"`

	AuthTokenSecret  string `env:"AUTH_TOKEN_SECRET,required"`
	AuthTokenIssuer  string `env:"AUTH_TOKEN_ISSUER" envDefault:"dcengine"`
	TicketSigningKey string `env:"TICKET_SIGNING_KEY,required"`
	TicketIssuer     string `env:"TICKET_ISSUER" envDefault:"dcengine"`

	RedisAddr         string `env:"REDIS_ADDR"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	AuditStream       string `env:"AUDIT_STREAM" envDefault:"dcengine:audit"`
	AuditStreamMaxLen int64  `env:"AUDIT_STREAM_MAXLEN" envDefault:"100000"`

	SweepInterval    time.Duration `env:"TRANSFER_SWEEP_INTERVAL" envDefault:"30s"`
	SweepBatch       int           `env:"TRANSFER_SWEEP_BATCH" envDefault:"100"`
	SweepConcurrency int           `env:"TRANSFER_SWEEP_CONCURRENCY" envDefault:"4"`

	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	MetricsInterval time.Duration `env:"METRICS_SCRAPE_INTERVAL" envDefault:"15s"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	ImageIO imageio.Config
	Otel    observability.OtelConfig
}

func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
