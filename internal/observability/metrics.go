package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/dcengine/internal/platform/logger"
)

// Metrics is the process metric registry. A nil *Metrics is valid and
// records nothing, so callers never need to check whether metrics are on.
type Metrics struct {
	apiRequests    *CounterVec
	apiLatency     *HistogramVec
	apiInflight    *Gauge
	commands       *CounterVec
	commandLatency *HistogramVec
	storeOps       *CounterVec
	storeLatency   *HistogramVec
	storeConflicts *CounterVec
	storeRetries   *CounterVec
	auditDropped   *Gauge
	sweptSessions  *CounterVec
	dbStats        *GaugeVec
	redisUp        *Gauge
	redisPing      *Gauge
}

func NewMetrics() *Metrics {
	latency := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	return &Metrics{
		apiRequests:    NewCounterVec("dce_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:     NewHistogramVec("dce_api_request_duration_seconds", "API request latency by method/route.", []string{"method", "route"}, latency),
		apiInflight:    NewGauge("dce_api_inflight_requests", "In-flight API requests."),
		commands:       NewCounterVec("dce_commands_total", "Dispatched commands by action/outcome/kind.", []string{"action", "outcome", "kind"}),
		commandLatency: NewHistogramVec("dce_command_duration_seconds", "Command dispatch latency by action/outcome.", []string{"action", "outcome"}, latency),
		storeOps:       NewCounterVec("dce_store_operations_total", "Write units of work by op/status.", []string{"op", "status"}),
		storeLatency:   NewHistogramVec("dce_store_operation_duration_seconds", "Write unit of work latency by op.", []string{"op"}, latency),
		storeConflicts: NewCounterVec("dce_store_conflicts_total", "Write conflicts by op.", []string{"op"}),
		storeRetries:   NewCounterVec("dce_store_retryable_total", "Retryable write failures by op.", []string{"op"}),
		auditDropped:   NewGauge("dce_audit_dropped_records", "Audit records the sink failed to persist."),
		sweptSessions:  NewCounterVec("dce_transfer_sessions_swept_total", "Transfer sessions expired by the sweeper.", []string{"status"}),
		dbStats:        NewGaugeVec("dce_db_pool", "Database connection pool stats.", []string{"stat"}),
		redisUp:        NewGauge("dce_redis_up", "1 when the last redis ping succeeded."),
		redisPing:      NewGauge("dce_redis_ping_seconds", "Latency of the last redis ping."),
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) ObserveCommand(action, outcome, kind string, dur time.Duration) {
	if m == nil {
		return
	}
	m.commands.Inc(action, outcome, kind)
	m.commandLatency.Observe(dur.Seconds(), action, outcome)
}

func (m *Metrics) CommandCount(action, outcome, kind string) float64 {
	if m == nil {
		return 0
	}
	return m.commands.Value(action, outcome, kind)
}

// ObserveOperation, IncConflict and IncRetry satisfy store.Hooks.
func (m *Metrics) ObserveOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeOps.Inc(name, status)
	m.storeLatency.Observe(dur.Seconds(), name)
}

func (m *Metrics) IncConflict(name string) {
	if m == nil {
		return
	}
	m.storeConflicts.Inc(name)
}

func (m *Metrics) IncRetry(name string) {
	if m == nil {
		return
	}
	m.storeRetries.Inc(name)
}

func (m *Metrics) ObserveSweep(expired, failed int) {
	if m == nil {
		return
	}
	for i := 0; i < expired; i++ {
		m.sweptSessions.Inc("expired")
	}
	for i := 0; i < failed; i++ {
		m.sweptSessions.Inc("failed")
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.commands, m.commandLatency,
		m.storeOps, m.storeLatency, m.storeConflicts, m.storeRetries,
		m.auditDropped, m.sweptSessions,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// StartServer serves the registry on its own listener until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	addr = strings.TrimSpace(addr)
	if m == nil || addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

// StartCollectors samples the connection pool, redis and the audit drop
// counter every interval.
func (m *Metrics) StartCollectors(ctx context.Context, log *logger.Logger, interval time.Duration, db *gorm.DB, rdb goredis.UniversalClient, auditDropped func() int64) {
	if m == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collect(ctx, log, db, rdb, auditDropped)
			}
		}
	}()
}

func (m *Metrics) collect(ctx context.Context, log *logger.Logger, db *gorm.DB, rdb goredis.UniversalClient, auditDropped func() int64) {
	if db != nil {
		if sqlDB, err := db.DB(); err != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
		} else {
			stats := sqlDB.Stats()
			m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
			m.dbStats.Set(float64(stats.InUse), "in_use")
			m.dbStats.Set(float64(stats.Idle), "idle")
			m.dbStats.Set(float64(stats.WaitCount), "wait_count")
			m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			m.dbStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
		}
	}
	if rdb != nil {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			log.Warn("metrics: redis ping failed", "error", err)
		} else {
			m.redisUp.Set(1)
			m.redisPing.Set(time.Since(start).Seconds())
		}
	}
	if auditDropped != nil {
		m.auditDropped.Set(float64(auditDropped()))
	}
}

func StatusLabel(code int) string { return strconv.Itoa(code) }
