package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	auditrepo "github.com/yungbote/dcengine/internal/data/repos/audit"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

type gormSink struct {
	repo auditrepo.AuditLogRepo
}

// NewGormSink appends to the audit_log table outside any caller transaction,
// so a rolled-back command still leaves its record.
func NewGormSink(repo auditrepo.AuditLogRepo) Sink {
	return &gormSink{repo: repo}
}

func (s *gormSink) Name() string { return "gorm" }

func (s *gormSink) Write(ctx context.Context, rec *types.AuditRecord) error {
	return s.repo.Append(dbctx.New(ctx), rec)
}

type redisStreamSink struct {
	rdb     goredis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
}

// NewRedisStreamSink publishes records to a Redis stream with XADD.
func NewRedisStreamSink(rdb goredis.UniversalClient, stream string, maxLen int64) Sink {
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = "dcengine:audit"
	}
	return &redisStreamSink{rdb: rdb, stream: stream, maxLen: maxLen, timeout: 2 * time.Second}
}

func (s *redisStreamSink) Name() string { return "redis:" + s.stream }

func (s *redisStreamSink) Write(ctx context.Context, rec *types.AuditRecord) error {
	if s.rdb == nil {
		return fmt.Errorf("redis audit sink not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	args := &goredis.XAddArgs{
		Stream: s.stream,
		Values: streamValues(rec),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.rdb.XAdd(ctx, args).Err()
}

func streamValues(rec *types.AuditRecord) map[string]any {
	values := map[string]any{
		"id":             rec.ID.String(),
		"seq":            rec.Seq,
		"command_type":   rec.CommandType,
		"event_type":     rec.EventType,
		"outcome":        string(rec.Outcome),
		"severity":       string(rec.Severity),
		"actor_id":       rec.ActorID.String(),
		"target_id":      rec.TargetID,
		"correlation_id": rec.CorrelationID,
		"created_at":     rec.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(rec.Detail) > 0 {
		values["detail"] = string(rec.Detail)
	}
	return values
}

type multiSink struct {
	sinks []Sink
}

// PartialError reports sinks that failed while at least one other sink
// accepted the record.
type PartialError struct {
	Err error
}

func (e *PartialError) Error() string { return "partial audit write: " + e.Err.Error() }
func (e *PartialError) Unwrap() error { return e.Err }

// NewMultiSink writes to every sink. The record is lost only when every sink
// failed; otherwise failures come back as a *PartialError.
func NewMultiSink(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &multiSink{sinks: out}
}

func (m *multiSink) Name() string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *multiSink) Write(ctx context.Context, rec *types.AuditRecord) error {
	if len(m.sinks) == 0 {
		return fmt.Errorf("no audit sinks configured")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	switch {
	case len(errs) == 0:
		return nil
	case len(errs) == len(m.sinks):
		return errors.Join(errs...)
	default:
		return &PartialError{Err: errors.Join(errs...)}
	}
}
