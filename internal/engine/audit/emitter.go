// Package audit appends one immutable record per command invocation.
// Persistence failures never reach the caller: they are logged, counted and
// reported through the store hooks.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	daudit "github.com/yungbote/dcengine/internal/domain/audit"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

type Entry struct {
	CommandType   string
	EventType     string
	Outcome       daudit.Outcome
	Severity      daudit.Severity
	ActorID       uuid.UUID
	TargetID      string
	CorrelationID string
	Detail        map[string]any
}

// Sink persists records. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec *types.AuditRecord) error
}

type Emitter struct {
	sink  Sink
	hooks store.Hooks
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	seq     int64
	dropped atomic.Int64
}

// NewEmitter continues sequencing after lastSeq.
func NewEmitter(log *logger.Logger, sink Sink, hooks store.Hooks, lastSeq int64) *Emitter {
	if hooks == nil {
		hooks = store.NoopHooks{}
	}
	return &Emitter{
		sink:  sink,
		hooks: hooks,
		log:   log.With("component", "AuditEmitter"),
		now:   func() time.Time { return time.Now().UTC() },
		seq:   lastSeq,
	}
}

// Emit stamps and appends the entry. It returns the record that was built
// whether or not the sink accepted it.
func (e *Emitter) Emit(ctx context.Context, entry Entry) *types.AuditRecord {
	rec := e.stamp(entry)
	if e.sink == nil {
		e.drop(rec, nil)
		return rec
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	err := e.sink.Write(context.WithoutCancel(ctx), rec)
	status := "success"
	var partial *PartialError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		status = "partial"
		e.log.Warn("audit sink failed", "seq", rec.Seq, "event_type", rec.EventType, "error", partial.Err)
	default:
		status = "dropped"
		e.drop(rec, err)
	}
	e.hooks.ObserveOperation("audit.emit", status, time.Since(start))
	return rec
}

// Dropped counts records no sink accepted.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// stamp assigns time and sequence together so sequence order is emission order.
func (e *Emitter) stamp(entry Entry) *types.AuditRecord {
	severity := entry.Severity
	if severity == "" {
		severity = daudit.SeverityNormal
		if entry.Outcome == daudit.OutcomeFailed {
			severity = daudit.SeverityError
		}
	}
	var detail datatypes.JSON
	if len(entry.Detail) > 0 {
		if raw, err := json.Marshal(entry.Detail); err == nil {
			detail = datatypes.JSON(raw)
		} else {
			e.log.Warn("audit detail not serializable", "event_type", entry.EventType, "error", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return &types.AuditRecord{
		ID:            uuid.New(),
		Seq:           e.seq,
		CommandType:   strings.TrimSpace(entry.CommandType),
		EventType:     strings.TrimSpace(entry.EventType),
		Outcome:       entry.Outcome,
		Severity:      severity,
		ActorID:       entry.ActorID,
		TargetID:      strings.TrimSpace(entry.TargetID),
		CorrelationID: strings.TrimSpace(entry.CorrelationID),
		Detail:        detail,
		CreatedAt:     e.now(),
	}
}

func (e *Emitter) drop(rec *types.AuditRecord, err error) {
	total := e.dropped.Add(1)
	e.log.Error("audit record dropped",
		"seq", rec.Seq,
		"event_type", rec.EventType,
		"command_type", rec.CommandType,
		"correlation_id", rec.CorrelationID,
		"dropped_total", total,
		"error", err,
	)
}
