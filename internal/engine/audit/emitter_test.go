package audit

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	auditrepo "github.com/yungbote/dcengine/internal/data/repos/audit"
	"github.com/yungbote/dcengine/internal/data/repos/testutil"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	daudit "github.com/yungbote/dcengine/internal/domain/audit"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

type spySink struct {
	mu   sync.Mutex
	name string
	err  error
	recs []*types.AuditRecord
}

func (s *spySink) Name() string { return s.name }

func (s *spySink) Write(_ context.Context, rec *types.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func TestEmitSequencesAndStamps(t *testing.T) {
	sink := &spySink{name: "spy"}
	e := NewEmitter(logger.Nop(), sink, nil, 41)
	actor := uuid.New()

	first := e.Emit(context.Background(), Entry{CommandType: "AddEmptyStoragePool", EventType: "USER_ADD_STORAGE_POOL", Outcome: daudit.OutcomeSucceeded, ActorID: actor})
	second := e.Emit(context.Background(), Entry{CommandType: "AddEmptyStoragePool", EventType: "USER_ADD_STORAGE_POOL_FAILED", Outcome: daudit.OutcomeFailed, Detail: map[string]any{"reasons": []string{"x"}}})

	if first.Seq != 42 || second.Seq != 43 {
		t.Fatalf("seq: want=42,43 got=%d,%d", first.Seq, second.Seq)
	}
	if first.Severity != daudit.SeverityNormal || second.Severity != daudit.SeverityError {
		t.Fatalf("severity: got=%s,%s", first.Severity, second.Severity)
	}
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatalf("created_at not monotonic")
	}
	if !strings.Contains(string(second.Detail), "reasons") {
		t.Fatalf("detail: got=%s", second.Detail)
	}
	if len(sink.recs) != 2 || e.Dropped() != 0 {
		t.Fatalf("sink: want=2 records, 0 dropped got=%d,%d", len(sink.recs), e.Dropped())
	}
}

func TestEmitSinkFailureIsLoggedAndCounted(t *testing.T) {
	log, logs := logger.NewObserved()
	hooks := store.NewCountingHooks()
	e := NewEmitter(log, &spySink{name: "broken", err: errors.New("disk full")}, hooks, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := e.Emit(ctx, Entry{CommandType: "X", EventType: "X_FAILED", Outcome: daudit.OutcomeFailed})
	if rec == nil {
		t.Fatalf("Emit: expected record")
	}
	if e.Dropped() != 1 {
		t.Fatalf("Dropped: want=1 got=%d", e.Dropped())
	}
	if got := logs.FilterMessage("audit record dropped").Len(); got != 1 {
		t.Fatalf("dropped log entries: want=1 got=%d", got)
	}
	if hooks.Operations["audit.emit"]["dropped"] != 1 {
		t.Fatalf("hooks: got=%v", hooks.Operations["audit.emit"])
	}
}

func TestMultiSinkPartialFailureKeepsRecord(t *testing.T) {
	good := &spySink{name: "good"}
	bad := &spySink{name: "bad", err: errors.New("down")}
	e := NewEmitter(logger.Nop(), NewMultiSink(bad, good), nil, 0)

	e.Emit(context.Background(), Entry{CommandType: "X", EventType: "X", Outcome: daudit.OutcomeSucceeded})
	if e.Dropped() != 0 {
		t.Fatalf("Dropped: want=0 got=%d", e.Dropped())
	}
	if len(good.recs) != 1 {
		t.Fatalf("good sink: want=1 got=%d", len(good.recs))
	}

	allBad := NewEmitter(logger.Nop(), NewMultiSink(bad, &spySink{name: "bad2", err: errors.New("down")}), nil, 0)
	allBad.Emit(context.Background(), Entry{CommandType: "X", EventType: "X", Outcome: daudit.OutcomeSucceeded})
	if allBad.Dropped() != 1 {
		t.Fatalf("Dropped all sinks failing: want=1 got=%d", allBad.Dropped())
	}
}

func TestGormSinkAppends(t *testing.T) {
	db := testutil.DB(t)
	repo := auditrepo.NewAuditLogRepo(db, testutil.Logger(t))
	e := NewEmitter(testutil.Logger(t), NewGormSink(repo), nil, 0)

	e.Emit(context.Background(), Entry{CommandType: "AddEmptyStoragePool", EventType: "USER_ADD_STORAGE_POOL", Outcome: daudit.OutcomeSucceeded, CorrelationID: "c-1", Detail: map[string]any{"pool": "DC1"}})
	got, err := repo.List(dbctx.New(context.Background()), auditrepo.Filter{CorrelationID: "c-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].EventType != "USER_ADD_STORAGE_POOL" || got[0].Seq != 1 {
		t.Fatalf("List: unexpected %+v", got)
	}
	seq, err := repo.MaxSeq(dbctx.New(context.Background()))
	if err != nil || seq != 1 {
		t.Fatalf("MaxSeq: want=1 got=%d err=%v", seq, err)
	}
}

func TestRedisStreamSink(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis sink tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	stream := "dcengine:audit:test:" + uuid.NewString()
	t.Cleanup(func() { _ = rdb.Del(context.Background(), stream).Err() })

	e := NewEmitter(logger.Nop(), NewRedisStreamSink(rdb, stream, 1000), nil, 0)
	e.Emit(context.Background(), Entry{CommandType: "X", EventType: "X_DONE", Outcome: daudit.OutcomeSucceeded})
	if e.Dropped() != 0 {
		t.Fatalf("Dropped: want=0 got=%d", e.Dropped())
	}
	msgs, err := rdb.XRange(context.Background(), stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Values["event_type"] != "X_DONE" {
		t.Fatalf("XRange: unexpected %+v", msgs)
	}
}
