// Package sweeper expires transfer sessions whose tickets lapsed without
// renewal or finalization.
package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/dcengine/internal/clients/imageio"
	types "github.com/yungbote/dcengine/internal/domain"
	daudit "github.com/yungbote/dcengine/internal/domain/audit"
	"github.com/yungbote/dcengine/internal/engine/audit"
	"github.com/yungbote/dcengine/internal/engine/ticket"
	"github.com/yungbote/dcengine/internal/platform/logger"
)

const EventSessionExpired = "TRANSFER_IMAGE_SESSION_EXPIRED"

type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) *types.AuditRecord
}

type Observer interface {
	ObserveSweep(expired, failed int)
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// Deps.Tracker must carry the image release hook; it moves the session's
// image out of LOCKED when it expires the session.
type Deps struct {
	Tracker *ticket.Tracker
	Agent   imageio.Agent
	Audit   Auditor
	Metrics Observer
}

type Sweeper struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
	now  func() time.Time
}

func New(log *logger.Logger, deps Deps, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if deps.Agent == nil {
		deps.Agent = imageio.Noop{}
	}
	return &Sweeper{
		deps: deps,
		cfg:  cfg,
		log:  log.With("component", "TransferSweeper"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting transfer sweeper", "interval", s.cfg.Interval, "concurrency", s.cfg.Concurrency)
	go s.runLoop(ctx)
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Transfer sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Warn("transfer sweep failed", "error", err)
			}
		}
	}
}

// Sweep expires one batch of lapsed sessions and reports how many it ended.
// A session that was renewed or closed in the meantime is left alone.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	lapsed, err := s.deps.Tracker.ListExpired(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(lapsed) == 0 {
		return 0, nil
	}

	ended := make([]bool, len(lapsed))
	failed := make([]bool, len(lapsed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, sess := range lapsed {
		g.Go(func() error {
			ok, err := s.expire(gctx, sess)
			if err != nil {
				s.log.Warn("expire transfer session failed", "session_id", sess.ID, "error", err)
				failed[i] = true
				return nil
			}
			ended[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	n, nf := 0, 0
	for i := range lapsed {
		if ended[i] {
			n++
		}
		if failed[i] {
			nf++
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveSweep(n, nf)
	}
	if n > 0 {
		s.log.Info("expired transfer sessions", "count", n)
	}
	return n, nil
}

// expire reports true only when this sweeper made the transition. A session
// renewed, closed or expired by someone else in the meantime is skipped.
func (s *Sweeper) expire(ctx context.Context, sess *types.TransferSession) (bool, error) {
	won, err := s.deps.Tracker.Expire(ctx, sess.ID)
	if err != nil || !won {
		return false, err
	}
	if err := s.deps.Agent.RemoveTicket(ctx, sess.ID.String()); err != nil {
		s.log.Warn("remove expired ticket from host agent failed", "session_id", sess.ID, "error", err)
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Emit(ctx, audit.Entry{
			CommandType:   "TransferDiskImage",
			EventType:     EventSessionExpired,
			Outcome:       daudit.OutcomeFailed,
			Severity:      daudit.SeverityWarning,
			ActorID:       sess.OwnerID,
			TargetID:      sess.ImageID.String(),
			CorrelationID: uuid.NewString(),
			Detail: map[string]any{
				"session_id": sess.ID.String(),
				"direction":  string(sess.Direction),
				"renewals":   sess.Renewals,
			},
		})
	}
	return true, nil
}
