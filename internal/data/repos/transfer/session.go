package transfer

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	dtransfer "github.com/yungbote/dcengine/internal/domain/transfer"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

var liveStatuses = []string{string(dtransfer.SessionOpen), string(dtransfer.SessionRenewed)}

type SessionRepo interface {
	Create(dbc dbctx.Context, s *types.TransferSession) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TransferSession, error)
	// Renew extends a live, unexpired session that still has renewals left.
	Renew(dbc dbctx.Context, id uuid.UUID, now, expiresAt time.Time) (bool, error)
	// Finish moves a live session to a terminal status and marks its
	// reservation settled. Only one caller can win.
	Finish(dbc dbctx.Context, id uuid.UUID, to dtransfer.SessionStatus, reason string, now time.Time) (bool, error)
	ListExpired(dbc dbctx.Context, now time.Time, limit int) ([]*types.TransferSession, error)
	CountByImage(dbc dbctx.Context, imageID uuid.UUID, statuses []dtransfer.SessionStatus) (int64, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
	cas store.CASGuard
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "TransferSessionRepo"), cas: store.NewCASGuard(db)}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *types.TransferSession) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return dbc.DB(r.db).Create(s).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TransferSession, error) {
	var s types.TransferSession
	err := dbc.DB(r.db).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Renew(dbc dbctx.Context, id uuid.UUID, now, expiresAt time.Time) (bool, error) {
	return r.cas.UpdateWhere(dbc, types.TransferSession{}.TableName(), id, liveStatuses,
		"renewals < max_renewals AND expires_at > ?", []any{now.UTC()},
		map[string]any{
			"status":     string(dtransfer.SessionRenewed),
			"renewals":   gorm.Expr("renewals + 1"),
			"expires_at": expiresAt.UTC(),
			"updated_at": now.UTC(),
		})
}

func (r *sessionRepo) Finish(dbc dbctx.Context, id uuid.UUID, to dtransfer.SessionStatus, reason string, now time.Time) (bool, error) {
	if to.Live() {
		return false, store.ValidationError("finish requires a terminal status")
	}
	closedAt := now.UTC()
	return r.cas.UpdateByStatus(dbc, types.TransferSession{}.TableName(), id, liveStatuses, map[string]any{
		"status":              string(to),
		"close_reason":        strings.TrimSpace(reason),
		"reservation_settled": true,
		"closed_at":           closedAt,
		"updated_at":          closedAt,
	})
}

func (r *sessionRepo) ListExpired(dbc dbctx.Context, now time.Time, limit int) ([]*types.TransferSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.TransferSession
	if err := dbc.DB(r.db).
		Where("status IN ? AND expires_at <= ?", liveStatuses, now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) CountByImage(dbc dbctx.Context, imageID uuid.UUID, statuses []dtransfer.SessionStatus) (int64, error) {
	allowed := make([]string, 0, len(statuses))
	for _, s := range statuses {
		allowed = append(allowed, string(s))
	}
	var count int64
	q := dbc.DB(r.db).Model(&types.TransferSession{}).Where("image_id = ?", imageID)
	if len(allowed) > 0 {
		q = q.Where("status IN ?", allowed)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
