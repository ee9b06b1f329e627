package audit

import (
	"strings"

	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

// AuditLogRepo is append-only: there is no update or delete.
type AuditLogRepo interface {
	Append(dbc dbctx.Context, rec *types.AuditRecord) error
	MaxSeq(dbc dbctx.Context) (int64, error)
	List(dbc dbctx.Context, filter Filter) ([]*types.AuditRecord, error)
	Count(dbc dbctx.Context, filter Filter) (int64, error)
}

type Filter struct {
	CommandType   string
	EventType     string
	CorrelationID string
	Limit         int
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

func (r *auditLogRepo) Append(dbc dbctx.Context, rec *types.AuditRecord) error {
	if rec == nil {
		return nil
	}
	return dbc.DB(r.db).Create(rec).Error
}

func (r *auditLogRepo) MaxSeq(dbc dbctx.Context) (int64, error) {
	var seq int64
	if err := dbc.DB(r.db).
		Model(&types.AuditRecord{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error; err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *auditLogRepo) List(dbc dbctx.Context, filter Filter) ([]*types.AuditRecord, error) {
	var out []*types.AuditRecord
	q := r.scoped(dbc, filter).Order("seq ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditLogRepo) Count(dbc dbctx.Context, filter Filter) (int64, error) {
	var count int64
	if err := r.scoped(dbc, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *auditLogRepo) scoped(dbc dbctx.Context, filter Filter) *gorm.DB {
	q := dbc.DB(r.db).Model(&types.AuditRecord{})
	if v := strings.TrimSpace(filter.CommandType); v != "" {
		q = q.Where("command_type = ?", v)
	}
	if v := strings.TrimSpace(filter.EventType); v != "" {
		q = q.Where("event_type = ?", v)
	}
	if v := strings.TrimSpace(filter.CorrelationID); v != "" {
		q = q.Where("correlation_id = ?", v)
	}
	return q
}
