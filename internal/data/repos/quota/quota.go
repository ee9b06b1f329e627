package quota

import (
	"errors"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type QuotaRepo interface {
	Create(dbc dbctx.Context, q *types.Quota) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quota, error)
	GetByPoolOwner(dbc dbctx.Context, poolID, ownerID uuid.UUID) (*types.Quota, error)
	ListByPool(dbc dbctx.Context, poolID uuid.UUID) ([]*types.Quota, error)
	// TryDebit adds amount to reserved_bytes when the quota is unlimited or
	// still has room for it. It reports whether the row was updated.
	TryDebit(dbc dbctx.Context, id uuid.UUID, amount int64) (bool, error)
	// Credit returns amount from reserved_bytes.
	Credit(dbc dbctx.Context, id uuid.UUID, amount int64) error
	// Settle moves amount from reserved_bytes to committed_bytes.
	Settle(dbc dbctx.Context, id uuid.UUID, amount int64) error
	DeleteByPool(dbc dbctx.Context, poolID uuid.UUID) error
}

type quotaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuotaRepo(db *gorm.DB, baseLog *logger.Logger) QuotaRepo {
	return &quotaRepo{db: db, log: baseLog.With("repo", "QuotaRepo")}
}

func (r *quotaRepo) Create(dbc dbctx.Context, q *types.Quota) error {
	if q == nil {
		return nil
	}
	now := time.Now().UTC()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	return dbc.DB(r.db).Create(q).Error
}

func (r *quotaRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Quota, error) {
	var q types.Quota
	err := dbc.DB(r.db).Where("id = ?", id).Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quotaRepo) GetByPoolOwner(dbc dbctx.Context, poolID, ownerID uuid.UUID) (*types.Quota, error) {
	var q types.Quota
	err := dbc.DB(r.db).
		Where("storage_pool_id = ? AND owner_id = ?", poolID, ownerID).
		Order("is_default DESC, created_at ASC").
		Take(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quotaRepo) ListByPool(dbc dbctx.Context, poolID uuid.UUID) ([]*types.Quota, error) {
	var out []*types.Quota
	if err := dbc.DB(r.db).Where("storage_pool_id = ?", poolID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *quotaRepo) TryDebit(dbc dbctx.Context, id uuid.UUID, amount int64) (bool, error) {
	res := dbc.DB(r.db).
		Model(&types.Quota{}).
		Where("id = ? AND (unlimited = ? OR reserved_bytes + committed_bytes + ? <= limit_bytes)", id, true, amount).
		Updates(map[string]any{
			"reserved_bytes": gorm.Expr("reserved_bytes + ?", amount),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *quotaRepo) Credit(dbc dbctx.Context, id uuid.UUID, amount int64) error {
	return dbc.DB(r.db).
		Model(&types.Quota{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reserved_bytes": gorm.Expr("reserved_bytes - ?", amount),
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *quotaRepo) Settle(dbc dbctx.Context, id uuid.UUID, amount int64) error {
	return dbc.DB(r.db).
		Model(&types.Quota{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reserved_bytes":  gorm.Expr("reserved_bytes - ?", amount),
			"committed_bytes": gorm.Expr("committed_bytes + ?", amount),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *quotaRepo) DeleteByPool(dbc dbctx.Context, poolID uuid.UUID) error {
	return dbc.DB(r.db).Where("storage_pool_id = ?", poolID).Delete(&types.Quota{}).Error
}
