package cluster

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type StoragePoolRepo interface {
	Create(dbc dbctx.Context, pool *types.StoragePool) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StoragePool, error)
	GetByName(dbc dbctx.Context, name string) (*types.StoragePool, error)
	NameExists(dbc dbctx.Context, name string) (bool, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, from []dcluster.StoragePoolStatus, to dcluster.StoragePoolStatus) (bool, error)
	// Delete removes the pool together with its networks.
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type storagePoolRepo struct {
	db  *gorm.DB
	log *logger.Logger
	cas store.CASGuard
}

func NewStoragePoolRepo(db *gorm.DB, baseLog *logger.Logger) StoragePoolRepo {
	return &storagePoolRepo{db: db, log: baseLog.With("repo", "StoragePoolRepo"), cas: store.NewCASGuard(db)}
}

func (r *storagePoolRepo) Create(dbc dbctx.Context, pool *types.StoragePool) error {
	if pool == nil {
		return nil
	}
	now := time.Now().UTC()
	if pool.ID == uuid.Nil {
		pool.ID = uuid.New()
	}
	if pool.CreatedAt.IsZero() {
		pool.CreatedAt = now
	}
	pool.UpdatedAt = now
	return dbc.DB(r.db).Create(pool).Error
}

func (r *storagePoolRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StoragePool, error) {
	var pool types.StoragePool
	err := dbc.DB(r.db).Where("id = ?", id).Take(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *storagePoolRepo) GetByName(dbc dbctx.Context, name string) (*types.StoragePool, error) {
	var pool types.StoragePool
	err := dbc.DB(r.db).Where("name = ?", strings.TrimSpace(name)).Take(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *storagePoolRepo) NameExists(dbc dbctx.Context, name string) (bool, error) {
	var count int64
	if err := dbc.DB(r.db).
		Model(&types.StoragePool{}).
		Where("name = ?", strings.TrimSpace(name)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *storagePoolRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, from []dcluster.StoragePoolStatus, to dcluster.StoragePoolStatus) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	return r.cas.UpdateByStatus(dbc, types.StoragePool{}.TableName(), id, allowed, map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	})
}

func (r *storagePoolRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	db := dbc.DB(r.db)
	if err := db.Where("storage_pool_id = ?", id).Delete(&types.Network{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&types.StoragePool{}).Error
}
