package cluster

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/dcengine/internal/data/store"
	types "github.com/yungbote/dcengine/internal/domain"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type DiskImageRepo interface {
	Create(dbc dbctx.Context, img *types.DiskImage) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DiskImage, error)
	// UpdateStatus moves the image to `to` only while it is in one of `from`.
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, from []dcluster.ImageStatus, to dcluster.ImageStatus) (bool, error)
	SetQuota(dbc dbctx.Context, id uuid.UUID, quotaID uuid.UUID) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type diskImageRepo struct {
	db  *gorm.DB
	log *logger.Logger
	cas store.CASGuard
}

func NewDiskImageRepo(db *gorm.DB, baseLog *logger.Logger) DiskImageRepo {
	return &diskImageRepo{db: db, log: baseLog.With("repo", "DiskImageRepo"), cas: store.NewCASGuard(db)}
}

func (r *diskImageRepo) Create(dbc dbctx.Context, img *types.DiskImage) error {
	if img == nil {
		return nil
	}
	now := time.Now().UTC()
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = now
	}
	img.UpdatedAt = now
	return dbc.DB(r.db).Create(img).Error
}

func (r *diskImageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.DiskImage, error) {
	var img types.DiskImage
	err := dbc.DB(r.db).Where("id = ?", id).Take(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *diskImageRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, from []dcluster.ImageStatus, to dcluster.ImageStatus) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	return r.cas.UpdateByStatus(dbc, types.DiskImage{}.TableName(), id, allowed, map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	})
}

func (r *diskImageRepo) SetQuota(dbc dbctx.Context, id uuid.UUID, quotaID uuid.UUID) error {
	return dbc.DB(r.db).
		Model(&types.DiskImage{}).
		Where("id = ?", id).
		Updates(map[string]any{"quota_id": quotaID, "updated_at": time.Now().UTC()}).Error
}

func (r *diskImageRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.DB(r.db).Where("id = ?", id).Delete(&types.DiskImage{}).Error
}
