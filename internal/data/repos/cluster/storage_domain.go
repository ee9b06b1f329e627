package cluster

import (
	"errors"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type StorageDomainRepo interface {
	Create(dbc dbctx.Context, sd *types.StorageDomain) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StorageDomain, error)
}

type storageDomainRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStorageDomainRepo(db *gorm.DB, baseLog *logger.Logger) StorageDomainRepo {
	return &storageDomainRepo{db: db, log: baseLog.With("repo", "StorageDomainRepo")}
}

func (r *storageDomainRepo) Create(dbc dbctx.Context, sd *types.StorageDomain) error {
	if sd == nil {
		return nil
	}
	now := time.Now().UTC()
	if sd.ID == uuid.Nil {
		sd.ID = uuid.New()
	}
	if sd.CreatedAt.IsZero() {
		sd.CreatedAt = now
	}
	sd.UpdatedAt = now
	return dbc.DB(r.db).Create(sd).Error
}

func (r *storageDomainRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StorageDomain, error) {
	var sd types.StorageDomain
	err := dbc.DB(r.db).Where("id = ?", id).Take(&sd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sd, nil
}
