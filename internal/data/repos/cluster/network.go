package cluster

import (
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type NetworkRepo interface {
	Create(dbc dbctx.Context, network *types.Network) error
	ListByPool(dbc dbctx.Context, poolID uuid.UUID) ([]*types.Network, error)
}

type networkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNetworkRepo(db *gorm.DB, baseLog *logger.Logger) NetworkRepo {
	return &networkRepo{db: db, log: baseLog.With("repo", "NetworkRepo")}
}

func (r *networkRepo) Create(dbc dbctx.Context, network *types.Network) error {
	if network == nil {
		return nil
	}
	now := time.Now().UTC()
	if network.ID == uuid.Nil {
		network.ID = uuid.New()
	}
	if network.CreatedAt.IsZero() {
		network.CreatedAt = now
	}
	network.UpdatedAt = now
	return dbc.DB(r.db).Create(network).Error
}

func (r *networkRepo) ListByPool(dbc dbctx.Context, poolID uuid.UUID) ([]*types.Network, error) {
	var out []*types.Network
	if err := dbc.DB(r.db).
		Where("storage_pool_id = ?", poolID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
