package access

import (
	"errors"

	"github.com/google/uuid"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type PrincipalRepo interface {
	Create(dbc dbctx.Context, p *types.Principal) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Principal, error)
	GroupIDs(dbc dbctx.Context, principalID uuid.UUID) ([]uuid.UUID, error)
	AddToGroup(dbc dbctx.Context, principalID, groupID uuid.UUID) error
}

type principalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPrincipalRepo(db *gorm.DB, baseLog *logger.Logger) PrincipalRepo {
	return &principalRepo{db: db, log: baseLog.With("repo", "PrincipalRepo")}
}

func (r *principalRepo) Create(dbc dbctx.Context, p *types.Principal) error {
	if p == nil {
		return nil
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return dbc.DB(r.db).Create(p).Error
}

func (r *principalRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Principal, error) {
	var p types.Principal
	err := dbc.DB(r.db).Where("id = ?", id).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *principalRepo) GroupIDs(dbc dbctx.Context, principalID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := dbc.DB(r.db).
		Model(&types.PrincipalGroup{}).
		Where("principal_id = ?", principalID).
		Pluck("group_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *principalRepo) AddToGroup(dbc dbctx.Context, principalID, groupID uuid.UUID) error {
	return dbc.DB(r.db).Create(&types.PrincipalGroup{PrincipalID: principalID, GroupID: groupID}).Error
}
