package access

import (
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/dcengine/internal/domain"
	daccess "github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/gorm"
)

type PermissionRepo interface {
	Create(dbc dbctx.Context, perm *types.Permission) error
	// HasActionGroup reports whether any of principalIDs holds a role that
	// bundles group on any of objectIDs.
	HasActionGroup(dbc dbctx.Context, principalIDs, objectIDs []uuid.UUID, group daccess.ActionGroup) (bool, error)
	ListByObject(dbc dbctx.Context, objectID uuid.UUID) ([]*types.Permission, error)
	DeleteByObjects(dbc dbctx.Context, objectIDs []uuid.UUID) error
}

type permissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPermissionRepo(db *gorm.DB, baseLog *logger.Logger) PermissionRepo {
	return &permissionRepo{db: db, log: baseLog.With("repo", "PermissionRepo")}
}

func (r *permissionRepo) Create(dbc dbctx.Context, perm *types.Permission) error {
	if perm == nil {
		return nil
	}
	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = time.Now().UTC()
	}
	return dbc.DB(r.db).Create(perm).Error
}

func (r *permissionRepo) HasActionGroup(dbc dbctx.Context, principalIDs, objectIDs []uuid.UUID, group daccess.ActionGroup) (bool, error) {
	if len(principalIDs) == 0 || len(objectIDs) == 0 {
		return false, nil
	}
	var count int64
	if err := dbc.DB(r.db).
		Table("permission AS p").
		Joins("JOIN role_action_group AS rag ON rag.role_id = p.role_id").
		Where("p.principal_id IN ? AND p.object_id IN ? AND rag.action_group = ?", principalIDs, objectIDs, string(group)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *permissionRepo) ListByObject(dbc dbctx.Context, objectID uuid.UUID) ([]*types.Permission, error) {
	var out []*types.Permission
	if err := dbc.DB(r.db).Where("object_id = ?", objectID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *permissionRepo) DeleteByObjects(dbc dbctx.Context, objectIDs []uuid.UUID) error {
	if len(objectIDs) == 0 {
		return nil
	}
	return dbc.DB(r.db).Where("object_id IN ?", objectIDs).Delete(&types.Permission{}).Error
}
