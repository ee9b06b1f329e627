package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

type roleSeed struct {
	id     uuid.UUID
	name   string
	desc   string
	groups []access.ActionGroup
}

var predefinedRoles = []roleSeed{
	{
		id:   access.RoleSuperUser,
		name: "SuperUser",
		desc: "Roles management administrator",
		groups: []access.ActionGroup{
			access.ActionGroupCreateStoragePool,
			access.ActionGroupEditStoragePool,
			access.ActionGroupDeleteStoragePool,
			access.ActionGroupCreateDisk,
			access.ActionGroupConfigureDiskStorage,
			access.ActionGroupEditDiskProperties,
			access.ActionGroupConsumeQuota,
			access.ActionGroupLogin,
		},
	},
	{
		id:   access.RoleDataCenterAdmin,
		name: "DataCenterAdmin",
		desc: "Administrator of a data center",
		groups: []access.ActionGroup{
			access.ActionGroupEditStoragePool,
			access.ActionGroupCreateDisk,
			access.ActionGroupConfigureDiskStorage,
			access.ActionGroupEditDiskProperties,
			access.ActionGroupConsumeQuota,
			access.ActionGroupLogin,
		},
	},
	{
		id:     access.RoleDiskOperator,
		name:   "DiskOperator",
		desc:   "Virtual disk user",
		groups: []access.ActionGroup{access.ActionGroupConfigureDiskStorage, access.ActionGroupEditDiskProperties, access.ActionGroupLogin},
	},
	{
		id:     access.RoleDiskCreator,
		name:   "DiskCreator",
		desc:   "Can create disks on storage domains",
		groups: []access.ActionGroup{access.ActionGroupCreateDisk, access.ActionGroupLogin},
	},
	{
		id:     access.RoleQuotaConsumer,
		name:   "QuotaConsumer",
		desc:   "User that is allowed to consume a quota",
		groups: []access.ActionGroup{access.ActionGroupConsumeQuota},
	},
	{
		id:     access.RoleUserBasic,
		name:   "UserRole",
		desc:   "Basic user that may log in",
		groups: []access.ActionGroup{access.ActionGroupLogin},
	},
}

// SeedAccess installs the predefined roles and the Everyone principal.
// Re-running it is a no-op.
func SeedAccess(db *gorm.DB) error {
	now := time.Now().UTC()
	return db.Transaction(func(tx *gorm.DB) error {
		everyone := &access.Principal{
			ID:        access.EveryoneID,
			Name:      "Everyone",
			IsGroup:   true,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(everyone).Error; err != nil {
			return fmt.Errorf("seed everyone: %w", err)
		}
		for _, seed := range predefinedRoles {
			role := &access.Role{ID: seed.id, Name: seed.name, Description: seed.desc, ReadOnly: true, CreatedAt: now}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(role).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", seed.name, err)
			}
			for _, g := range seed.groups {
				rag := &access.RoleActionGroup{RoleID: seed.id, ActionGroup: g}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rag).Error; err != nil {
					return fmt.Errorf("seed role %s action group %s: %w", seed.name, g, err)
				}
			}
		}
		return nil
	})
}
