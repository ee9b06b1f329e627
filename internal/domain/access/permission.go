package access

import (
	"time"

	"github.com/google/uuid"
)

type Role struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	ReadOnly    bool      `gorm:"column:read_only;not null" json:"read_only"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Role) TableName() string { return "role" }

type RoleActionGroup struct {
	RoleID      uuid.UUID   `gorm:"type:uuid;column:role_id;primaryKey" json:"role_id"`
	ActionGroup ActionGroup `gorm:"column:action_group;primaryKey" json:"action_group"`
}

func (RoleActionGroup) TableName() string { return "role_action_group" }

// Permission grants a role to a principal (user, group or Everyone) on an object.
type Permission struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PrincipalID uuid.UUID  `gorm:"type:uuid;column:principal_id;not null;index:idx_permission_principal_object" json:"principal_id"`
	RoleID      uuid.UUID  `gorm:"type:uuid;column:role_id;not null;index" json:"role_id"`
	ObjectID    uuid.UUID  `gorm:"type:uuid;column:object_id;not null;index:idx_permission_principal_object" json:"object_id"`
	ObjectType  ObjectType `gorm:"column:object_type;not null" json:"object_type"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}

func (Permission) TableName() string { return "permission" }

// Principal is the engine-side projection of a directory user or group.
type Principal struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	IsGroup   bool      `gorm:"column:is_group;not null" json:"is_group"`
	Active    bool      `gorm:"column:active;not null" json:"active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Principal) TableName() string { return "principal" }

type PrincipalGroup struct {
	PrincipalID uuid.UUID `gorm:"type:uuid;column:principal_id;primaryKey" json:"principal_id"`
	GroupID     uuid.UUID `gorm:"type:uuid;column:group_id;primaryKey" json:"group_id"`
}

func (PrincipalGroup) TableName() string { return "principal_group" }
