package cluster

import (
	"time"

	"github.com/google/uuid"
)

type Network struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"column:name;not null;uniqueIndex:idx_network_pool_name" json:"name"`
	Description   string    `gorm:"column:description" json:"description,omitempty"`
	StoragePoolID uuid.UUID `gorm:"type:uuid;column:storage_pool_id;not null;uniqueIndex:idx_network_pool_name;index" json:"storage_pool_id"`
	VMNetwork     bool      `gorm:"column:vm_network;not null" json:"vm_network"`
	MTU           int       `gorm:"column:mtu;not null" json:"mtu"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (Network) TableName() string { return "network" }
