package cluster

import (
	"time"

	"github.com/google/uuid"
)

type StorageDomainStatus string

const (
	StorageDomainActive      StorageDomainStatus = "active"
	StorageDomainInactive    StorageDomainStatus = "inactive"
	StorageDomainMaintenance StorageDomainStatus = "maintenance"
	StorageDomainLocked      StorageDomainStatus = "locked"
)

type StorageDomain struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string              `gorm:"column:name;not null;uniqueIndex" json:"name"`
	StoragePoolID  uuid.UUID           `gorm:"type:uuid;column:storage_pool_id;not null;index" json:"storage_pool_id"`
	StorageType    StorageType         `gorm:"column:storage_type;not null" json:"storage_type"`
	Status         StorageDomainStatus `gorm:"column:status;not null;index" json:"status"`
	AvailableBytes int64               `gorm:"column:available_bytes;not null" json:"available_bytes"`
	CreatedAt      time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"not null" json:"updated_at"`
}

func (StorageDomain) TableName() string { return "storage_domain" }
