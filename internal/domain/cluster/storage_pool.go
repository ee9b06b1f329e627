package cluster

import (
	"time"

	"github.com/google/uuid"
)

// StoragePoolStatus mirrors the data-center lifecycle states.
type StoragePoolStatus string

const (
	StoragePoolUninitialized  StoragePoolStatus = "uninitialized"
	StoragePoolUp             StoragePoolStatus = "up"
	StoragePoolMaintenance    StoragePoolStatus = "maintenance"
	StoragePoolNotOperational StoragePoolStatus = "not_operational"
	StoragePoolNonResponsive  StoragePoolStatus = "non_responsive"
	StoragePoolContend        StoragePoolStatus = "contend"
)

// StorageType is the storage technology backing a pool or domain.
type StorageType string

const (
	StorageTypeNFS       StorageType = "nfs"
	StorageTypeFCP       StorageType = "fcp"
	StorageTypeISCSI     StorageType = "iscsi"
	StorageTypeLocalFS   StorageType = "localfs"
	StorageTypePosixFS   StorageType = "posixfs"
	StorageTypeGlusterFS StorageType = "glusterfs"
)

var knownStorageTypes = map[StorageType]bool{
	StorageTypeNFS:       true,
	StorageTypeFCP:       true,
	StorageTypeISCSI:     true,
	StorageTypeLocalFS:   true,
	StorageTypePosixFS:   true,
	StorageTypeGlusterFS: true,
}

func (t StorageType) Known() bool { return knownStorageTypes[t] }

type StoragePool struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name                 string            `gorm:"column:name;not null;uniqueIndex:idx_storage_pool_name" json:"name"`
	Description          string            `gorm:"column:description" json:"description,omitempty"`
	StorageType          StorageType       `gorm:"column:storage_type;not null" json:"storage_type"`
	CompatibilityVersion string            `gorm:"column:compatibility_version;not null" json:"compatibility_version"`
	Status               StoragePoolStatus `gorm:"column:status;not null;index" json:"status"`
	QuotaEnforcement     string            `gorm:"column:quota_enforcement;not null" json:"quota_enforcement"`
	CreatedAt            time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null" json:"updated_at"`
}

func (StoragePool) TableName() string { return "storage_pool" }
