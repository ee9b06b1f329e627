package cluster

import (
	"time"

	"github.com/google/uuid"
)

type ImageStatus string

const (
	ImageOK      ImageStatus = "ok"
	ImageLocked  ImageStatus = "locked"
	ImageIllegal ImageStatus = "illegal"
)

type DiskImage struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Alias           string      `gorm:"column:alias;not null" json:"alias"`
	Description     string      `gorm:"column:description" json:"description,omitempty"`
	StorageDomainID uuid.UUID   `gorm:"type:uuid;column:storage_domain_id;not null;index" json:"storage_domain_id"`
	QuotaID         *uuid.UUID  `gorm:"type:uuid;column:quota_id;index" json:"quota_id,omitempty"`
	SizeBytes       int64       `gorm:"column:size_bytes;not null" json:"size_bytes"`
	Format          string      `gorm:"column:format;not null" json:"format"`
	Status          ImageStatus `gorm:"column:status;not null;index" json:"status"`
	CreatedAt       time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"not null" json:"updated_at"`
}

func (DiskImage) TableName() string { return "disk_image" }
