package quota

import (
	"time"

	"github.com/google/uuid"
)

type Quota struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StoragePoolID  uuid.UUID `gorm:"type:uuid;column:storage_pool_id;not null;index:idx_quota_pool_owner" json:"storage_pool_id"`
	OwnerID        uuid.UUID `gorm:"type:uuid;column:owner_id;not null;index:idx_quota_pool_owner" json:"owner_id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Description    string    `gorm:"column:description" json:"description,omitempty"`
	IsDefault      bool      `gorm:"column:is_default;not null" json:"is_default"`
	Unlimited      bool      `gorm:"column:unlimited;not null" json:"unlimited"`
	LimitBytes     int64     `gorm:"column:limit_bytes;not null" json:"limit_bytes"`
	ReservedBytes  int64     `gorm:"column:reserved_bytes;not null" json:"reserved_bytes"`
	CommittedBytes int64     `gorm:"column:committed_bytes;not null" json:"committed_bytes"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (Quota) TableName() string { return "quota" }

// Available is the remaining bounded capacity; meaningless for unlimited quotas.
func (q Quota) Available() int64 {
	return q.LimitBytes - q.ReservedBytes - q.CommittedBytes
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

type Reservation struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	QuotaID   uuid.UUID         `gorm:"type:uuid;column:quota_id;not null;index" json:"quota_id"`
	Amount    int64             `gorm:"column:amount;not null" json:"amount"`
	Unlimited bool              `gorm:"column:unlimited;not null" json:"unlimited"`
	Status    ReservationStatus `gorm:"column:status;not null;index" json:"status"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (Reservation) TableName() string { return "quota_reservation" }
