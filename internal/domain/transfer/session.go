package transfer

import (
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

func (d Direction) Known() bool { return d == DirectionUpload || d == DirectionDownload }

type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionRenewed SessionStatus = "renewed"
	SessionExpired SessionStatus = "expired"
	SessionClosed  SessionStatus = "closed"
)

// Live reports whether the session still grants access.
func (s SessionStatus) Live() bool { return s == SessionOpen || s == SessionRenewed }

// Session is the durable state of one image transfer ticket.
type Session struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ImageID            uuid.UUID     `gorm:"type:uuid;column:image_id;not null;index" json:"image_id"`
	StorageDomainID    uuid.UUID     `gorm:"type:uuid;column:storage_domain_id;not null" json:"storage_domain_id"`
	HostID             string        `gorm:"column:host_id" json:"host_id,omitempty"`
	OwnerID            uuid.UUID     `gorm:"type:uuid;column:owner_id;not null;index" json:"owner_id"`
	Direction          Direction     `gorm:"column:direction;not null" json:"direction"`
	Status             SessionStatus `gorm:"column:status;not null;index" json:"status"`
	SizeBytes          int64         `gorm:"column:size_bytes;not null" json:"size_bytes"`
	Renewals           int           `gorm:"column:renewals;not null" json:"renewals"`
	MaxRenewals        int           `gorm:"column:max_renewals;not null" json:"max_renewals"`
	ReservationID      *uuid.UUID    `gorm:"type:uuid;column:reservation_id" json:"reservation_id,omitempty"`
	ReservationSettled bool          `gorm:"column:reservation_settled;not null" json:"reservation_settled"`
	CloseReason        string        `gorm:"column:close_reason" json:"close_reason,omitempty"`
	ExpiresAt          time.Time     `gorm:"column:expires_at;not null;index" json:"expires_at"`
	ClosedAt           *time.Time    `gorm:"column:closed_at" json:"closed_at,omitempty"`
	CreatedAt          time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null" json:"updated_at"`
}

func (Session) TableName() string { return "image_transfer_session" }
