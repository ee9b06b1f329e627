package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Record is append-only; rows are never updated.
type Record struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Seq           int64          `gorm:"column:seq;not null;index" json:"seq"`
	CommandType   string         `gorm:"column:command_type;not null;index" json:"command_type"`
	EventType     string         `gorm:"column:event_type;not null;index" json:"event_type"`
	Outcome       Outcome        `gorm:"column:outcome;not null" json:"outcome"`
	Severity      Severity       `gorm:"column:severity;not null" json:"severity"`
	ActorID       uuid.UUID      `gorm:"type:uuid;column:actor_id;index" json:"actor_id"`
	TargetID      string         `gorm:"column:target_id;index" json:"target_id,omitempty"`
	CorrelationID string         `gorm:"column:correlation_id;index" json:"correlation_id,omitempty"`
	Detail        datatypes.JSON `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Record) TableName() string { return "audit_log" }
