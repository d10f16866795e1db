package types

import (
	"time"
	"github.com/google/uuid"
)

// DiscoveryCheckpoint marks how far the binding learner has consumed a
// session's event stream. Cycles resume from here instead of rescanning
// history, and the cursor is what makes event counting exactly-once.
type DiscoveryCheckpoint struct {
	ID                 uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID          uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"session_id"`
	Session            *EventSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	LastEventCreatedAt time.Time     `gorm:"not null;default:'epoch'" json:"last_event_created_at"`
	LastEventID        uuid.UUID     `gorm:"type:uuid" json:"last_event_id"`
	LastRunAt          *time.Time    `json:"last_run_at,omitempty"`
	CreatedAt          time.Time     `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null;default:now()" json:"updated_at"`
}

func (DiscoveryCheckpoint) TableName() string { return "discovery_checkpoint" }
