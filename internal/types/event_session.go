package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionStatusActive   = "active"
	SessionStatusInactive = "inactive"
)

// EventSession is a venue session (one show/day at a venue). All gates,
// check-ins and thresholds hang off a session. Marking it inactive stops
// background cycles from rescheduling.
type EventSession struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Status    string         `gorm:"not null;default:'active';index" json:"status"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (EventSession) TableName() string { return "event_session" }
