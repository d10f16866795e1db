package types

import (
	"time"
	"github.com/google/uuid"
)

const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// CheckinEvent is one wristband scan. Append-only: rows are created by the
// ingestion boundary and never mutated, except for the one-shot gate
// backfill done by orphan assignment and merge repointing.
type CheckinEvent struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"session_id"`
	Session       *EventSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	WristbandID   string        `gorm:"not null;index" json:"wristband_id"`
	Category      string        `gorm:"not null;index" json:"category"`
	ScannedAt     time.Time     `gorm:"not null;index" json:"scanned_at"`
	Lat           *float64      `json:"lat,omitempty"`
	Lon           *float64      `json:"lon,omitempty"`
	AccuracyM     *float64      `json:"accuracy_m,omitempty"`
	QualityWeight float64       `gorm:"not null;default:0" json:"quality_weight"`
	GateID        *uuid.UUID    `gorm:"type:uuid;index" json:"gate_id,omitempty"`
	Gate          *Gate         `gorm:"constraint:OnDelete:SET NULL;foreignKey:GateID;references:ID" json:"gate,omitempty"`
	Outcome       string        `gorm:"not null;default:'success';index" json:"outcome"`
	ClientEventID *string       `gorm:"index" json:"client_event_id,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;default:now();index" json:"created_at"`
}

func (CheckinEvent) TableName() string { return "checkin_event" }

// HasLocation reports whether the scan carried usable coordinates.
func (e *CheckinEvent) HasLocation() bool {
	return e.Lat != nil && e.Lon != nil
}
