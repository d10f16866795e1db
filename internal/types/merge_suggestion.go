package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MergeStatusPending     = "pending"
	MergeStatusApproved    = "approved"
	MergeStatusRejected    = "rejected"
	MergeStatusAutoApplied = "auto_applied"
)

// MergeSuggestion proposes consolidating two gates believed to be the same
// physical entry point. Terminal states (approved/rejected/auto_applied) are
// immutable.
type MergeSuggestion struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	Session           *EventSession  `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	SourceGateID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"source_gate_id"`
	SourceGate        *Gate          `gorm:"foreignKey:SourceGateID;references:ID" json:"source_gate,omitempty"`
	TargetGateID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"target_gate_id"`
	TargetGate        *Gate          `gorm:"foreignKey:TargetGateID;references:ID" json:"target_gate,omitempty"`
	DistanceM         float64        `gorm:"not null" json:"distance_m"`
	TrafficSimilarity float64        `gorm:"not null" json:"traffic_similarity"`
	Confidence        float64        `gorm:"not null" json:"confidence"`
	Status            string         `gorm:"not null;default:'pending';index" json:"status"`
	Evidence          datatypes.JSON `gorm:"type:jsonb" json:"evidence,omitempty"`
	ReviewedBy        *string        `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time     `json:"reviewed_at,omitempty"`
	ReviewReason      *string        `json:"review_reason,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (MergeSuggestion) TableName() string { return "merge_suggestion" }

// Terminal reports whether the suggestion reached an immutable state.
func (m *MergeSuggestion) Terminal() bool {
	return m.Status != MergeStatusPending
}
