package types

import (
	"time"
	"github.com/google/uuid"
)

const (
	BindingStatusProbation = "probation"
	BindingStatusEnforced  = "enforced"
	BindingStatusUnbound   = "unbound"
)

// CategoryBinding is the learned association between a gate and a wristband
// category. Mutated exclusively by the binding learner (and by merge
// repointing). Status only moves forward under evidence and backward under
// violations, never skipping probation on the way up.
type CategoryBinding struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GateID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_binding_gate_category" json:"gate_id"`
	Gate            *Gate      `gorm:"constraint:OnDelete:CASCADE;foreignKey:GateID;references:ID" json:"gate,omitempty"`
	Category        string     `gorm:"not null;uniqueIndex:uq_binding_gate_category" json:"category"`
	SampleCount     int        `gorm:"not null;default:0" json:"sample_count"`
	Confidence      float64    `gorm:"not null;default:0" json:"confidence"`
	Status          string     `gorm:"not null;default:'probation';index" json:"status"`
	ViolationCount  int        `gorm:"not null;default:0" json:"violation_count"`
	LastViolationAt *time.Time `json:"last_violation_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (CategoryBinding) TableName() string { return "category_binding" }
