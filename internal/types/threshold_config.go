package types

import (
	"time"
	"github.com/google/uuid"
)

// ThresholdConfig holds the per-session tunables of the discovery and
// enforcement engine. Rows are optional; process-wide defaults apply when a
// session has none.
type ThresholdConfig struct {
	ID        uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"session_id"`
	Session   *EventSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`

	MinGateSamples           int     `gorm:"not null;default:20" json:"min_gate_samples"`
	MaxSpatialVarianceM2     float64 `gorm:"not null;default:2500" json:"max_spatial_variance_m2"`
	SoftConfidence           float64 `gorm:"not null;default:0.70" json:"soft_confidence"`
	HardConfidence           float64 `gorm:"not null;default:0.80" json:"hard_confidence"`
	MinEffectiveSamples      int     `gorm:"not null;default:20" json:"min_effective_samples"`
	MergeDistanceM           float64 `gorm:"not null;default:15" json:"merge_distance_m"`
	ClusterEpsilonM          float64 `gorm:"not null;default:25" json:"cluster_epsilon_m"`
	OrphanMaxDistanceM       float64 `gorm:"not null;default:75" json:"orphan_max_distance_m"`
	MinQualityWeight         float64 `gorm:"not null;default:0.6" json:"min_quality_weight"`
	ViolationDemoteThreshold int     `gorm:"not null;default:10" json:"violation_demote_threshold"`
	FirstRunAtScans          int     `gorm:"not null;default:50" json:"first_run_at_scans"`
	RefreshEveryScans        int     `gorm:"not null;default:100" json:"refresh_every_scans"`
	AutoApplyMerges          bool    `gorm:"not null;default:false" json:"auto_apply_merges"`
	AutoApplyConfidence      float64 `gorm:"not null;default:0.9" json:"auto_apply_confidence"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ThresholdConfig) TableName() string { return "threshold_config" }
