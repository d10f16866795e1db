package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	GateStatusActive      = "active"
	GateStatusInactive    = "inactive"
	GateStatusMaintenance = "maintenance"

	GateDerivedFromClustering = "clustering"
	GateDerivedFromManual     = "manual"
)

// Gate is a physical entry point inferred from clustered scan locations (or
// created manually by an operator). Merged-away gates are deactivated, never
// hard-deleted.
type Gate struct {
	ID               uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"session_id"`
	Session          *EventSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Name             string        `gorm:"not null" json:"name"`
	Lat              *float64      `json:"lat,omitempty"`
	Lon              *float64      `json:"lon,omitempty"`
	GeoKey           string        `gorm:"not null;index" json:"geo_key"`
	DerivationMethod string        `gorm:"not null;default:'clustering'" json:"derivation_method"`
	HealthScore      int           `gorm:"not null;default:50" json:"health_score"`
	Status           string        `gorm:"not null;default:'active';index" json:"status"`
	SpatialVarianceM2 float64      `gorm:"not null;default:0" json:"spatial_variance_m2"`
	SampleCount      int           `gorm:"not null;default:0" json:"sample_count"`
	FirstSeenAt      time.Time     `gorm:"not null;default:now()" json:"first_seen_at"`
	LastActivityAt   time.Time     `gorm:"not null;default:now()" json:"last_activity_at"`
	CreatedAt        time.Time     `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Bindings []*CategoryBinding `gorm:"foreignKey:GateID;references:ID" json:"bindings,omitempty"`
}

func (Gate) TableName() string { return "gate" }

func (g *Gate) HasLocation() bool {
	return g.Lat != nil && g.Lon != nil
}
