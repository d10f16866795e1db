package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"

	JobTypeDiscoveryCycle   = "discovery_cycle"
	JobTypeEnforcementCycle = "enforcement_cycle"
	JobTypeDuplicateScan    = "duplicate_scan"
)

// JobRun is one queued background cycle for a session. The worker claims
// rows with SKIP LOCKED, so concurrent workers never double-run a job, and a
// failed or stalled run is retried per policy.
type JobRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	Session     *EventSession  `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	JobType     string         `gorm:"not null;index" json:"job_type"`
	Status      string         `gorm:"not null;default:'queued';index" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	Stage       *string        `json:"stage,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	LastErrorAt *time.Time     `json:"last_error_at,omitempty"`
	HeartbeatAt *time.Time     `json:"heartbeat_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
