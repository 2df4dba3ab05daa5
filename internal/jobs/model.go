package jobs

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	TypeLeaseSweep = "LEASE_SWEEP"

	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

type Job struct {
	ID           uint64 `gorm:"primaryKey"`
	LeaseGroupID string `gorm:"type:varchar(36);index;not null"`

	Type    string         `gorm:"type:text;not null"` // LEASE_SWEEP
	Payload datatypes.JSON `gorm:"not null"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null;default:'PENDING'"` // PENDING/RUNNING/DONE/FAILED

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string `gorm:"type:text"`
	LockedAt *time.Time

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type sweepPayload struct {
	LeaseGroupID string `json:"lease_group_id"`
}

// NewSweepJob builds a pending sweep for one lease group. Callers insert it
// inside their own transaction.
func NewSweepJob(leaseGroupID string, runAt time.Time) Job {
	payload, _ := json.Marshal(sweepPayload{LeaseGroupID: leaseGroupID})
	return Job{
		LeaseGroupID: leaseGroupID,
		Type:         TypeLeaseSweep,
		Payload:      datatypes.JSON(payload),
		RunAt:        runAt,
		Status:       StatusPending,
		MaxAttempts:  8,
		CreatedAt:    runAt,
		UpdatedAt:    runAt,
	}
}
