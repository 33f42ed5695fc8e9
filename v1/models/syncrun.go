package models

import (
	"time"
)

// BreakerState represents the circuit breaker state machine states
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSnapshot is a point-in-time view of the circuit breaker, safe to
// read while a sync run is mutating the breaker
type BreakerSnapshot struct {
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastFailureAt       *time.Time   `json:"lastFailureAt,omitempty"`
}

// SyncRun is the immutable audit record of one reconciliation attempt
type SyncRun struct {
	RunID           string       `gorm:"primarykey;column:run_id" json:"runId"`
	StartedAt       time.Time    `gorm:"column:started_at" json:"startedAt"`
	CompletedAt     *time.Time   `gorm:"column:completed_at" json:"completedAt,omitempty"`
	Mode            SyncMode     `gorm:"column:mode" json:"mode"`
	IsFallback      bool         `gorm:"column:is_fallback" json:"isFallback"`
	Created         int          `gorm:"column:created_count" json:"created"`
	Updated         int          `gorm:"column:updated_count" json:"updated"`
	Cleaned         int          `gorm:"column:cleaned_count" json:"cleaned"`
	Validated       int          `gorm:"column:validated_count" json:"validated"`
	Errors          StringList   `gorm:"column:errors;type:text" json:"errors"`
	BreakerState    BreakerState `gorm:"column:breaker_state" json:"breakerState"`
	BreakerFailures int          `gorm:"column:breaker_failures" json:"breakerFailures"`
}

// TableName sets the table name for GORM
func (SyncRun) TableName() string {
	return "sync_runs"
}

// AddError appends a per-record error without aborting the run
func (r *SyncRun) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// SyncStats holds rolling counters across runs
type SyncStats struct {
	TotalSyncs      int    `json:"totalSyncs"`
	SuccessfulSyncs int    `json:"successfulSyncs"`
	FailedSyncs     int    `json:"failedSyncs"`
	LastError       string `json:"lastError,omitempty"`
}

// SyncStatus is the observability view exposed by the status endpoint
type SyncStatus struct {
	IsRunning    bool            `json:"isRunning"`
	LastSyncTime *time.Time      `json:"lastSyncTime,omitempty"`
	Stats        SyncStats       `json:"stats"`
	Breaker      BreakerSnapshot `json:"circuitBreaker"`
}

// SyncOptions controls what a sync run does
type SyncOptions struct {
	PushPendingToSheet bool `json:"pushPendingToSheet"`
}
