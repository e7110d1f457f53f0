// Package core provides the domain models and interfaces for the delayed package.
package core

import (
	"time"
)

// TableName is the table backing Job rows.
const TableName = "delayed_jobs"

// Job is a persisted unit of work with its scheduling and lock metadata.
//
// LockedAt and LockedBy are either both nil or both set. A non-nil FailedAt
// marks the job as permanently failed; such jobs are never reserved again.
type Job struct {
	ID        string     `gorm:"primaryKey;size:36"`
	Priority  int        `gorm:"index:idx_delayed_jobs_priority_run_at,priority:1;not null;default:0"`
	Attempts  int        `gorm:"not null;default:0"`
	Handler   string     `gorm:"type:text;not null"`
	LastError *string    `gorm:"type:text"`
	RunAt     time.Time  `gorm:"index:idx_delayed_jobs_priority_run_at,priority:2;not null"`
	LockedAt  *time.Time `gorm:"index"`
	LockedBy  *string    `gorm:"size:255"`
	FailedAt  *time.Time `gorm:"index"`
	UniqueKey *string    `gorm:"uniqueIndex;size:255"`
	Server    *string    `gorm:"size:255"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`

	// payload caches the decoded handler for the length of one reservation.
	payload Payload
}

// TableName implements gorm's tabler interface.
func (Job) TableName() string { return TableName }

// Failed reports whether the job reached its terminal failed state.
func (j *Job) Failed() bool { return j.FailedAt != nil }

// Locked reports whether some worker currently holds the job.
func (j *Job) Locked() bool { return j.LockedAt != nil && j.LockedBy != nil }

// LockedByWorker reports whether the job is held by the named worker.
func (j *Job) LockedByWorker(name string) bool {
	return j.LockedBy != nil && *j.LockedBy == name
}

// Lock records a lock for worker at the given time. It does not persist anything.
func (j *Job) Lock(worker string, at time.Time) {
	j.LockedAt = &at
	j.LockedBy = &worker
}

// Unlock clears both lock fields. It does not persist anything.
func (j *Job) Unlock() {
	j.LockedAt = nil
	j.LockedBy = nil
}

// ServerTag returns the host affinity tag, or "" when unset.
func (j *Job) ServerTag() string {
	if j.Server == nil {
		return ""
	}
	return *j.Server
}

// Payload returns the decoded payload cached on the job, if any.
func (j *Job) Payload() Payload { return j.payload }

// SetPayload caches a decoded payload on the job.
func (j *Job) SetPayload(p Payload) { j.payload = p }

// AvailableQuery selects jobs a worker may try to reserve.
type AvailableQuery struct {
	WorkerName  string
	Host        string
	Now         time.Time
	MaxRunTime  time.Duration
	Limit       int
	MinPriority *int
	MaxPriority *int
}

// Stats summarises the queue for inspection.
type Stats struct {
	Pending int64 `json:"pending"`
	Locked  int64 `json:"locked"`
	Failed  int64 `json:"failed"`
}
