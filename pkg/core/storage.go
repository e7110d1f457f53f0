package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// Storage is the persistence contract the coordinator relies on.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Now is the shared clock every worker compares lock ages against.
	Now(ctx context.Context) (time.Time, error)

	// Insert persists a new job. A duplicate unique key is reported as a
	// *ConstraintViolation with Field "unique_key".
	Insert(ctx context.Context, job *Job) error
	UniqueKeyExists(ctx context.Context, key string) (bool, error)

	// Reservation
	FindAvailable(ctx context.Context, q AvailableQuery) ([]*Job, error)
	LockExclusively(ctx context.Context, job *Job, workerName string, now time.Time, maxRunTime time.Duration) (bool, error)
	ClearLocks(ctx context.Context, workerName string) (int64, error)

	// Completion. Both return ErrJobNotOwned when workerName no longer holds the job.
	Delete(ctx context.Context, job *Job, workerName string) error
	Save(ctx context.Context, job *Job, workerName string) error

	// Queries
	GetJob(ctx context.Context, jobID string) (*Job, error)
	FailedJobs(ctx context.Context, limit int) ([]*Job, error)
	Stats(ctx context.Context) (Stats, error)
	Retry(ctx context.Context, jobID string) error

	ForkHooks
}

// ForkHooks lets a process-pool manager reset resources that must not be
// shared between a parent and the worker processes it spawns.
type ForkHooks interface {
	BeforeFork()
	AfterFork()
}

// NopForkHooks is embedded by stores with nothing to reset.
type NopForkHooks struct{}

func (NopForkHooks) BeforeFork() {}

func (NopForkHooks) AfterFork() {}
