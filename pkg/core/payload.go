package core

import (
	"context"
	"time"
)

// Payload is the unit of work embedded in a job's handler.
type Payload interface {
	Perform(ctx context.Context) error
}

// UniqueKeyer lets a payload deduplicate logically identical jobs.
type UniqueKeyer interface {
	UniqueKey() string
}

// TransientClearer resets state that must not be serialized or reused.
type TransientClearer interface {
	ClearTransient()
}

// JobIDSetter receives the ID of the job it runs in.
type JobIDSetter interface {
	SetJobID(id string)
}

// Rescheduler overrides the default retry backoff.
type Rescheduler interface {
	RescheduleAt(now time.Time, attempts int) time.Time
}

// MaxAttempter caps the number of attempts for a payload.
type MaxAttempter interface {
	MaxAttempts() int
}

// DisplayNamer overrides the job name used in logs.
type DisplayNamer interface {
	DisplayName() string
}

// Lifecycle hook method names. A payload opts into a hook by declaring a
// method with one of these names, in either of two forms:
//
//	func (p *T) BeforePerform() error
//	func (p *T) BeforePerform(ctx context.Context, job *core.Job) error
//
// The job form may also omit the context, and the error result is optional.
// OnError receives the invocation error as an extra argument after the job.
const (
	HookEnqueue          = "OnEnqueue"
	HookBefore           = "BeforePerform"
	HookSuccess          = "OnSuccess"
	HookError            = "OnError"
	HookAfter            = "AfterPerform"
	HookPermanentFailure = "OnPermanentFailure"
)
