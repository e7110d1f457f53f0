package core

import "time"

// Event is the interface for all queue events.
type Event interface {
	eventMarker()
}

// JobEnqueued is emitted after a job row is written.
type JobEnqueued struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobEnqueued) eventMarker() {}

// JobStarted is emitted when a worker has reserved a job and begins running it.
type JobStarted struct {
	Job        *Job
	WorkerName string
	Timestamp  time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job completes successfully.
type JobCompleted struct {
	Job       *Job
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job fails permanently.
type JobFailed struct {
	Job       *Job
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobRetrying is emitted when a failed job is rescheduled.
type JobRetrying struct {
	Job       *Job
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}
