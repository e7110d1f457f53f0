package worker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/schedule"
	"github.com/jdziat/delayed/pkg/security"
)

// Defaults applied by New.
const (
	DefaultSleepDelay = 5 * time.Second
	DefaultMaxRunTime = 4 * time.Hour
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	// Name identifies the worker in lock columns. Default: "host:<hostname> pid:<pid>".
	Name string
	// Host is matched against a job's server tag. Default: the hostname.
	Host string
	// SleepDelay is how long an idle worker waits before polling again.
	SleepDelay time.Duration
	// MaxRunTime bounds the validity of a lock. A locked job older than this
	// may be taken over by another worker; the running job is not stopped.
	MaxRunTime time.Duration
	// MaxAttempts applies to payloads that do not declare their own; 0 retries forever.
	MaxAttempts int
	MinPriority *int
	MaxPriority *int
	// DestroyFailedJobs deletes permanently failed jobs instead of keeping them.
	DestroyFailedJobs bool

	Logger       *zerolog.Logger
	StorageRetry *RetryConfig
	ReserveRetry *RetryConfig

	Schedules []ScheduledJob
}

// ScheduledJob is a payload the worker enqueues on every tick of Schedule.
type ScheduledJob struct {
	Name     string
	Schedule schedule.Schedule
	Payload  func() core.Payload
}

// Name sets the worker name written to locked_by.
func Name(name string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Name = security.TruncateWorkerName(name)
	})
}

// Host sets the host matched against job server tags.
func Host(host string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Host = host
	})
}

// SleepDelay sets the idle poll interval.
func SleepDelay(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.SleepDelay = d
	})
}

// MaxRunTime sets how long a job may run before its lock is considered stale.
func MaxRunTime(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.MaxRunTime = d
	})
}

// MaxAttempts sets the default attempt limit. 0 means unlimited.
func MaxAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if n < 0 {
			n = 0
		}
		c.MaxAttempts = n
	})
}

// MinPriority restricts the worker to jobs with priority >= p.
func MinPriority(p int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.MinPriority = &p
	})
}

// MaxPriority restricts the worker to jobs with priority <= p.
func MaxPriority(p int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.MaxPriority = &p
	})
}

// DestroyFailedJobs deletes jobs when they fail permanently.
func DestroyFailedJobs(destroy bool) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DestroyFailedJobs = destroy
	})
}

// WithLogger sets the worker's logger. Defaults to the queue's logger.
func WithLogger(l zerolog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = &l
	})
}

// WithSchedule enqueues payload() on every tick of s. Each tick is enqueued
// with the unique key "schedule:<name>:<unix tick>", so a pool of workers
// sharing a schedule writes one job per tick.
func WithSchedule(name string, s schedule.Schedule, payload func() core.Payload) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Schedules = append(c.Schedules, ScheduledJob{Name: name, Schedule: s, Payload: payload})
	})
}

// WithStorageRetry configures retry behavior for storage writes made after
// a job ran (delete, reschedule, fail, lock release).
func WithStorageRetry(config RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &config
	})
}

// WithReserveRetry configures retry behavior for reservation queries.
// Uses longer backoff by default to avoid hammering the database during outages.
func WithReserveRetry(config RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.ReserveRetry = &config
	})
}

// WithRetryAttempts sets the maximum storage retry attempts, keeping the
// other defaults.
func WithRetryAttempts(attempts int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = attempts
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes every storage call a single attempt.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		noRetry := RetryConfig{MaxAttempts: 1}
		c.StorageRetry = &noRetry
		c.ReserveRetry = &noRetry
	})
}
