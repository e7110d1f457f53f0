// Package delayed is a database-backed queue for jobs that run later, on
// another process or machine.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a compact API surface.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("jobs.db"), &gorm.Config{})
//	store := delayed.NewGormStorage(db)
//	store.Migrate(ctx)
//	q := delayed.New(store)
//
//	// Register a payload type
//	q.Register("SendInvoice", func() delayed.Payload { return &SendInvoice{} })
//
//	// Enqueue it
//	q.Enqueue(ctx, &SendInvoice{InvoiceID: 42}, delayed.Priority(-1))
//
//	// Run a worker
//	delayed.NewWorker(q).Start(ctx)
package delayed

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jdziat/delayed/pkg/codec"
	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/queue"
	"github.com/jdziat/delayed/pkg/schedule"
	"github.com/jdziat/delayed/pkg/security"
	"github.com/jdziat/delayed/pkg/storage"
	"github.com/jdziat/delayed/pkg/worker"
)

type (
	// Job is a persisted unit of work.
	Job = core.Job

	// Payload is the work a job carries.
	Payload = core.Payload

	// Storage is the persistence contract.
	Storage = core.Storage

	// Stats counts pending, locked and failed jobs.
	Stats = core.Stats

	// Optional payload capabilities.
	UniqueKeyer      = core.UniqueKeyer
	TransientClearer = core.TransientClearer
	JobIDSetter      = core.JobIDSetter
	Rescheduler      = core.Rescheduler
	MaxAttempter     = core.MaxAttempter
	DisplayNamer     = core.DisplayNamer

	// Events
	Event        = core.Event
	JobEnqueued  = core.JobEnqueued
	JobStarted   = core.JobStarted
	JobCompleted = core.JobCompleted
	JobFailed    = core.JobFailed
	JobRetrying  = core.JobRetrying

	// Error types
	ConstraintViolation  = core.ConstraintViolation
	DeserializationError = core.DeserializationError
	InvocationError      = core.InvocationError
	PanicError           = core.PanicError

	// Queue registers, enqueues, reserves and invokes jobs.
	Queue = queue.Queue

	// Option configures a single enqueue.
	Option = queue.Option

	// QueueOption configures a Queue.
	QueueOption = queue.QueueOption

	// Registry maps payload type names to factories.
	Registry = codec.Registry

	// Factory builds an empty payload for decoding.
	Factory = codec.Factory

	// Loader defines a payload type on demand.
	Loader = codec.Loader

	// Worker runs jobs.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// WorkerConfig holds worker configuration.
	WorkerConfig = worker.WorkerConfig

	// RetryConfig controls retries of storage calls made by a worker.
	RetryConfig = worker.RetryConfig

	// Schedule yields the ticks of a recurring job.
	Schedule = schedule.Schedule

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage
)

// Lifecycle hook method names.
const (
	HookEnqueue          = core.HookEnqueue
	HookBefore           = core.HookBefore
	HookSuccess          = core.HookSuccess
	HookError            = core.HookError
	HookAfter            = core.HookAfter
	HookPermanentFailure = core.HookPermanentFailure
)

// Security limits
const (
	MaxTypeNameLength     = security.MaxTypeNameLength
	MaxHandlerSize        = security.MaxHandlerSize
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxUniqueKeyLength    = security.MaxUniqueKeyLength
	MaxWorkerNameLength   = security.MaxWorkerNameLength
)

// Error variables
var (
	ErrInvalidPayload    = core.ErrInvalidPayload
	ErrInvalidTypeName   = core.ErrInvalidTypeName
	ErrTypeNameTooLong   = core.ErrTypeNameTooLong
	ErrHandlerTooLarge   = core.ErrHandlerTooLarge
	ErrUniqueKeyTooLong  = core.ErrUniqueKeyTooLong
	ErrJobNotOwned       = core.ErrJobNotOwned
	ErrJobNotFound       = core.ErrJobNotFound
	ErrJobNotFailed      = core.ErrJobNotFailed
	ErrInvalidHookMethod = core.ErrInvalidHookMethod
	ErrUnregisteredType  = codec.ErrUnregisteredType
	ErrUnknownType       = codec.ErrUnknownType
)

// New creates a new Queue with the given storage backend.
func New(s Storage, opts ...QueueOption) *Queue {
	return queue.New(s, opts...)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewRegistry creates an empty payload registry.
func NewRegistry() *Registry {
	return codec.NewRegistry()
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *Queue, opts ...WorkerOption) *Worker {
	return worker.NewWorker(q, opts...)
}

// WorkOff runs up to n due jobs on a throwaway worker and returns how many
// succeeded and failed.
//
// Deprecated: create a Worker with NewWorker and call its WorkOff method.
func WorkOff(ctx context.Context, q *Queue, n int) (success, failure int, err error) {
	return NewWorker(q).WorkOff(ctx, n)
}

// IsUniqueKeyViolation reports whether err is a duplicate unique key on insert.
func IsUniqueKeyViolation(err error) bool {
	return core.IsUniqueKeyViolation(err)
}

// IsDeserializationError reports whether err means a handler could not be decoded.
func IsDeserializationError(err error) bool {
	return core.IsDeserializationError(err)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// Backoff is the default retry delay after attempts failures.
func Backoff(attempts int) time.Duration {
	return worker.Backoff(attempts)
}

// Enqueue options

// Priority sets the job priority (lower runs first).
func Priority(p int) Option {
	return queue.Priority(p)
}

// At schedules the job to run at a specific time.
func At(t time.Time) Option {
	return queue.At(t)
}

// Delay schedules the job to run after a duration.
func Delay(d time.Duration) Option {
	return queue.Delay(d)
}

// Server pins the job to workers on one host.
func Server(host string) Option {
	return queue.Server(host)
}

// UniqueKey skips the enqueue when a job with key already exists.
func UniqueKey(key string) Option {
	return queue.UniqueKey(key)
}

// Queue options

// DefaultPriority sets the priority of jobs enqueued without one.
func DefaultPriority(p int) QueueOption {
	return queue.DefaultPriority(p)
}

// DelayJobs(false) runs jobs inline at enqueue time, which is handy in tests.
func DelayJobs(delay bool) QueueOption {
	return queue.DelayJobs(delay)
}

// WithLogger sets the queue's logger; workers inherit it.
func WithLogger(l zerolog.Logger) QueueOption {
	return queue.WithLogger(l)
}

// WithRegistry shares a payload registry between queues.
func WithRegistry(r *Registry) QueueOption {
	return queue.WithRegistry(r)
}

// WithLoader sets the hook that defines unknown payload types on demand.
func WithLoader(l Loader) QueueOption {
	return queue.WithLoader(l)
}

// Worker options

// WorkerName sets the name a worker locks jobs under.
func WorkerName(name string) WorkerOption {
	return worker.Name(name)
}

// Host sets the host matched against job server tags.
func Host(host string) WorkerOption {
	return worker.Host(host)
}

// SleepDelay sets how long an idle worker waits before polling again.
func SleepDelay(d time.Duration) WorkerOption {
	return worker.SleepDelay(d)
}

// MaxRunTime sets how long a lock stays valid before other workers may take the job over.
func MaxRunTime(d time.Duration) WorkerOption {
	return worker.MaxRunTime(d)
}

// MaxAttempts sets the default attempt limit; 0 retries forever.
func MaxAttempts(n int) WorkerOption {
	return worker.MaxAttempts(n)
}

// MinPriority restricts a worker to jobs with priority >= p.
func MinPriority(p int) WorkerOption {
	return worker.MinPriority(p)
}

// MaxPriority restricts a worker to jobs with priority <= p.
func MaxPriority(p int) WorkerOption {
	return worker.MaxPriority(p)
}

// DestroyFailedJobs deletes jobs that fail permanently.
func DestroyFailedJobs(destroy bool) WorkerOption {
	return worker.DestroyFailedJobs(destroy)
}

// WorkerLogger gives a worker its own logger.
func WorkerLogger(l zerolog.Logger) WorkerOption {
	return worker.WithLogger(l)
}

// WithSchedule makes a worker enqueue payload() on every tick of s.
func WithSchedule(name string, s Schedule, payload func() Payload) WorkerOption {
	return worker.WithSchedule(name, s, payload)
}

// WithStorageRetry configures retries of a worker's storage writes.
func WithStorageRetry(config RetryConfig) WorkerOption {
	return worker.WithStorageRetry(config)
}

// Schedule functions

// Every creates a schedule that ticks at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at hour:minute UTC each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) (Schedule, error) {
	return schedule.Cron(expr)
}
