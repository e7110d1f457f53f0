package queue

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/delayed/pkg/codec"
)

// Options holds per-call enqueue settings.
type Options struct {
	Priority  *int
	RunAt     *time.Time
	Delay     time.Duration
	Server    string
	UniqueKey string
}

// NewOptions creates empty Options; unset values fall back to queue defaults.
func NewOptions() *Options {
	return &Options{}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// Priority sets the job priority (lower = runs first).
func Priority(p int) Option {
	return optionFunc(func(o *Options) {
		o.Priority = &p
	})
}

// At schedules the job to run at a specific time.
func At(t time.Time) Option {
	return optionFunc(func(o *Options) {
		o.RunAt = &t
	})
}

// Delay schedules the job to run after a duration, measured on the store's clock.
// At wins when both are given.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Delay = d
	})
}

// Server pins the job to workers running on the named host.
func Server(host string) Option {
	return optionFunc(func(o *Options) {
		o.Server = host
	})
}

// UniqueKey overrides the key the payload reports through core.UniqueKeyer.
func UniqueKey(key string) Option {
	return optionFunc(func(o *Options) {
		o.UniqueKey = key
	})
}

// QueueOption configures a Queue.
type QueueOption interface {
	applyQueue(*Queue)
}

type queueOptionFunc func(*Queue)

func (f queueOptionFunc) applyQueue(q *Queue) { f(q) }

// DefaultPriority sets the priority used when Enqueue is not given one.
func DefaultPriority(p int) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		q.defaultPriority = p
	})
}

// DelayJobs controls whether Enqueue writes jobs (true, the default) or runs
// payloads immediately in the caller's goroutine without touching the store.
func DelayJobs(delay bool) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		q.delayJobs = delay
	})
}

// WithLogger sets the queue's logger.
func WithLogger(l zerolog.Logger) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		q.logger = l
	})
}

// WithRegistry shares an existing payload registry.
func WithRegistry(r *codec.Registry) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		q.registry = r
	})
}

// WithLoader installs a codec.Loader on the queue's registry.
func WithLoader(l codec.Loader) QueueOption {
	return queueOptionFunc(func(q *Queue) {
		q.loader = l
	})
}
