package queue

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jdziat/delayed/pkg/codec"
	"github.com/jdziat/delayed/pkg/core"
)

// Queue manages payload registration, enqueueing, reservation and invocation.
type Queue struct {
	storage  core.Storage
	registry *codec.Registry
	loader   codec.Loader
	logger   zerolog.Logger

	defaultPriority int
	delayJobs       bool

	mu        sync.RWMutex
	eventSubs []chan core.Event
}

// New creates a new Queue with the given storage backend.
func New(s core.Storage, opts ...QueueOption) *Queue {
	q := &Queue{
		storage:   s,
		logger:    log.Logger,
		delayJobs: true,
	}
	for _, opt := range opts {
		opt.applyQueue(q)
	}
	if q.registry == nil {
		q.registry = codec.NewRegistry()
	}
	if q.loader != nil {
		q.registry.SetLoader(q.loader)
	}
	return q
}

// Register makes a payload type known under name.
// Type names must be alphanumeric (starting with a letter), max 255 chars;
// dots separate namespaces, as in "Billing.Invoice".
func (q *Queue) Register(name string, factory codec.Factory) error {
	return q.registry.Register(name, factory)
}

// Registry returns the payload registry.
func (q *Queue) Registry() *codec.Registry {
	return q.registry
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// Logger returns the queue's logger.
func (q *Queue) Logger() zerolog.Logger {
	return q.logger
}

// DefaultPriority returns the priority given to jobs enqueued without one.
func (q *Queue) DefaultPriority() int {
	return q.defaultPriority
}

// Payload returns the job's decoded payload, decoding and caching it on first use.
func (q *Queue) Payload(job *core.Job) (core.Payload, error) {
	if p := job.Payload(); p != nil {
		return p, nil
	}
	p, err := q.registry.Decode(job.Handler)
	if err != nil {
		return nil, err
	}
	job.SetPayload(p)
	return p, nil
}

// JobName returns the payload's display name, falling back to the type name
// embedded in the handler when the payload cannot be decoded.
func (q *Queue) JobName(job *core.Job) string {
	p, err := q.Payload(job)
	if err != nil {
		return codec.TypeName(job.Handler)
	}
	if dn, ok := p.(core.DisplayNamer); ok {
		return dn.DisplayName()
	}
	if name, ok := q.registry.NameOf(p); ok {
		return name
	}
	return codec.TypeName(job.Handler)
}

// eventBuffer is how many events a subscriber may fall behind before new
// ones are dropped for it.
const eventBuffer = 100

// Events subscribes to job lifecycle events. Pass the channel to Unsubscribe
// when done.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, eventBuffer)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.eventSubs = append(q.eventSubs, ch)
	return ch
}

// Unsubscribe stops delivery to ch. It does not close ch.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.eventSubs = slices.DeleteFunc(q.eventSubs, func(sub chan core.Event) bool {
		return sub == ch
	})
}

// Emit delivers e to every subscriber without blocking. A subscriber whose
// buffer is full misses e.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, ch := range q.eventSubs {
		select {
		case ch <- e:
		default:
		}
	}
}
