package queue

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/internal/hook"
	"github.com/jdziat/delayed/pkg/security"
)

// Enqueue adds a job running p to the queue.
//
// A payload whose unique key is already present in the store is skipped:
// Enqueue returns (nil, nil) without writing anything. The same happens when
// a concurrent Enqueue inserts the key between the existence check and the
// write.
//
// With DelayJobs(false) the payload runs immediately through InvokeJob and
// the returned job is never persisted.
func (q *Queue) Enqueue(ctx context.Context, p core.Payload, opts ...Option) (*core.Job, error) {
	if isNilPayload(p) {
		return nil, core.ErrInvalidPayload
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	key := options.UniqueKey
	if key == "" {
		if uk, ok := p.(core.UniqueKeyer); ok {
			key = uk.UniqueKey()
		}
	}
	if err := security.ValidateUniqueKey(key); err != nil {
		return nil, err
	}

	if tc, ok := p.(core.TransientClearer); ok {
		tc.ClearTransient()
	}

	if key != "" {
		exists, err := q.storage.UniqueKeyExists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("delayed: failed to check unique key: %w", err)
		}
		if exists {
			q.logger.Debug().Str("unique_key", key).Msg("skipping enqueue, unique key already present")
			return nil, nil
		}
	}

	handler, err := q.registry.Encode(p)
	if err != nil {
		return nil, err
	}
	if err := security.ValidateHandlerSize(handler); err != nil {
		return nil, err
	}

	job := &core.Job{
		Priority: q.defaultPriority,
		Handler:  handler,
	}
	job.SetPayload(p)
	if options.Priority != nil {
		job.Priority = *options.Priority
	}
	if key != "" {
		job.UniqueKey = &key
	}
	if options.Server != "" {
		server := options.Server
		job.Server = &server
	}

	if !q.delayJobs {
		return job, q.InvokeJob(ctx, job)
	}

	runAt, err := q.runAt(ctx, options)
	if err != nil {
		return nil, err
	}
	job.RunAt = runAt

	if err := hook.Call(ctx, p, core.HookEnqueue, job); err != nil {
		return nil, err
	}

	if err := q.storage.Insert(ctx, job); err != nil {
		if core.IsUniqueKeyViolation(err) {
			q.logger.Debug().Str("unique_key", key).Msg("skipping enqueue, unique key inserted concurrently")
			return nil, nil
		}
		return nil, fmt.Errorf("delayed: failed to enqueue: %w", err)
	}

	q.Emit(&core.JobEnqueued{Job: job, Timestamp: time.Now()})
	return job, nil
}

// EnqueueAny is Enqueue for callers holding an untyped value. It fails with
// core.ErrInvalidPayload when v has no Perform method.
func (q *Queue) EnqueueAny(ctx context.Context, v any, opts ...Option) (*core.Job, error) {
	p, ok := v.(core.Payload)
	if !ok {
		return nil, core.ErrInvalidPayload
	}
	return q.Enqueue(ctx, p, opts...)
}

func (q *Queue) runAt(ctx context.Context, options *Options) (time.Time, error) {
	if options.RunAt != nil {
		return options.RunAt.UTC(), nil
	}
	now, err := q.storage.Now(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("delayed: failed to read store clock: %w", err)
	}
	return now.Add(options.Delay), nil
}

func isNilPayload(p core.Payload) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}
