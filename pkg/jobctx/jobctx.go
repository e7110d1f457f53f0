// Package jobctx exposes the running job to payload code through its
// context.Context.
//
//	func (p *SendInvoice) Perform(ctx context.Context) error {
//		zerolog.Ctx(ctx).Info().Msg("sending")      // logger scoped to the job
//		id := jobctx.JobIDFromContext(ctx)
//		...
//	}
package jobctx

import (
	"context"

	"github.com/jdziat/delayed/pkg/core"
)

type jobKey struct{}

type workerKey struct{}

// WithJob returns a copy of ctx carrying job.
func WithJob(ctx context.Context, job *core.Job) context.Context {
	return context.WithValue(ctx, jobKey{}, job)
}

// WithWorker returns a copy of ctx carrying the name of the worker running it.
func WithWorker(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerKey{}, name)
}

// JobFromContext returns the current Job, or nil outside a job.
func JobFromContext(ctx context.Context) *core.Job {
	job, _ := ctx.Value(jobKey{}).(*core.Job)
	return job
}

// JobIDFromContext returns the current job ID, or "" outside a job.
func JobIDFromContext(ctx context.Context) string {
	if job := JobFromContext(ctx); job != nil {
		return job.ID
	}
	return ""
}

// AttemptFromContext returns which attempt of the current job this is,
// starting at 1, or 0 outside a job.
func AttemptFromContext(ctx context.Context) int {
	if job := JobFromContext(ctx); job != nil {
		return job.Attempts + 1
	}
	return 0
}

// WorkerFromContext returns the worker name, or "" when the job runs inline
// at enqueue time.
func WorkerFromContext(ctx context.Context) string {
	name, _ := ctx.Value(workerKey{}).(string)
	return name
}
