package queue

import (
	"context"

	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/internal/hook"
	"github.com/jdziat/delayed/pkg/jobctx"
)

// InvokeJob runs a job's payload with its lifecycle hooks:
//
//	BeforePerform, ClearTransient, SetJobID, Perform, OnSuccess
//
// If any step fails, OnError receives the error and InvokeJob returns a
// *core.InvocationError. AfterPerform runs exactly once whatever happens.
// A payload that cannot be decoded is reported as the codec's error and no
// hook runs. Perform and the hooks see the job through jobctx.
func (q *Queue) InvokeJob(ctx context.Context, job *core.Job) (err error) {
	p, err := q.Payload(job)
	if err != nil {
		return err
	}
	ctx = jobctx.WithJob(ctx, job)

	defer func() {
		if afterErr := hook.Call(ctx, p, core.HookAfter, job); afterErr != nil && err == nil {
			err = &core.InvocationError{Err: afterErr}
		}
	}()

	if runErr := run(ctx, p, job); runErr != nil {
		if hookErr := hook.Call(ctx, p, core.HookError, job, runErr); hookErr != nil {
			return &core.InvocationError{Err: hookErr}
		}
		return &core.InvocationError{Err: runErr}
	}
	return nil
}

func run(ctx context.Context, p core.Payload, job *core.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.PanicError{Value: r}
		}
	}()

	if err := hook.Call(ctx, p, core.HookBefore, job); err != nil {
		return err
	}
	if tc, ok := p.(core.TransientClearer); ok {
		tc.ClearTransient()
	}
	if setter, ok := p.(core.JobIDSetter); ok {
		setter.SetJobID(job.ID)
	}
	if err := p.Perform(ctx); err != nil {
		return err
	}
	return hook.Call(ctx, p, core.HookSuccess, job)
}
