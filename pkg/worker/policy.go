package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/internal/hook"
	"github.com/jdziat/delayed/pkg/security"
)

// maxBackoffAttempts keeps attempts^4 seconds inside time.Duration; 300^4
// seconds is about 257 years.
const maxBackoffAttempts = 300

// Backoff is the default delay before the next attempt of a job that has
// already failed attempts times: attempts^4 + 5 seconds. Counts above
// maxBackoffAttempts back off as if they were maxBackoffAttempts.
func Backoff(attempts int) time.Duration {
	a := time.Duration(min(max(attempts, 0), maxBackoffAttempts))
	return (a*a*a*a + 5) * time.Second
}

// NextRunAt returns when a job that has failed attempts times should run
// again. Payloads implementing core.Rescheduler choose for themselves.
func NextRunAt(p core.Payload, now time.Time, attempts int) time.Time {
	if r, ok := p.(core.Rescheduler); ok {
		return r.RescheduleAt(now, attempts)
	}
	return now.Add(Backoff(attempts))
}

// maxAttempts returns the attempt limit for p; 0 means unlimited.
func (w *Worker) maxAttempts(p core.Payload) int {
	if m, ok := p.(core.MaxAttempter); ok {
		if n := m.MaxAttempts(); n > 0 {
			return n
		}
	}
	return w.config.MaxAttempts
}

// reschedule records a failed invocation. The job either gets a new run_at
// or, once it has used up its attempts, fails permanently.
func (w *Worker) reschedule(ctx context.Context, job *core.Job, p core.Payload, cause error) error {
	now, err := w.storageNow(ctx)
	if err != nil {
		return err
	}

	setLastError(job, cause)
	next := NextRunAt(p, now, job.Attempts)
	job.Attempts++

	if limit := w.maxAttempts(p); limit > 0 && job.Attempts >= limit {
		return w.failPermanently(ctx, job, p, now, cause)
	}

	job.RunAt = next
	job.Unlock()
	if err := w.save(ctx, job); err != nil {
		return err
	}

	w.logger.Warn().
		Str("job", w.queue.JobName(job)).
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Time("next_run_at", next).
		Err(cause).
		Msg("job failed, rescheduled")
	w.queue.Emit(&core.JobRetrying{Job: job, Attempt: job.Attempts, Error: cause, NextRunAt: next, Timestamp: time.Now()})
	return nil
}

// failPermanently moves a job to its terminal state. p is nil when the
// payload could not be decoded, in which case no hook runs.
func (w *Worker) failPermanently(ctx context.Context, job *core.Job, p core.Payload, now time.Time, cause error) error {
	if p != nil {
		if err := hook.Call(ctx, p, core.HookPermanentFailure, job); err != nil {
			w.logger.Error().Str("job_id", job.ID).Err(err).Msg("permanent failure hook failed")
		}
	}

	w.logger.Error().
		Str("job", w.queue.JobName(job)).
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Err(cause).
		Msg("REMOVED permanently")
	w.queue.Emit(&core.JobFailed{Job: job, Error: cause, Timestamp: time.Now()})

	if w.config.DestroyFailedJobs {
		return w.delete(ctx, job)
	}

	setLastError(job, cause)
	job.FailedAt = &now
	job.Unlock()
	return w.save(ctx, job)
}

// failUndecodable fails a job whose handler cannot be turned back into a
// payload. Retrying would not help, so attempts are left alone.
func (w *Worker) failUndecodable(ctx context.Context, job *core.Job, cause error) error {
	now, err := w.storageNow(ctx)
	if err != nil {
		return err
	}
	return w.failPermanently(ctx, job, nil, now, cause)
}

func setLastError(job *core.Job, cause error) {
	msg := security.SanitizeErrorMessage(cause.Error())
	job.LastError = &msg
}

// save and delete treat a lost lock as a warning: another worker took the
// job over after MaxRunTime and now owns its outcome.
func (w *Worker) save(ctx context.Context, job *core.Job) error {
	return w.owned(job, w.withRetry(ctx, *w.config.StorageRetry, "save", func() error {
		return w.queue.Storage().Save(ctx, job, w.config.Name)
	}))
}

func (w *Worker) delete(ctx context.Context, job *core.Job) error {
	return w.owned(job, w.withRetry(ctx, *w.config.StorageRetry, "delete", func() error {
		return w.queue.Storage().Delete(ctx, job, w.config.Name)
	}))
}

func (w *Worker) owned(job *core.Job, err error) error {
	if errors.Is(err, core.ErrJobNotOwned) {
		w.logger.Warn().Str("job_id", job.ID).Msg("lock lost before the job finished, leaving it to its new owner")
		return nil
	}
	return err
}

func (w *Worker) storageNow(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := w.withRetry(ctx, *w.config.StorageRetry, "now", func() error {
		var nowErr error
		now, nowErr = w.queue.Storage().Now(ctx)
		return nowErr
	})
	return now, err
}
