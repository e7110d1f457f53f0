package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/delayed/pkg/core"
	"github.com/jdziat/delayed/pkg/jobctx"
	"github.com/jdziat/delayed/pkg/queue"
	"github.com/jdziat/delayed/pkg/security"
)

// BatchSize is how many jobs Start works off between idle checks.
const BatchSize = 100

// Worker reserves and runs jobs one at a time.
type Worker struct {
	queue     *queue.Queue
	config    WorkerConfig
	logger    zerolog.Logger
	scheduler *scheduler
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		SleepDelay: DefaultSleepDelay,
		MaxRunTime: DefaultMaxRunTime,
	}
	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	hostname, _ := os.Hostname()
	if config.Host == "" {
		config.Host = hostname
	}
	if config.Name == "" {
		config.Name = security.TruncateWorkerName(fmt.Sprintf("host:%s pid:%d", hostname, os.Getpid()))
	}
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.ReserveRetry == nil {
		reserveCfg := reserveRetryConfig()
		config.ReserveRetry = &reserveCfg
	}

	logger := q.Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	w := &Worker{
		queue:  q,
		config: config,
		logger: logger.With().Str("worker", config.Name).Logger(),
	}
	if len(config.Schedules) > 0 {
		w.scheduler = newScheduler(config.Schedules)
	}
	return w
}

// Name returns the name the worker locks jobs under.
func (w *Worker) Name() string { return w.config.Name }

// Config returns the worker's effective configuration.
func (w *Worker) Config() WorkerConfig { return w.config }

// Start works off jobs until ctx is cancelled, sleeping SleepDelay whenever
// the queue has nothing due. On the way out it releases any lock it still
// holds. An error that is neither a payload failure nor a decode failure
// stops the worker and is returned.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Str("host", w.config.Host).Msg("Starting job worker")
	defer w.clearLocks()

	for {
		if err := w.enqueueScheduled(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("failed to enqueue scheduled jobs")
		}

		started := time.Now()
		success, failure, err := w.WorkOff(ctx, BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("worker stopped")
			return err
		}

		if count := success + failure; count > 0 {
			elapsed := time.Since(started).Seconds()
			w.logger.Info().
				Int("processed", count).
				Int("failed", failure).
				Float64("jobs_per_second", float64(count)/elapsed).
				Msg("batch complete")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.config.SleepDelay):
		}
	}
}

// WorkOff runs up to n jobs and returns how many succeeded and failed. It
// stops early when nothing is due or ctx is cancelled.
func (w *Worker) WorkOff(ctx context.Context, n int) (success, failure int, err error) {
	for range n {
		if ctx.Err() != nil {
			return success, failure, nil
		}

		job, err := w.reserve(ctx)
		if err != nil {
			return success, failure, err
		}
		if job == nil {
			return success, failure, nil
		}

		ok, err := w.RunJob(ctx, job)
		if err != nil {
			return success, failure, err
		}
		if ok {
			success++
		} else {
			failure++
		}
	}
	return success, failure, nil
}

func (w *Worker) reserve(ctx context.Context) (*core.Job, error) {
	var job *core.Job
	err := w.withRetry(ctx, *w.config.ReserveRetry, "reserve", func() error {
		var reserveErr error
		job, reserveErr = w.queue.Reserve(ctx, queue.WorkerInfo{
			Name:        w.config.Name,
			Host:        w.config.Host,
			MinPriority: w.config.MinPriority,
			MaxPriority: w.config.MaxPriority,
		}, w.config.MaxRunTime)
		return reserveErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("delayed: reserve: %w", err)
	}
	return job, nil
}

// RunJob invokes a job this worker has locked and applies the outcome:
// success deletes the job, a payload failure reschedules or fails it, an
// undecodable handler fails it at once. It reports whether the job
// succeeded; a non-nil error is fatal to the worker.
func (w *Worker) RunJob(ctx context.Context, job *core.Job) (bool, error) {
	name := w.queue.JobName(job)
	started := time.Now()
	w.logger.Info().Str("job", name).Str("job_id", job.ID).Msg("acquired lock")
	w.queue.Emit(&core.JobStarted{Job: job, WorkerName: w.config.Name, Timestamp: started})

	// MaxRunTime only bounds the lock. The job keeps running past it and
	// stops early only when ctx is cancelled by shutdown.
	runCtx := jobctx.WithWorker(ctx, w.config.Name)
	runCtx = w.logger.With().Str("job", name).Str("job_id", job.ID).Logger().WithContext(runCtx)
	invokeErr := w.queue.InvokeJob(runCtx, job)

	// Bookkeeping must land even when shutdown cancelled the job itself.
	ctx = context.WithoutCancel(ctx)

	var invocation *core.InvocationError
	switch {
	case invokeErr == nil:
		if err := w.delete(ctx, job); err != nil {
			return false, err
		}
		elapsed := time.Since(started)
		w.logger.Info().Str("job", name).Str("job_id", job.ID).Dur("elapsed", elapsed).Msg("completed")
		w.queue.Emit(&core.JobCompleted{Job: job, Duration: elapsed, Timestamp: time.Now()})
		return true, nil

	case core.IsDeserializationError(invokeErr):
		return false, w.failUndecodable(ctx, job, invokeErr)

	case errors.As(invokeErr, &invocation):
		return false, w.reschedule(ctx, job, job.Payload(), invocation.Err)

	default:
		w.logger.Error().Str("job", name).Str("job_id", job.ID).Err(invokeErr).Msg("fatal error running job")
		return false, invokeErr
	}
}

// clearLocks releases this worker's locks so other workers need not wait
// out MaxRunTime.
func (w *Worker) clearLocks() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := w.queue.Storage().ClearLocks(ctx, w.config.Name)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to clear locks")
		return
	}
	w.logger.Info().Int64("released", n).Msg("Exiting job worker")
}
