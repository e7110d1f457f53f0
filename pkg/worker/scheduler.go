package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jdziat/delayed/pkg/queue"
)

// scheduler tracks the next tick of each scheduled job.
type scheduler struct {
	jobs []ScheduledJob
	next []time.Time
}

func newScheduler(jobs []ScheduledJob) *scheduler {
	return &scheduler{jobs: jobs, next: make([]time.Time, len(jobs))}
}

// ScheduleKey is the unique key of the job enqueued for one tick.
func ScheduleKey(name string, tick time.Time) string {
	return fmt.Sprintf("schedule:%s:%d", name, tick.Unix())
}

// enqueueScheduled enqueues every scheduled job whose tick has come, using
// the store's clock. Missed ticks are not replayed: after a long pause each
// schedule fires once and moves on to its next future tick.
func (w *Worker) enqueueScheduled(ctx context.Context) error {
	if w.scheduler == nil {
		return nil
	}
	now, err := w.queue.Storage().Now(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for i, sj := range w.scheduler.jobs {
		next := w.scheduler.next[i]
		if next.IsZero() {
			// A tick that passed before the worker started may already have
			// run and been deleted, so only future ticks count.
			next = sj.Schedule.Next(now)
		}
		if next.After(now) {
			w.scheduler.next[i] = next
			continue
		}

		job, err := w.queue.Enqueue(ctx, sj.Payload(),
			queue.UniqueKey(ScheduleKey(sj.Name, next)),
			queue.At(next),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", sj.Name, err))
			continue
		}
		if job != nil {
			w.logger.Info().Str("schedule", sj.Name).Time("tick", next).Str("job_id", job.ID).Msg("enqueued scheduled job")
		}
		w.scheduler.next[i] = sj.Schedule.Next(now)
	}
	return errors.Join(errs...)
}
