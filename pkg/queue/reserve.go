package queue

import (
	"context"
	"time"

	"github.com/jdziat/delayed/pkg/core"
)

// ReadAhead is how many candidates Reserve fetches per attempt. Trying the
// next candidate when the first is taken spreads a worker pool across the
// top of the queue instead of having every worker fight over one row.
const ReadAhead = 5

// WorkerInfo identifies the worker reserving a job.
type WorkerInfo struct {
	Name        string
	Host        string
	MinPriority *int
	MaxPriority *int
}

// Reserve locks and returns the best job the worker may run, or (nil, nil)
// when every candidate is taken or none is due.
//
// Jobs locked by another worker become eligible once their lock is older
// than maxRunTime, which is how work held by a crashed worker is recovered.
func (q *Queue) Reserve(ctx context.Context, w WorkerInfo, maxRunTime time.Duration) (*core.Job, error) {
	now, err := q.storage.Now(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := q.storage.FindAvailable(ctx, core.AvailableQuery{
		WorkerName:  w.Name,
		Host:        w.Host,
		Now:         now,
		MaxRunTime:  maxRunTime,
		Limit:       ReadAhead,
		MinPriority: w.MinPriority,
		MaxPriority: w.MaxPriority,
	})
	if err != nil {
		return nil, err
	}

	for _, job := range candidates {
		ok, err := q.storage.LockExclusively(ctx, job, w.Name, now, maxRunTime)
		if err != nil {
			return nil, err
		}
		if ok {
			return job, nil
		}
	}
	return nil, nil
}
