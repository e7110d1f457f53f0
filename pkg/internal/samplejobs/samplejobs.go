// Package samplejobs holds the payloads the test suites enqueue and run.
package samplejobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdziat/delayed/pkg/codec"
	"github.com/jdziat/delayed/pkg/core"
)

// ErrDidNotWork is what ErrorJob fails with.
var ErrDidNotWork = errors.New("did not work")

// Counters is shared by reference between a test and the payloads it runs.
type Counters struct {
	SimpleRuns         atomic.Int64
	ErrorRuns          atomic.Int64
	ModuleRuns         atomic.Int64
	PermanentFailures  atomic.Int64
	LongRunningStarted atomic.Int64

	mu    sync.Mutex
	calls []string
}

// Record appends a hook or perform call to the ordered call log.
func (c *Counters) Record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

// Calls returns a copy of the ordered call log.
func (c *Counters) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Register adds every sample payload to reg, wired to c.
func Register(reg *codec.Registry, c *Counters) error {
	factories := map[string]codec.Factory{
		"SimpleJob":             func() core.Payload { return &SimpleJob{counters: c} },
		"ErrorJob":              func() core.Payload { return &ErrorJob{counters: c} },
		"LongRunningJob":        func() core.Payload { return &LongRunningJob{counters: c} },
		"OnPermanentFailureJob": func() core.Payload { return &OnPermanentFailureJob{SimpleJob: SimpleJob{counters: c}} },
		"M.ModuleJob":           func() core.Payload { return &ModuleJob{counters: c} },
		"HookJob":               func() core.Payload { return &HookJob{counters: c} },
		"JobFormHookJob":        func() core.Payload { return &JobFormHookJob{counters: c} },
		"CustomRetryJob":        func() core.Payload { return &CustomRetryJob{counters: c} },
	}
	for name, f := range factories {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

// SimpleJob counts its runs.
type SimpleJob struct {
	Key  string `yaml:"key,omitempty"`
	Note string `yaml:"note,omitempty"`

	counters *Counters
}

func (j *SimpleJob) Perform(_ context.Context) error {
	j.counters.SimpleRuns.Add(1)
	return nil
}

func (j *SimpleJob) UniqueKey() string { return j.Key }

// ErrorJob always fails.
type ErrorJob struct {
	Key string `yaml:"key,omitempty"`

	counters *Counters
}

func (j *ErrorJob) Perform(_ context.Context) error {
	j.counters.ErrorRuns.Add(1)
	return ErrDidNotWork
}

func (j *ErrorJob) UniqueKey() string { return j.Key }

// LongRunningJob blocks until its context ends or Duration elapses.
type LongRunningJob struct {
	Duration time.Duration `yaml:"duration"`

	counters *Counters
}

func (j *LongRunningJob) Perform(ctx context.Context) error {
	j.counters.LongRunningStarted.Add(1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(j.Duration):
		return nil
	}
}

// OnPermanentFailureJob gives up after one attempt.
type OnPermanentFailureJob struct {
	SimpleJob `yaml:",inline"`
	Fail      bool `yaml:"fail"`
}

func (j *OnPermanentFailureJob) Perform(ctx context.Context) error {
	if j.Fail {
		return ErrDidNotWork
	}
	return j.SimpleJob.Perform(ctx)
}

func (j *OnPermanentFailureJob) MaxAttempts() int { return 1 }

func (j *OnPermanentFailureJob) OnPermanentFailure() {
	j.counters.PermanentFailures.Add(1)
}

// ModuleJob is registered under a dotted name.
type ModuleJob struct {
	counters *Counters
}

func (j *ModuleJob) Perform(_ context.Context) error {
	j.counters.ModuleRuns.Add(1)
	return nil
}

// HookJob uses the zero-argument hook form and records every call.
type HookJob struct {
	Fail bool `yaml:"fail"`

	counters *Counters
	jobID    string
	cleared  bool
}

func (j *HookJob) Perform(_ context.Context) error {
	j.counters.Record("perform:" + j.jobID)
	if j.Fail {
		return ErrDidNotWork
	}
	return nil
}

func (j *HookJob) OnEnqueue() { j.counters.Record("enqueue") }

func (j *HookJob) BeforePerform() { j.counters.Record("before") }

func (j *HookJob) OnSuccess() { j.counters.Record("success") }

func (j *HookJob) OnError() { j.counters.Record("error") }

func (j *HookJob) AfterPerform() { j.counters.Record("after") }

func (j *HookJob) ClearTransient() {
	j.cleared = true
	j.counters.Record("clear")
}

func (j *HookJob) SetJobID(id string) { j.jobID = id }

// Cleared reports whether ClearTransient ran on this instance.
func (j *HookJob) Cleared() bool { return j.cleared }

// JobFormHookJob uses the hook form that receives the job and extra arguments.
type JobFormHookJob struct {
	Fail bool `yaml:"fail"`

	counters *Counters
}

func (j *JobFormHookJob) Perform(_ context.Context) error {
	if j.Fail {
		return ErrDidNotWork
	}
	return nil
}

func (j *JobFormHookJob) BeforePerform(_ context.Context, job *core.Job) error {
	j.counters.Record("before:" + job.ID)
	return nil
}

func (j *JobFormHookJob) OnError(job *core.Job, err error) {
	j.counters.Record("error:" + job.ID + ":" + err.Error())
}

func (j *JobFormHookJob) AfterPerform(_ context.Context, job *core.Job) {
	j.counters.Record("after:" + job.ID)
}

// CustomRetryJob fails and asks to be retried an hour later, at most Max times.
type CustomRetryJob struct {
	Max int `yaml:"max"`

	counters *Counters
}

func (j *CustomRetryJob) Perform(_ context.Context) error {
	j.counters.ErrorRuns.Add(1)
	return ErrDidNotWork
}

func (j *CustomRetryJob) RescheduleAt(now time.Time, _ int) time.Time {
	return now.Add(time.Hour)
}

func (j *CustomRetryJob) MaxAttempts() int { return j.Max }

func (j *CustomRetryJob) DisplayName() string { return "custom-retry" }
