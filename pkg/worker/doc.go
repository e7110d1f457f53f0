// Package worker runs delayed jobs.
//
// A Worker polls its queue, locks one job at a time and applies the retry
// policy to the outcome: successful jobs are deleted, failed ones are
// rescheduled attempts^4 + 5 seconds later until they run out of attempts,
// and jobs whose payload cannot be decoded fail at once. Workers may also
// enqueue recurring payloads (WithSchedule).
//
// Most users should import the root package github.com/jdziat/delayed
// which re-exports NewWorker and the worker options.
package worker
