// Package queue coordinates delayed jobs over a core.Storage.
//
// This package includes:
//   - Queue: owns the payload registry and the store
//   - Enqueue: writes a job, skipping it when its unique key is taken
//   - Reserve: claims one job for a worker with a conditional update
//   - InvokeJob: runs a reserved job's payload and its lifecycle hooks
//   - Event subscription for monitoring
//
// Most users should import the root package github.com/jdziat/delayed
// which re-exports Queue and all option functions.
package queue
