// Package hook provides reflection-based dispatch of payload lifecycle hooks.
//
// This is an internal package used by the queue's execution path.
// Hooks are optional methods found by name; their declared parameters select
// between a zero-argument form and a form that receives the job.
package hook
