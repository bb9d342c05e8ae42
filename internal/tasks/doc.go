// Package tasks implements the background task subsystem: a dispatcher
// that routes work into priority lanes, a monitor for status queries and
// cancellation, a worker pool draining the lanes, and the task handlers.
// The queue backend owns all task state; the dispatcher keeps only a thin
// tracking map so active tasks can be listed and pruned.
package tasks
