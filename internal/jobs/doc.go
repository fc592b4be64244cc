// Package jobs runs the background job queue: a poll loop that claims
// persisted jobs from the store, dispatches them to registered handlers, and
// applies the retry policy. Handlers must be idempotent because delivery is
// at least once.
package jobs
