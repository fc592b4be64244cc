// Package store manages pipeline persistence backed by SQLite: deals, stage
// transition history, approvals, tasks, notifications, activities, and the
// background job queue. All writes that must be atomic (the transition
// commit) run inside a single transaction here.
package store
