// Package deal defines the domain model for the deal pipeline: lifecycle
// stages, the stage transition graph, tasks, approvals, notifications, and
// audit activities, along with the error taxonomy shared by the workflow
// engine and background jobs.
package deal
