package deal

import (
	"strings"
	"time"
)

// Deal is a pipeline opportunity progressing through lifecycle stages. The
// stage, stage-entry timestamp, and version are mutated only by the workflow
// engine; Version backs the optimistic concurrency check on transitions.
type Deal struct {
	ID             int64
	Title          string
	Owner          string
	Stage          Stage
	StageEnteredAt time.Time
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StageTransitionRecord is the append-only history entry written exactly once
// per committed transition. Records are never updated or deleted.
type StageTransitionRecord struct {
	ID             int64
	DealID         int64
	FromStage      Stage
	ToStage        Stage
	Actor          string
	Reason         string
	DurationInPrev time.Duration
	CreatedAt      time.Time
}

// ApprovalStatus is the lifecycle of a human approval decision.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// GateDecision summarizes the approval state the gate reports for a
// (deal, gate-stage) pair.
type GateDecision struct {
	HasPending  bool
	HasApproved bool
}

// Satisfied reports whether the gate permits entry into the gated stage.
func (d GateDecision) Satisfied() bool {
	return d.HasPending || d.HasApproved
}

// TaskStatus is the lifecycle of an auto-generated or manual task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// OpenTaskStatuses returns the statuses the overdue sweep considers open.
func OpenTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskInProgress}
}

// ParseTaskStatus converts a string into a known TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return normalized, true
	}
	return "", false
}

// Priority is the coarse urgency assigned to a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Task is a concrete work item attached to a deal. Stage-entry jobs create
// tasks from templates; assignment and completion happen elsewhere.
type Task struct {
	ID                int64
	DealID            int64
	Stage             Stage
	TemplateKey       string
	Title             string
	Description       string
	Priority          Priority
	DueDate           *time.Time
	Status            TaskStatus
	Assignee          string
	IsAIGenerated     bool
	IsAutoCompletable bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TaskTemplate is a declarative rule describing a task to auto-create when a
// deal enters a stage. DaysUntilDue of zero means the task carries no due
// date. Key identifies the template within its stage and anchors the
// idempotence guarantee for stage-entry task creation.
type TaskTemplate struct {
	Stage             Stage
	Order             int
	Key               string
	Title             string
	Description       string
	DefaultPriority   Priority
	DaysUntilDue      int
	IsAutoCompletable bool
}

// Notification is an in-app alert with a natural uniqueness key of
// (user, entity type, entity id); upserting an existing key is a no-op.
type Notification struct {
	ID         int64
	UserID     string
	EntityType string
	EntityID   int64
	Type       string
	Title      string
	Message    string
	CreatedAt  time.Time
}

// Activity is an immutable audit entry describing a state change or side
// effect on a deal.
type Activity struct {
	ID          int64
	DealID      int64
	Actor       string
	Action      string
	Description string
	Metadata    map[string]string
	IsAIAction  bool
	CreatedAt   time.Time
}
