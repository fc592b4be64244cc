package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Deal describes a pipeline deal in a transport-friendly format.
type Deal struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Owner     string `json:"owner"`
	Stage     string `json:"stage"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Transition describes one stage history record.
type Transition struct {
	ID             int64  `json:"id"`
	DealID         int64  `json:"dealId"`
	FromStage      string `json:"fromStage"`
	ToStage        string `json:"toStage"`
	Actor          string `json:"actor"`
	Reason         string `json:"reason,omitempty"`
	DurationInPrev int64  `json:"durationInPrevMs"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// Task describes a work item attached to a deal.
type Task struct {
	ID            int64  `json:"id"`
	DealID        int64  `json:"dealId"`
	Stage         string `json:"stage"`
	TemplateKey   string `json:"templateKey,omitempty"`
	Title         string `json:"title"`
	Priority      string `json:"priority"`
	Status        string `json:"status"`
	Assignee      string `json:"assignee,omitempty"`
	DueDate       string `json:"dueDate,omitempty"`
	IsAIGenerated bool   `json:"isAiGenerated"`
}

// Job describes a background job row.
type Job struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	RunAt     string `json:"runAt,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// Activity describes one audit feed entry.
type Activity struct {
	ID          int64             `json:"id"`
	DealID      int64             `json:"dealId"`
	Actor       string            `json:"actor"`
	Action      string            `json:"action"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IsAIAction  bool              `json:"isAiAction"`
	CreatedAt   string            `json:"createdAt,omitempty"`
}

// CreateDealRequest is the intake payload for a new deal.
type CreateDealRequest struct {
	Title string `json:"title"`
	Owner string `json:"owner"`
}

// TransitionRequest asks to move a deal to a target stage.
type TransitionRequest struct {
	Target string `json:"target"`
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// ApprovalRequest records a human decision for a gated stage.
type ApprovalRequest struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
}

// DealListResponse wraps a collection of deals.
type DealListResponse struct {
	Deals []Deal `json:"deals"`
}

// DealDetailResponse combines a deal with its recent history and open work.
type DealDetailResponse struct {
	Deal             Deal         `json:"deal"`
	NextStages       []string     `json:"nextStages"`
	Transitions      []Transition `json:"transitions"`
	TotalTransitions int          `json:"totalTransitions"`
	Tasks            []Task       `json:"tasks"`
}

// TransitionResponse reports the outcome of a committed transition.
type TransitionResponse struct {
	Deal       Deal       `json:"deal"`
	Transition Transition `json:"transition"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobStatsResponse provides job counts keyed by status.
type JobStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	JobCounts    map[string]int `json:"jobCounts"`
}

// ErrorResponse carries a classified failure to API consumers.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
