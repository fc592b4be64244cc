package api

import (
	"time"

	"dealpipe/internal/deal"
	"dealpipe/internal/store"
)

// FromDeal converts a domain deal into its API shape.
func FromDeal(d *deal.Deal) Deal {
	if d == nil {
		return Deal{}
	}
	return Deal{
		ID:        d.ID,
		Title:     d.Title,
		Owner:     d.Owner,
		Stage:     string(d.Stage),
		Version:   d.Version,
		CreatedAt: formatTimestamp(d.CreatedAt),
		UpdatedAt: formatTimestamp(d.UpdatedAt),
	}
}

// FromDeals converts a slice of domain deals.
func FromDeals(deals []*deal.Deal) []Deal {
	if len(deals) == 0 {
		return nil
	}
	out := make([]Deal, 0, len(deals))
	for _, d := range deals {
		out = append(out, FromDeal(d))
	}
	return out
}

// FromTransition converts a history record into its API shape.
func FromTransition(r *deal.StageTransitionRecord) Transition {
	if r == nil {
		return Transition{}
	}
	return Transition{
		ID:             r.ID,
		DealID:         r.DealID,
		FromStage:      string(r.FromStage),
		ToStage:        string(r.ToStage),
		Actor:          r.Actor,
		Reason:         r.Reason,
		DurationInPrev: r.DurationInPrev.Milliseconds(),
		CreatedAt:      formatTimestamp(r.CreatedAt),
	}
}

// FromTransitions converts a slice of history records.
func FromTransitions(records []*deal.StageTransitionRecord) []Transition {
	if len(records) == 0 {
		return nil
	}
	out := make([]Transition, 0, len(records))
	for _, r := range records {
		out = append(out, FromTransition(r))
	}
	return out
}

// FromTask converts a domain task into its API shape.
func FromTask(t *deal.Task) Task {
	if t == nil {
		return Task{}
	}
	due := ""
	if t.DueDate != nil {
		due = formatTimestamp(*t.DueDate)
	}
	return Task{
		ID:            t.ID,
		DealID:        t.DealID,
		Stage:         string(t.Stage),
		TemplateKey:   t.TemplateKey,
		Title:         t.Title,
		Priority:      string(t.Priority),
		Status:        string(t.Status),
		Assignee:      t.Assignee,
		DueDate:       due,
		IsAIGenerated: t.IsAIGenerated,
	}
}

// FromTasks converts a slice of domain tasks.
func FromTasks(tasks []*deal.Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FromTask(t))
	}
	return out
}

// FromJob converts a job row into its API shape.
func FromJob(j *store.Job) Job {
	if j == nil {
		return Job{}
	}
	return Job{
		ID:        j.ID,
		Name:      j.Name,
		Status:    string(j.Status),
		Attempts:  j.Attempts,
		RunAt:     formatTimestamp(j.RunAt),
		LastError: j.LastError,
	}
}

// FromJobs converts a slice of job rows.
func FromJobs(jobs []*store.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, FromJob(j))
	}
	return out
}

// FromActivity converts an audit entry into its API shape.
func FromActivity(a *deal.Activity) Activity {
	if a == nil {
		return Activity{}
	}
	return Activity{
		ID:          a.ID,
		DealID:      a.DealID,
		Actor:       a.Actor,
		Action:      a.Action,
		Description: a.Description,
		Metadata:    a.Metadata,
		IsAIAction:  a.IsAIAction,
		CreatedAt:   formatTimestamp(a.CreatedAt),
	}
}

// FromActivities converts a slice of audit entries.
func FromActivities(activities []*deal.Activity) []Activity {
	if len(activities) == 0 {
		return nil
	}
	out := make([]Activity, 0, len(activities))
	for _, a := range activities {
		out = append(out, FromActivity(a))
	}
	return out
}

// MergeJobStats normalizes job counts so every status is present.
func MergeJobStats(stats map[store.JobStatus]int) map[string]int {
	merged := map[string]int{
		string(store.JobPending): 0,
		string(store.JobRunning): 0,
		string(store.JobDone):    0,
		string(store.JobFailed):  0,
	}
	for status, count := range stats {
		merged[string(status)] = count
	}
	return merged
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}
