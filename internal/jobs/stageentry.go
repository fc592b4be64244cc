package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"dealpipe/internal/deal"
	"dealpipe/internal/logging"
	"dealpipe/internal/store"
	"dealpipe/internal/templates"
	"dealpipe/internal/workflow"
)

// ActionTasksCreated is the activity action recorded when stage entry creates
// tasks from templates.
const ActionTasksCreated = "tasks.created"

// systemActor attributes automated writes in the activity feed.
const systemActor = "system"

// StageEntry handles stage_entry jobs: when a deal enters a stage, it creates
// the stage's templated tasks and records one summary activity. Reruns are
// safe; task creation is keyed on (deal, stage, template) and skips rows that
// already exist.
type StageEntry struct {
	store   *store.Store
	catalog *templates.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewStageEntry builds the stage_entry handler.
func NewStageEntry(st *store.Store, catalog *templates.Catalog, logger *slog.Logger) *StageEntry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StageEntry{
		store:   st,
		catalog: catalog,
		logger:  logger.With(logging.String(logging.FieldComponent, "stage-entry")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one stage_entry delivery.
func (h *StageEntry) Run(ctx context.Context, job *store.Job) error {
	var payload workflow.StageEntryPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return deal.Wrap(deal.ErrNotFound, "stage-entry", "decode", "malformed payload", err)
	}
	stage, ok := deal.ParseStage(string(payload.Stage))
	if !ok {
		return deal.Wrap(deal.ErrNotFound, "stage-entry", "decode", fmt.Sprintf("unknown stage %q in payload", payload.Stage), nil)
	}

	logger := h.logger.With(
		logging.Int64(logging.FieldDealID, payload.DealID),
		logging.String(logging.FieldStage, string(stage)),
	)

	d, err := h.store.GetDeal(ctx, payload.DealID)
	if err != nil {
		return deal.Wrap(deal.ErrTransient, "stage-entry", "load deal", "", err)
	}
	if d == nil {
		// Deal deleted between enqueue and delivery. Nothing to do.
		logger.Warn("deal no longer exists; skipping stage entry",
			logging.String(logging.FieldEventType, "stage_entry_skipped"),
		)
		return nil
	}

	stageTemplates := h.catalog.ForStage(stage)
	if len(stageTemplates) == 0 {
		logger.Info("no templates for stage",
			logging.String(logging.FieldEventType, "stage_entry_empty"),
		)
		return nil
	}

	now := h.now()
	created := 0
	for _, tmpl := range stageTemplates {
		var due *time.Time
		if tmpl.DaysUntilDue > 0 {
			d := now.AddDate(0, 0, tmpl.DaysUntilDue)
			due = &d
		}
		inserted, err := h.store.CreateTaskFromTemplate(ctx, payload.DealID, tmpl, due)
		if err != nil {
			return deal.Wrap(deal.ErrTransient, "stage-entry", "create task", tmpl.Key, err)
		}
		if inserted {
			created++
		}
	}

	if created > 0 {
		activity := deal.Activity{
			DealID:      payload.DealID,
			Actor:       systemActor,
			Action:      ActionTasksCreated,
			Description: fmt.Sprintf("Created %d tasks on entering %s", created, stage),
			Metadata: map[string]string{
				"stage": string(stage),
				"count": strconv.Itoa(created),
			},
			IsAIAction: true,
		}
		if err := h.store.AppendActivity(ctx, activity); err != nil {
			return deal.Wrap(deal.ErrTransient, "stage-entry", "record activity", "", err)
		}
	}

	logger.Info("stage entry processed",
		logging.Int("templates", len(stageTemplates)),
		logging.Int("created", created),
		logging.String(logging.FieldEventType, "stage_entry_completed"),
	)
	return nil
}
