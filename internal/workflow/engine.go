package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dealpipe/internal/deal"
	"dealpipe/internal/logging"
	"dealpipe/internal/notify"
	"dealpipe/internal/store"
)

// ActionStageChanged is the activity action written for every committed
// transition.
const ActionStageChanged = "stage.changed"

// StageEntryJobName names the background job enqueued after a committed
// transition.
const StageEntryJobName = "stage_entry"

// StageEntryPayload is the job payload for stage-entry task generation.
type StageEntryPayload struct {
	DealID int64      `json:"deal_id"`
	Stage  deal.Stage `json:"stage"`
}

// ApprovalGate answers whether a (deal, gate-stage) pair has a pending or
// approved decision. Approval records are owned by the approvals subsystem;
// the engine only reads.
type ApprovalGate interface {
	Status(ctx context.Context, dealID int64, approvalType deal.Stage) (deal.GateDecision, error)
}

// Enqueuer is the at-least-once job channel the engine hands side effects to.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, name string, payload any) (int64, error)
}

// Engine validates and executes stage transitions for one pipeline
// configuration. Transitions across distinct deals are independent; within a
// deal, the store's version check serializes concurrent commits.
type Engine struct {
	graph    *deal.StageGraph
	store    *store.Store
	gate     ApprovalGate
	enqueuer Enqueuer
	notifier notify.Service
	logger   *slog.Logger
}

// NewEngine constructs a workflow engine bound to a stage graph. A nil gate
// falls back to the store's approval records; a nil notifier disables stage
// change pushes.
func NewEngine(graph *deal.StageGraph, st *store.Store, gate ApprovalGate, enqueuer Enqueuer, logger *slog.Logger) *Engine {
	if gate == nil {
		gate = storeGate{st}
	}
	return &Engine{
		graph:    graph,
		store:    st,
		gate:     gate,
		enqueuer: enqueuer,
		logger:   logging.NewComponentLogger(logger, "workflow"),
	}
}

// SetNotifier installs a push notification sink for committed transitions.
func (e *Engine) SetNotifier(n notify.Service) {
	e.notifier = n
}

// Graph returns the stage graph the engine enforces.
func (e *Engine) Graph() *deal.StageGraph {
	return e.graph
}

// CanTransition reports whether the deal may move to the target stage. A
// false result carries a human-readable reason; the error return is reserved
// for infrastructure failures while consulting the gate.
func (e *Engine) CanTransition(ctx context.Context, d *deal.Deal, target deal.Stage) (bool, string, error) {
	if !e.graph.Allows(d.Stage, target) {
		return false, fmt.Sprintf("no transition from %s to %s", d.Stage, target), nil
	}
	if e.graph.IsGated(target) {
		decision, err := e.gate.Status(ctx, d.ID, target)
		if err != nil {
			return false, "", fmt.Errorf("consult approval gate: %w", err)
		}
		if !decision.Satisfied() {
			return false, fmt.Sprintf("stage %s requires an approval decision", target), nil
		}
	}
	return true, "", nil
}

// TransitionResult is the success payload of a committed transition.
type TransitionResult struct {
	Deal   *deal.Deal
	Record *deal.StageTransitionRecord
}

// Transition validates and commits a stage change. On success the deal's
// stage, exactly one history record, and one audit activity are written
// atomically, and a stage-entry job is enqueued fire-and-forget. Validation
// failures and stale reads leave the deal untouched and surface a classified
// error.
func (e *Engine) Transition(ctx context.Context, dealID int64, target deal.Stage, actor, reason string) (*TransitionResult, error) {
	requestID := uuid.NewString()
	ctx = logging.WithCorrelationID(logging.WithDealID(ctx, dealID), requestID)
	logger := logging.WithContext(ctx, e.logger)

	d, err := e.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("load deal: %w", err)
	}
	if d == nil {
		return nil, deal.Wrap(deal.ErrNotFound, "workflow", "transition",
			fmt.Sprintf("deal %d does not exist", dealID), nil)
	}

	allowed, why, err := e.CanTransition(ctx, d, target)
	if err != nil {
		return nil, err
	}
	if !allowed {
		marker := deal.ErrInvalidEdge
		if e.graph.Allows(d.Stage, target) {
			marker = deal.ErrApprovalRequired
		}
		return nil, deal.Wrap(marker, "workflow", "transition", why, nil)
	}

	from := d.Stage
	activity := deal.Activity{
		DealID:      d.ID,
		Actor:       actor,
		Action:      ActionStageChanged,
		Description: fmt.Sprintf("Stage changed from %s to %s", from, target),
		Metadata: map[string]string{
			"from_stage": string(from),
			"to_stage":   string(target),
			"reason":     reason,
		},
	}

	record, err := e.store.CommitTransition(ctx, store.CommitTransitionParams{
		Deal:     d,
		Target:   target,
		Actor:    actor,
		Reason:   reason,
		Activity: activity,
		Now:      time.Now(),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("stage transition committed",
		logging.String("from_stage", string(from)),
		logging.String("to_stage", string(target)),
		logging.String("actor", actor),
		logging.Duration("time_in_previous_stage", record.DurationInPrev),
		logging.String(logging.FieldEventType, "transition_committed"),
	)

	if e.notifier != nil {
		if err := e.notifier.NotifyStageChanged(ctx, d.Title, from, target); err != nil {
			logger.Warn("stage change notification failed", logging.Error(err))
		}
	}

	// The committed stage change is authoritative; task generation is
	// best-effort and must not roll it back.
	if e.enqueuer != nil {
		payload := StageEntryPayload{DealID: d.ID, Stage: target}
		if _, err := e.enqueuer.EnqueueJob(ctx, StageEntryJobName, payload); err != nil {
			logger.Warn("stage entry job enqueue failed; tasks will not be generated",
				logging.Error(err),
				logging.String("to_stage", string(target)),
				logging.String(logging.FieldEventType, "stage_entry_enqueue_failed"),
			)
		}
	}

	return &TransitionResult{Deal: d, Record: record}, nil
}

type storeGate struct {
	store *store.Store
}

func (g storeGate) Status(ctx context.Context, dealID int64, approvalType deal.Stage) (deal.GateDecision, error) {
	return g.store.GateDecision(ctx, dealID, approvalType)
}
