package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dealpipe/internal/deal"
	"dealpipe/internal/store"
	"dealpipe/internal/workflow"
)

// ActionDealCreated is the activity action recorded at deal intake.
const ActionDealCreated = "deal.created"

// ErrInvalidInput marks request payloads that fail validation before any
// domain logic runs. HTTP handlers map it to a 400.
var ErrInvalidInput = errors.New("invalid input")

// DealService exposes deal operations returning API DTOs.
type DealService struct {
	store  *store.Store
	engine *workflow.Engine
	graph  *deal.StageGraph
}

// NewDealService constructs a DealService around the store and engine.
func NewDealService(st *store.Store, engine *workflow.Engine, graph *deal.StageGraph) *DealService {
	if st == nil || engine == nil {
		return nil
	}
	if graph == nil {
		graph = deal.DefaultStageGraph()
	}
	return &DealService{store: st, engine: engine, graph: graph}
}

// Create performs deal intake: the deal starts at the graph's initial stage,
// an intake activity is recorded, and a stage entry job fans out the initial
// stage's templated tasks.
func (s *DealService) Create(ctx context.Context, req CreateDealRequest) (Deal, error) {
	title := strings.TrimSpace(req.Title)
	owner := strings.TrimSpace(req.Owner)
	if title == "" {
		return Deal{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if owner == "" {
		return Deal{}, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}

	d, err := s.store.CreateDeal(ctx, title, owner, deal.StageQualification)
	if err != nil {
		return Deal{}, err
	}
	if err := s.store.AppendActivity(ctx, deal.Activity{
		DealID:      d.ID,
		Actor:       owner,
		Action:      ActionDealCreated,
		Description: fmt.Sprintf("Deal %q entered the pipeline", title),
		Metadata:    map[string]string{"stage": string(d.Stage)},
	}); err != nil {
		return Deal{}, err
	}
	if _, err := s.store.EnqueueJob(ctx, workflow.StageEntryJobName, workflow.StageEntryPayload{
		DealID: d.ID,
		Stage:  d.Stage,
	}); err != nil {
		return Deal{}, err
	}
	return FromDeal(d), nil
}

// List returns deals, optionally filtered to the given stages.
func (s *DealService) List(ctx context.Context, stages ...deal.Stage) ([]Deal, error) {
	deals, err := s.store.ListDeals(ctx, stages...)
	if err != nil {
		return nil, err
	}
	return FromDeals(deals), nil
}

// Describe fetches a deal with paginated history, open work, and the stages
// it can move to next. Returns (nil, nil) when the deal does not exist.
func (s *DealService) Describe(ctx context.Context, id int64, limit, offset int) (*DealDetailResponse, error) {
	d, err := s.store.GetDeal(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}

	transitions, err := s.store.ListTransitions(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, id)
	if err != nil {
		return nil, err
	}

	next := s.graph.Next(d.Stage)
	nextStages := make([]string, 0, len(next))
	for _, stage := range next {
		nextStages = append(nextStages, string(stage))
	}

	return &DealDetailResponse{
		Deal:             FromDeal(d),
		NextStages:       nextStages,
		Transitions:      FromTransitions(transitions),
		TotalTransitions: total,
		Tasks:            FromTasks(tasks),
	}, nil
}

// Transition moves a deal along a graph edge via the workflow engine.
func (s *DealService) Transition(ctx context.Context, id int64, req TransitionRequest) (*TransitionResponse, error) {
	target, ok := deal.ParseStage(req.Target)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, req.Target)
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidInput)
	}

	result, err := s.engine.Transition(ctx, id, target, actor, strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, err
	}
	return &TransitionResponse{
		Deal:       FromDeal(result.Deal),
		Transition: FromTransition(result.Record),
	}, nil
}

// Approve records a human decision for a gated stage of a deal.
func (s *DealService) Approve(ctx context.Context, id int64, req ApprovalRequest) error {
	stage, ok := deal.ParseStage(req.Stage)
	if !ok {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, req.Stage)
	}
	if !s.graph.IsGated(stage) {
		return fmt.Errorf("%w: stage %s is not gated", ErrInvalidInput, stage)
	}
	var status deal.ApprovalStatus
	switch deal.ApprovalStatus(strings.TrimSpace(req.Status)) {
	case deal.ApprovalPending, deal.ApprovalApproved, deal.ApprovalRejected:
		status = deal.ApprovalStatus(strings.TrimSpace(req.Status))
	default:
		return fmt.Errorf("%w: unknown approval status %q", ErrInvalidInput, req.Status)
	}

	d, err := s.store.GetDeal(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return deal.Wrap(deal.ErrNotFound, "api", "approve", fmt.Sprintf("deal %d", id), nil)
	}
	return s.store.SetApproval(ctx, id, stage, status)
}

// Activities returns the paginated audit feed for a deal.
func (s *DealService) Activities(ctx context.Context, id int64, limit, offset int) ([]Activity, error) {
	activities, err := s.store.ListActivities(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	return FromActivities(activities), nil
}

// Tasks returns the tasks attached to a deal.
func (s *DealService) Tasks(ctx context.Context, dealID int64) ([]Task, error) {
	tasks, err := s.store.ListTasks(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// Jobs returns job rows filtered by status.
func (s *DealService) Jobs(ctx context.Context, statuses ...store.JobStatus) ([]Job, error) {
	jobs, err := s.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// JobStats returns normalized job counts keyed by status.
func (s *DealService) JobStats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.JobStats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeJobStats(stats), nil
}

// RetryJobs moves failed jobs (optionally a subset) back to pending.
func (s *DealService) RetryJobs(ctx context.Context, ids ...int64) (int64, error) {
	return s.store.RetryFailedJobs(ctx, ids...)
}
