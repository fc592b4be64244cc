package deal

import (
	"fmt"
	"sort"
)

// StageGraph is an immutable description of the allowed stage transitions and
// the set of stages that require a recorded human approval before entry.
// Construct one with NewStageGraph and inject it into the workflow engine;
// multiple graphs may coexist for distinct pipeline configurations.
type StageGraph struct {
	edges map[Stage]map[Stage]struct{}
	gated map[Stage]struct{}
}

// NewStageGraph builds a graph from an edge map and a gated-stage set. Every
// stage referenced must be a known Stage; unknown stages are rejected so a
// misconfigured pipeline fails at construction rather than mid-transition.
func NewStageGraph(edges map[Stage][]Stage, gated []Stage) (*StageGraph, error) {
	graph := &StageGraph{
		edges: make(map[Stage]map[Stage]struct{}, len(edges)),
		gated: make(map[Stage]struct{}, len(gated)),
	}
	for from, targets := range edges {
		if _, ok := stageSet[from]; !ok {
			return nil, fmt.Errorf("stage graph: unknown stage %q", from)
		}
		set := make(map[Stage]struct{}, len(targets))
		for _, to := range targets {
			if _, ok := stageSet[to]; !ok {
				return nil, fmt.Errorf("stage graph: unknown target %q for stage %q", to, from)
			}
			set[to] = struct{}{}
		}
		graph.edges[from] = set
	}
	for _, stage := range gated {
		if _, ok := stageSet[stage]; !ok {
			return nil, fmt.Errorf("stage graph: unknown gated stage %q", stage)
		}
		graph.gated[stage] = struct{}{}
	}
	return graph, nil
}

// DefaultStageGraph returns the built-in government-contracting pipeline.
func DefaultStageGraph() *StageGraph {
	graph, err := NewStageGraph(map[Stage][]Stage{
		StageQualification: {StageCapturePlan, StageClosedLost},
		StageCapturePlan:   {StageProposalDev, StageClosedLost},
		StageProposalDev:   {StageFinalReview, StageCapturePlan, StageClosedLost},
		StageFinalReview:   {StageSubmit, StageProposalDev, StageClosedLost},
		StageSubmit:        {StagePostSubmit, StageClosedLost},
		StagePostSubmit:    {StageClosedWon, StageClosedLost},
	}, []Stage{StageSubmit, StageClosedWon})
	if err != nil {
		panic(err)
	}
	return graph
}

// Allows reports whether a direct transition from one stage to another exists.
func (g *StageGraph) Allows(from, to Stage) bool {
	targets, ok := g.edges[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Next returns the sorted set of stages reachable from the given stage. An
// empty result means the stage is terminal by construction.
func (g *StageGraph) Next(from Stage) []Stage {
	targets := g.edges[from]
	if len(targets) == 0 {
		return nil
	}
	next := make([]Stage, 0, len(targets))
	for stage := range targets {
		next = append(next, stage)
	}
	sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	return next
}

// IsGated reports whether entering the stage requires an approval record.
func (g *StageGraph) IsGated(stage Stage) bool {
	_, ok := g.gated[stage]
	return ok
}

// GatedStages returns the sorted set of gated stages.
func (g *StageGraph) GatedStages() []Stage {
	gated := make([]Stage, 0, len(g.gated))
	for stage := range g.gated {
		gated = append(gated, stage)
	}
	sort.Slice(gated, func(i, j int) bool { return gated[i] < gated[j] })
	return gated
}

// IsTerminal reports whether the stage has no outgoing edges.
func (g *StageGraph) IsTerminal(stage Stage) bool {
	return len(g.edges[stage]) == 0
}
