package deal

import "strings"

// Stage represents a named phase in a deal's lifecycle.
type Stage string

const (
	StageQualification Stage = "qualification"
	StageCapturePlan   Stage = "capture_plan"
	StageProposalDev   Stage = "proposal_dev"
	StageFinalReview   Stage = "final_review"
	StageSubmit        Stage = "submit"
	StagePostSubmit    Stage = "post_submit"
	StageClosedWon     Stage = "closed_won"
	StageClosedLost    Stage = "closed_lost"
)

var allStages = []Stage{
	StageQualification,
	StageCapturePlan,
	StageProposalDev,
	StageFinalReview,
	StageSubmit,
	StagePostSubmit,
	StageClosedWon,
	StageClosedLost,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// IsClosed reports whether a stage is one of the closed (won/lost) states.
func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}
