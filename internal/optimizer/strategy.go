// Package optimizer rewrites a timeline by applying a strategy-filtered
// subset of flow suggestions, then measures the improvement by re-running
// detection on the result.
package optimizer

import "github.com/flowlens/flowlens-agent/internal/flow"

// Strategy names a policy selecting which suggestions get applied.
type Strategy string

const (
	StrategyMinimal          Strategy = "minimal"
	StrategyBalanced         Strategy = "balanced"
	StrategyAggressive       Strategy = "aggressive"
	StrategyPreserveIntent   Strategy = "preserve_intent"
	StrategyEnergyFocused    Strategy = "energy_focused"
	StrategyNarrativeFocused Strategy = "narrative_focused"
)

// Strategies are pure predicates over suggestions, not behaviors.
var strategyPredicates = map[Strategy]func(flow.Suggestion) bool{
	StrategyMinimal: func(s flow.Suggestion) bool {
		return s.Priority > 0.8
	},
	StrategyBalanced: func(s flow.Suggestion) bool {
		return s.Priority > 0.5
	},
	StrategyAggressive: func(s flow.Suggestion) bool {
		return true
	},
	StrategyPreserveIntent: func(s flow.Suggestion) bool {
		return s.Action != flow.ActionRemoveClip && s.Action != flow.ActionReorderClips
	},
	StrategyEnergyFocused: func(s flow.Suggestion) bool {
		return s.SourceIssue.Family() == flow.FamilyEnergy
	},
	StrategyNarrativeFocused: func(s flow.Suggestion) bool {
		return s.SourceIssue.Family() == flow.FamilyNarrative
	},
}

func (s Strategy) Valid() bool {
	_, ok := strategyPredicates[s]
	return ok
}

func (s Strategy) accepts(sug flow.Suggestion) bool {
	pred, ok := strategyPredicates[s]
	if !ok {
		return false
	}
	return pred(sug)
}
