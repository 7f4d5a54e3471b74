package flow

import (
	"fmt"
	"log/slog"
)

// ActionType enumerates the closed set of edit actions a suggestion can
// propose.
type ActionType string

const (
	ActionAdjustDuration ActionType = "adjust_duration"
	ActionAddTransition  ActionType = "add_transition"
	ActionAddEffect      ActionType = "add_effect"
	ActionRemoveEffect   ActionType = "remove_effect"
	ActionReorderClips   ActionType = "reorder_clips"
	ActionInsertClip     ActionType = "insert_clip"
	ActionRemoveClip     ActionType = "remove_clip"
	ActionSplitClip      ActionType = "split_clip"
	ActionMergeClips     ActionType = "merge_clips"
	ActionAdjustTiming   ActionType = "adjust_timing"
)

// Suggestion is one proposed edit addressing a detected issue. Suggestions
// are independent of each other.
type Suggestion struct {
	Action              ActionType     `json:"action"`
	Priority            float64        `json:"priority"`
	ClipIndices         []int          `json:"clip_indices"`
	Params              map[string]any `json:"params,omitempty"`
	ExpectedImprovement float64        `json:"expected_improvement"`
	SourceIssue         IssueType      `json:"source_issue"`
	Description         string         `json:"description"`
}

// Generator maps issues to suggestions deterministically, one issue type at
// a time. Issue types without a mapping yield no suggestion.
type Generator struct {
	logger *slog.Logger
}

func NewGenerator(logger *slog.Logger) *Generator {
	return &Generator{logger: logger}
}

func (g *Generator) Generate(issues []Issue) []Suggestion {
	var out []Suggestion
	for _, issue := range issues {
		if s, ok := g.suggestFor(issue); ok {
			out = append(out, s)
		}
	}
	return out
}

func (g *Generator) suggestFor(issue Issue) (Suggestion, bool) {
	switch issue.Type {
	case IssuePacingTooFast:
		return Suggestion{
			Action:      ActionAdjustDuration,
			Priority:    issue.Severity,
			ClipIndices: issue.ClipIndices,
			Params: map[string]any{
				"target_duration": issue.Metrics["ideal_min"],
				"method":          "slow_motion",
			},
			ExpectedImprovement: 0.3,
			SourceIssue:         issue.Type,
			Description:         fmt.Sprintf("extend clip %d to %.1fs with slow motion", firstIndex(issue), issue.Metrics["ideal_min"]),
		}, true

	case IssuePacingTooSlow:
		return Suggestion{
			Action:      ActionAdjustDuration,
			Priority:    issue.Severity,
			ClipIndices: issue.ClipIndices,
			Params: map[string]any{
				"target_duration": issue.Metrics["ideal_max"],
				"method":          "trim",
			},
			ExpectedImprovement: 0.2,
			SourceIssue:         issue.Type,
			Description:         fmt.Sprintf("trim clip %d to %.1fs", firstIndex(issue), issue.Metrics["ideal_max"]),
		}, true

	case IssueColorDiscontinuity:
		return Suggestion{
			Action:      ActionAddTransition,
			Priority:    issue.Severity * 0.8,
			ClipIndices: issue.ClipIndices,
			Params: map[string]any{
				"transition_type": "crossfade",
				"duration":        1.0,
			},
			ExpectedImprovement: 0.4,
			SourceIssue:         issue.Type,
			Description:         fmt.Sprintf("soften the color jump after clip %d with a 1.0s crossfade", firstIndex(issue)),
		}, true

	case IssueJarringTransition:
		return Suggestion{
			Action:      ActionAddEffect,
			Priority:    issue.Severity,
			ClipIndices: issue.ClipIndices[:1],
			Params: map[string]any{
				"effect_type": "brightness_fade",
				"duration":    0.5,
			},
			ExpectedImprovement: 0.3,
			SourceIssue:         issue.Type,
			Description:         fmt.Sprintf("add a 0.5s brightness fade to clip %d", firstIndex(issue)),
		}, true

	case IssueEnergyDrop:
		if len(issue.ClipIndices) < 2 {
			return Suggestion{}, false
		}
		higher := issue.ClipIndices[0]
		lower := issue.ClipIndices[1]
		// The higher-energy clip moves to follow the drop; skip when it
		// already sits at the end of the pair range.
		if higher >= lower {
			return Suggestion{}, false
		}
		return Suggestion{
			Action:      ActionReorderClips,
			Priority:    issue.Severity * 0.9,
			ClipIndices: issue.ClipIndices,
			Params: map[string]any{
				"from": higher,
				"to":   lower,
			},
			ExpectedImprovement: 0.5,
			SourceIssue:         issue.Type,
			Description:         fmt.Sprintf("move clip %d after clip %d to smooth the energy drop", higher, lower),
		}, true

	case IssueMissingClimax:
		position := int(issue.Metrics["insert_position"])
		return Suggestion{
			Action:      ActionInsertClip,
			Priority:    0.8,
			ClipIndices: []int{position},
			Params: map[string]any{
				"position": position,
				"duration": 3.0,
				"energy":   "high",
			},
			ExpectedImprovement: 0.6,
			SourceIssue:         issue.Type,
			Description:         fmt.Sprintf("insert a 3.0s high-energy clip at position %d", position),
		}, true

	case IssueRepetitiveSequence:
		if len(issue.ClipIndices) < 2 {
			return Suggestion{}, false
		}
		later := issue.ClipIndices[len(issue.ClipIndices)-1]
		return Suggestion{
			Action:              ActionRemoveClip,
			Priority:            issue.Severity * 0.7,
			ClipIndices:         []int{later},
			Params:              map[string]any{"index": later},
			ExpectedImprovement: 0.3,
			SourceIssue:         issue.Type,
			Description:         fmt.Sprintf("remove duplicate clip %d", later),
		}, true
	}

	if g.logger != nil {
		g.logger.Debug("no suggestion mapping for issue", "type", string(issue.Type))
	}
	return Suggestion{}, false
}

func firstIndex(issue Issue) int {
	if len(issue.ClipIndices) == 0 {
		return -1
	}
	return issue.ClipIndices[0]
}
