// Package flow detects pacing, continuity, energy, and narrative defects in
// a clip sequence and maps them to parameterized edit suggestions.
package flow

import "math"

// IssueType enumerates the closed set of detectable flow defects.
type IssueType string

const (
	IssuePacingTooFast        IssueType = "pacing_too_fast"
	IssuePacingTooSlow        IssueType = "pacing_too_slow"
	IssueInconsistentRhythm   IssueType = "inconsistent_rhythm"
	IssueColorDiscontinuity   IssueType = "color_discontinuity"
	IssueJarringTransition    IssueType = "jarring_transition"
	IssueMotionConflict       IssueType = "motion_conflict"
	IssueEnergyDrop           IssueType = "energy_drop"
	IssueEnergyCurveDeviation IssueType = "energy_curve_deviation"
	IssueMissingClimax        IssueType = "missing_climax"
	IssueRepetitiveSequence   IssueType = "repetitive_sequence"
	IssueStyleMismatch        IssueType = "style_mismatch"
	IssueMoodMismatch         IssueType = "mood_mismatch"
)

// Family groups issue types by the concern they affect.
type Family string

const (
	FamilyPacing     Family = "pacing"
	FamilyContinuity Family = "continuity"
	FamilyEnergy     Family = "energy"
	FamilyNarrative  Family = "narrative"
)

func (t IssueType) Family() Family {
	switch t {
	case IssuePacingTooFast, IssuePacingTooSlow, IssueInconsistentRhythm:
		return FamilyPacing
	case IssueColorDiscontinuity, IssueJarringTransition, IssueMotionConflict:
		return FamilyContinuity
	case IssueEnergyDrop, IssueEnergyCurveDeviation, IssueMissingClimax:
		return FamilyEnergy
	default:
		return FamilyNarrative
	}
}

// Issue is one detected flow defect. Severity is bounded to [0,1].
type Issue struct {
	Type        IssueType          `json:"type"`
	Severity    float64            `json:"severity"`
	StartTime   float64            `json:"start_time"`
	EndTime     float64            `json:"end_time"`
	ClipIndices []int              `json:"clip_indices"`
	Description string             `json:"description"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// EnergyCurve names a target energy progression over the timeline.
type EnergyCurve string

const (
	CurveRisingAction  EnergyCurve = "rising_action"
	CurveFallingAction EnergyCurve = "falling_action"
	CurveWave          EnergyCurve = "wave"
	CurveSteady        EnergyCurve = "steady"
	CurveClimactic     EnergyCurve = "climactic"
)

func (c EnergyCurve) Valid() bool {
	switch c {
	case CurveRisingAction, CurveFallingAction, CurveWave, CurveSteady, CurveClimactic:
		return true
	}
	return false
}

// Value returns the target energy at normalized position t in [0,1].
func (c EnergyCurve) Value(t float64) float64 {
	switch c {
	case CurveRisingAction:
		return math.Pow(t, 1.5)
	case CurveFallingAction:
		return 1 - t*t
	case CurveWave:
		return 0.5 + 0.5*math.Sin(2*math.Pi*t)
	case CurveClimactic:
		if t < 0.8 {
			return t * t * t
		}
		return 1.0
	default:
		return 0.5
	}
}
