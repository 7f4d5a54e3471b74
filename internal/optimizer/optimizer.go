package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/flowlens/flowlens-agent/internal/features"
	"github.com/flowlens/flowlens-agent/internal/flow"
	"github.com/flowlens/flowlens-agent/internal/timeline"
)

// Clip-duration bounds enforced during rescaling and validation.
const (
	minClipDuration = 0.5
	maxClipDuration = 30.0
)

// Options configure one optimization pass.
type Options struct {
	Strategy            Strategy
	PreserveClipIndices []int
	TargetDuration      *float64
}

// Result is the outcome of one optimization pass. Warnings are non-fatal;
// a partially applied pass still returns a usable timeline.
type Result struct {
	Timeline          *timeline.Timeline `json:"timeline"`
	ChangesMade       []string           `json:"changes_made"`
	ImprovementScore  float64            `json:"improvement_score"`
	PreservedElements []string           `json:"preserved_elements,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
}

// Optimizer applies suggestions to a working copy of the timeline and
// scores the result with a fresh detection pass.
type Optimizer struct {
	extractor *features.Extractor
	detector  *flow.Detector
	generator *flow.Generator
	logger    *slog.Logger
}

func New(extractor *features.Extractor, detector *flow.Detector, generator *flow.Generator, logger *slog.Logger) *Optimizer {
	return &Optimizer{
		extractor: extractor,
		detector:  detector,
		generator: generator,
		logger:    logger,
	}
}

// applyPhases is the fixed application order. Index-shifting actions run
// last so earlier phases see stable clip positions.
var applyPhases = [][]flow.ActionType{
	{flow.ActionAdjustDuration, flow.ActionAdjustTiming},
	{flow.ActionAddTransition},
	{flow.ActionAddEffect, flow.ActionRemoveEffect},
	{flow.ActionSplitClip, flow.ActionMergeClips},
	{flow.ActionReorderClips},
	{flow.ActionRemoveClip, flow.ActionInsertClip},
}

// Optimize never aborts: individual failing suggestions are logged and
// skipped, and in the worst case the unmodified input is returned with a
// warning.
func (o *Optimizer) Optimize(ctx context.Context, tl *timeline.Timeline, opts Options) *Result {
	if tl == nil || len(tl.Clips) == 0 {
		return &Result{
			Timeline: &timeline.Timeline{},
			Warnings: []string{"timeline has no clips; nothing to optimize"},
		}
	}

	feats := o.extractor.ExtractAll(ctx, tl.Clips)
	origIssues := o.detector.Detect(tl, feats, flow.DetectOptions{})
	suggestions := o.generator.Generate(origIssues)

	work := tl.DeepCopy()
	result := &Result{Timeline: work}

	preserved := make(map[int]bool, len(opts.PreserveClipIndices))
	for _, i := range opts.PreserveClipIndices {
		preserved[i] = true
		result.PreservedElements = append(result.PreservedElements,
			fmt.Sprintf("clip %d kept unchanged", i))
	}

	selected := o.filter(suggestions, opts.Strategy, preserved)

	for _, phase := range applyPhases {
		for _, sug := range o.phaseOrdered(selected, phase) {
			change, err := o.apply(work, sug)
			if err != nil {
				if o.logger != nil {
					o.logger.Warn("suggestion skipped", "action", string(sug.Action), "error", err)
				}
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("skipped %s: %v", sug.Action, err))
				continue
			}
			result.ChangesMade = append(result.ChangesMade, change)
			work.RecomputeStartTimes()
		}
	}

	// Generated clips have no backing asset; seed their intended energy so
	// the re-scoring pass sees the insertion instead of neutral defaults.
	for _, c := range work.Clips {
		if intent, ok := c.Metadata["energy_intent"].(string); ok {
			o.extractor.Prime(c.AssetID, features.ForEnergyIntent(intent))
		}
	}

	optFeats := o.extractor.ExtractAll(ctx, work.Clips)
	optIssues := o.detector.Detect(work, optFeats, flow.DetectOptions{})

	// The applied plan must not leave the timeline worse than it started.
	// When re-scoring says it did, fall back to the unmodified input.
	if severitySum(optIssues) > severitySum(origIssues) {
		work = tl.DeepCopy()
		result.Timeline = work
		result.ChangesMade = nil
		result.Warnings = append(result.Warnings,
			"applied suggestions scored worse than the original; returning it unchanged")
		optIssues = origIssues
	}

	if opts.TargetDuration != nil {
		o.rescaleToTarget(work, *opts.TargetDuration, preserved, result)
		optFeats = o.extractor.ExtractAll(ctx, work.Clips)
		optIssues = o.detector.Detect(work, optFeats, flow.DetectOptions{})
	}

	result.Warnings = append(result.Warnings, o.validate(work)...)
	result.ImprovementScore = improvement(origIssues, optIssues)

	if o.logger != nil {
		o.logger.Info("optimization complete",
			"strategy", string(opts.Strategy),
			"changes", len(result.ChangesMade),
			"improvement", result.ImprovementScore,
		)
	}
	return result
}

// filter keeps suggestions the strategy accepts and that touch no
// preserved clip index.
func (o *Optimizer) filter(suggestions []flow.Suggestion, strategy Strategy, preserved map[int]bool) []flow.Suggestion {
	var out []flow.Suggestion
	for _, sug := range suggestions {
		if !strategy.accepts(sug) {
			continue
		}
		touches := false
		for _, idx := range sug.ClipIndices {
			if preserved[idx] {
				touches = true
				break
			}
		}
		if touches {
			if o.logger != nil {
				o.logger.Debug("suggestion touches preserved clip, skipped", "action", string(sug.Action))
			}
			continue
		}
		out = append(out, sug)
	}
	return out
}

// phaseOrdered selects the suggestions belonging to one phase. Removals are
// applied highest-index first so earlier removals do not shift later ones.
func (o *Optimizer) phaseOrdered(suggestions []flow.Suggestion, actions []flow.ActionType) []flow.Suggestion {
	var out []flow.Suggestion
	for _, sug := range suggestions {
		for _, a := range actions {
			if sug.Action == a {
				out = append(out, sug)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri := out[i].Action == flow.ActionRemoveClip
		rj := out[j].Action == flow.ActionRemoveClip
		if ri != rj {
			return ri
		}
		if ri && rj {
			return firstIndex(out[i]) > firstIndex(out[j])
		}
		return false
	})
	return out
}

func (o *Optimizer) apply(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	switch sug.Action {
	case flow.ActionAdjustDuration:
		return applyAdjustDuration(work, sug)
	case flow.ActionAddTransition:
		return applyAddTransition(work, sug)
	case flow.ActionAddEffect:
		return applyAddEffect(work, sug)
	case flow.ActionSplitClip:
		return applySplitClip(work, sug)
	case flow.ActionMergeClips:
		return applyMergeClips(work, sug)
	case flow.ActionReorderClips:
		return applyReorderClips(work, sug)
	case flow.ActionInsertClip:
		return applyInsertClip(work, sug)
	case flow.ActionRemoveClip:
		return applyRemoveClip(work, sug)
	default:
		return "", fmt.Errorf("unsupported action %q", sug.Action)
	}
}

func applyAdjustDuration(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	idx := firstIndex(sug)
	if idx < 0 || idx >= len(work.Clips) {
		return "", fmt.Errorf("clip index %d out of range", idx)
	}
	target, ok := floatParam(sug.Params, "target_duration")
	if !ok || target <= 0 {
		return "", fmt.Errorf("invalid target_duration")
	}
	old := work.Clips[idx].Duration
	work.Clips[idx].Duration = target
	method, _ := sug.Params["method"].(string)
	if method == "slow_motion" && old > 0 {
		if work.Clips[idx].Metadata == nil {
			work.Clips[idx].Metadata = map[string]any{}
		}
		work.Clips[idx].Metadata["speed"] = old / target
	}
	return fmt.Sprintf("adjusted clip %d duration %.1fs -> %.1fs", idx, old, target), nil
}

func applyAddTransition(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	if len(sug.ClipIndices) < 2 {
		return "", fmt.Errorf("transition needs two clip indices")
	}
	a, b := sug.ClipIndices[0], sug.ClipIndices[1]
	if a < 0 || b >= len(work.Clips) || b != a+1 {
		return "", fmt.Errorf("clip pair %d,%d out of range", a, b)
	}
	kind, _ := sug.Params["transition_type"].(string)
	if kind == "" {
		kind = "crossfade"
	}
	dur, ok := floatParam(sug.Params, "duration")
	if !ok || dur <= 0 {
		return "", fmt.Errorf("invalid transition duration")
	}
	tr := timeline.Transition{Type: kind, Duration: dur}
	work.Clips[a].TransitionOut = &tr
	trIn := tr
	work.Clips[b].TransitionIn = &trIn
	return fmt.Sprintf("added %.1fs %s between clips %d and %d", dur, kind, a, b), nil
}

func applyAddEffect(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	idx := firstIndex(sug)
	if idx < 0 || idx >= len(work.Clips) {
		return "", fmt.Errorf("clip index %d out of range", idx)
	}
	kind, _ := sug.Params["effect_type"].(string)
	if kind == "" {
		return "", fmt.Errorf("missing effect_type")
	}
	params := map[string]any{}
	if dur, ok := floatParam(sug.Params, "duration"); ok {
		params["duration"] = dur
	}
	work.Clips[idx].Effects = append(work.Clips[idx].Effects, timeline.Effect{Type: kind, Params: params})
	return fmt.Sprintf("added %s effect to clip %d", kind, idx), nil
}

func applySplitClip(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	idx := firstIndex(sug)
	if idx < 0 || idx >= len(work.Clips) {
		return "", fmt.Errorf("clip index %d out of range", idx)
	}
	at, ok := floatParam(sug.Params, "at")
	clip := work.Clips[idx]
	if !ok || at <= 0 || at >= clip.Duration {
		return "", fmt.Errorf("split offset outside clip")
	}
	first := clip
	first.Duration = at
	second := clip
	second.StartTime = clip.StartTime + at
	second.Duration = clip.Duration - at
	if clip.InPoint != nil {
		in := *clip.InPoint + at
		second.InPoint = &in
	}
	work.Clips = append(work.Clips[:idx], append([]timeline.Clip{first, second}, work.Clips[idx+1:]...)...)
	return fmt.Sprintf("split clip %d at %.1fs", idx, at), nil
}

func applyMergeClips(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	if len(sug.ClipIndices) < 2 {
		return "", fmt.Errorf("merge needs two clip indices")
	}
	a, b := sug.ClipIndices[0], sug.ClipIndices[1]
	if a < 0 || b >= len(work.Clips) || b != a+1 {
		return "", fmt.Errorf("clip pair %d,%d out of range", a, b)
	}
	if work.Clips[a].AssetID != work.Clips[b].AssetID {
		return "", fmt.Errorf("clips %d and %d reference different assets", a, b)
	}
	work.Clips[a].Duration += work.Clips[b].Duration
	work.Clips[a].OutPoint = work.Clips[b].OutPoint
	work.Clips[a].TransitionOut = work.Clips[b].TransitionOut
	work.Clips = append(work.Clips[:b], work.Clips[b+1:]...)
	return fmt.Sprintf("merged clips %d and %d", a, b), nil
}

func applyReorderClips(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	from, okFrom := intParam(sug.Params, "from")
	to, okTo := intParam(sug.Params, "to")
	if !okFrom || !okTo || from < 0 || from >= len(work.Clips) || to < 0 || to >= len(work.Clips) {
		return "", fmt.Errorf("reorder indices out of range")
	}
	if from == to {
		return "", fmt.Errorf("reorder is a no-op")
	}
	clip := work.Clips[from]
	work.Clips = append(work.Clips[:from], work.Clips[from+1:]...)
	work.Clips = append(work.Clips[:to], append([]timeline.Clip{clip}, work.Clips[to:]...)...)
	return fmt.Sprintf("moved clip %d to position %d", from, to), nil
}

func applyInsertClip(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	pos, ok := intParam(sug.Params, "position")
	if !ok || pos < 0 || pos > len(work.Clips) {
		return "", fmt.Errorf("insert position out of range")
	}
	dur, ok := floatParam(sug.Params, "duration")
	if !ok || dur <= 0 {
		return "", fmt.Errorf("invalid insert duration")
	}
	clip := timeline.Clip{
		AssetID:  "generated-" + timeline.NewID()[:8],
		Duration: dur,
		Metadata: map[string]any{"generated": true},
	}
	if intent, ok := sug.Params["energy"].(string); ok {
		clip.Metadata["energy_intent"] = intent
	}
	work.Clips = append(work.Clips[:pos], append([]timeline.Clip{clip}, work.Clips[pos:]...)...)
	return fmt.Sprintf("inserted %.1fs clip at position %d", dur, pos), nil
}

func applyRemoveClip(work *timeline.Timeline, sug flow.Suggestion) (string, error) {
	idx := firstIndex(sug)
	if idx < 0 || idx >= len(work.Clips) {
		return "", fmt.Errorf("clip index %d out of range", idx)
	}
	if len(work.Clips) == 1 {
		return "", fmt.Errorf("refusing to remove the only clip")
	}
	work.Clips = append(work.Clips[:idx], work.Clips[idx+1:]...)
	return fmt.Sprintf("removed clip %d", idx), nil
}

// rescaleToTarget proportionally scales non-preserved clip durations toward
// the target total, clamping each clip to the allowed range.
func (o *Optimizer) rescaleToTarget(work *timeline.Timeline, target float64, preserved map[int]bool, result *Result) {
	if target <= 0 {
		result.Warnings = append(result.Warnings, "ignored non-positive target duration")
		return
	}

	var preservedSum, adjustableSum float64
	for i, c := range work.Clips {
		if preserved[i] {
			preservedSum += c.Duration
		} else {
			adjustableSum += c.Duration
		}
	}
	if adjustableSum == 0 {
		result.Warnings = append(result.Warnings, "all clips preserved; cannot rescale to target duration")
		return
	}

	factor := (target - preservedSum) / adjustableSum
	if factor <= 0 {
		result.Warnings = append(result.Warnings, "target duration below preserved content; rescale skipped")
		return
	}

	for i := range work.Clips {
		if preserved[i] {
			continue
		}
		scaled := work.Clips[i].Duration * factor
		work.Clips[i].Duration = math.Min(maxClipDuration, math.Max(minClipDuration, scaled))
	}
	work.RecomputeStartTimes()
	result.ChangesMade = append(result.ChangesMade,
		fmt.Sprintf("rescaled timeline toward %.1fs target (factor %.2f)", target, factor))

	if math.Abs(work.Duration-target) > timeline.ContiguityTolerance {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("rescaled duration %.2fs differs from target %.2fs after clamping", work.Duration, target))
	}
}

// validate checks the structural invariants and reports violations as
// non-fatal warnings.
func (o *Optimizer) validate(work *timeline.Timeline) []string {
	var warnings []string

	if len(work.Clips) == 0 {
		return []string{"optimized timeline has no clips"}
	}

	if violations := work.ContiguityViolations(); len(violations) > 0 {
		warnings = append(warnings,
			fmt.Sprintf("contiguity drift after clips %v", violations))
	}

	if diff := math.Abs(work.Duration - work.ClipDurationsSum()); diff > timeline.ContiguityTolerance {
		warnings = append(warnings,
			fmt.Sprintf("timeline duration %.2fs differs from clip sum %.2fs", work.Duration, work.ClipDurationsSum()))
	}

	for i, c := range work.Clips {
		if c.Duration < minClipDuration {
			warnings = append(warnings,
				fmt.Sprintf("clip %d is %.2fs, below the %.1fs minimum", i, c.Duration, minClipDuration))
		}
		if c.TransitionOut != nil && c.TransitionOut.Duration > c.Duration {
			warnings = append(warnings,
				fmt.Sprintf("clip %d transition (%.1fs) exceeds the clip itself", i, c.TransitionOut.Duration))
		}
	}
	return warnings
}

// improvement is the relative severity reduction, clamped to [0,1].
// No original issues means nothing to improve.
func improvement(orig, opt []flow.Issue) float64 {
	origSum := severitySum(orig)
	if origSum == 0 {
		return 0
	}
	score := (origSum - severitySum(opt)) / origSum
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func severitySum(issues []flow.Issue) float64 {
	var sum float64
	for _, issue := range issues {
		sum += issue.Severity
	}
	return sum
}

func firstIndex(sug flow.Suggestion) int {
	if len(sug.ClipIndices) == 0 {
		return -1
	}
	return sug.ClipIndices[0]
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
