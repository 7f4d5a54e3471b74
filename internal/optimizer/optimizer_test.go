package optimizer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/flowlens/flowlens-agent/internal/features"
	"github.com/flowlens/flowlens-agent/internal/flow"
	"github.com/flowlens/flowlens-agent/internal/timeline"
)

type stubStore map[string]map[string]any

func (s stubStore) GetMetadata(_ context.Context, assetID string) (map[string]any, error) {
	return s[assetID], nil
}

func newOptimizer(store features.MetadataStore) *Optimizer {
	extractor := features.NewExtractor(store, nil, nil, 2, nil)
	detector := flow.NewDetector(flow.DefaultTuning(), nil)
	generator := flow.NewGenerator(nil)
	return New(extractor, detector, generator, nil)
}

func makeTimeline(durations ...float64) *timeline.Timeline {
	tl := &timeline.Timeline{FrameRate: 30}
	start := 0.0
	for i, d := range durations {
		tl.Clips = append(tl.Clips, timeline.Clip{
			AssetID:   string(rune('a' + i)),
			StartTime: start,
			Duration:  d,
		})
		start += d
	}
	tl.Duration = start
	return tl
}

func TestOptimize_BalancedBringsPacingIntoRange(t *testing.T) {
	o := newOptimizer(nil)
	tl := makeTimeline(0.3, 3, 3, 12)

	res := o.Optimize(context.Background(), tl, Options{Strategy: StrategyBalanced})

	wantDurations := []float64{2, 3, 3, 5}
	for i, want := range wantDurations {
		if got := res.Timeline.Clips[i].Duration; math.Abs(got-want) > 1e-9 {
			t.Errorf("clip %d duration = %v, want %v", i, got, want)
		}
	}
	if n := len(res.Timeline.ContiguityViolations()); n != 0 {
		t.Errorf("contiguity violations = %d, want 0", n)
	}
	if math.Abs(res.Timeline.Duration-13) > 1e-9 {
		t.Errorf("total duration = %v, want 13", res.Timeline.Duration)
	}
	if len(res.ChangesMade) != 2 {
		t.Errorf("changes made = %v, want 2 duration adjustments", res.ChangesMade)
	}
	if math.Abs(res.ImprovementScore-1.0) > 1e-9 {
		t.Errorf("improvement = %v, want 1.0 (all issues resolved)", res.ImprovementScore)
	}

	// The slow-motion extension records the playback speed.
	speed, ok := res.Timeline.Clips[0].Metadata["speed"].(float64)
	if !ok || math.Abs(speed-0.15) > 1e-9 {
		t.Errorf("clip 0 speed = %v, want 0.15", res.Timeline.Clips[0].Metadata["speed"])
	}

	// The input timeline is never mutated.
	if tl.Clips[0].Duration != 0.3 || tl.Clips[3].Duration != 12 {
		t.Errorf("input timeline mutated: %+v", tl.Clips)
	}
}

func TestOptimize_PreservedClipIsSkipped(t *testing.T) {
	o := newOptimizer(nil)
	tl := makeTimeline(0.3, 3, 3)

	res := o.Optimize(context.Background(), tl, Options{
		Strategy:            StrategyBalanced,
		PreserveClipIndices: []int{0},
	})

	if got := res.Timeline.Clips[0].Duration; got != 0.3 {
		t.Errorf("preserved clip duration = %v, want untouched 0.3", got)
	}
	for _, change := range res.ChangesMade {
		if strings.Contains(change, "clip 0") {
			t.Errorf("preserved clip appears in changes: %q", change)
		}
	}
	if len(res.PreservedElements) != 1 || !strings.Contains(res.PreservedElements[0], "clip 0") {
		t.Errorf("preserved elements = %v", res.PreservedElements)
	}
}

func TestFilter_PreservedIndexBlocksRemoval(t *testing.T) {
	o := newOptimizer(nil)
	suggestions := []flow.Suggestion{
		{Action: flow.ActionRemoveClip, Priority: 0.9, ClipIndices: []int{0}, SourceIssue: flow.IssueRepetitiveSequence},
		{Action: flow.ActionAddEffect, Priority: 0.9, ClipIndices: []int{1}, SourceIssue: flow.IssueJarringTransition},
	}

	out := o.filter(suggestions, StrategyAggressive, map[int]bool{0: true})
	if len(out) != 1 || out[0].Action != flow.ActionAddEffect {
		t.Errorf("filter kept %v, want only the effect suggestion", out)
	}
}

func TestFilter_Strategies(t *testing.T) {
	o := newOptimizer(nil)
	suggestions := []flow.Suggestion{
		{Action: flow.ActionAdjustDuration, Priority: 0.9, SourceIssue: flow.IssuePacingTooFast},
		{Action: flow.ActionAddTransition, Priority: 0.6, SourceIssue: flow.IssueColorDiscontinuity},
		{Action: flow.ActionReorderClips, Priority: 0.7, SourceIssue: flow.IssueEnergyDrop},
		{Action: flow.ActionRemoveClip, Priority: 0.4, SourceIssue: flow.IssueRepetitiveSequence},
	}

	tests := []struct {
		strategy Strategy
		want     int
	}{
		{StrategyMinimal, 1},
		{StrategyBalanced, 3},
		{StrategyAggressive, 4},
		{StrategyPreserveIntent, 2},
		{StrategyEnergyFocused, 1},
		{StrategyNarrativeFocused, 1},
		{Strategy("bogus"), 0},
	}
	for _, tc := range tests {
		t.Run(string(tc.strategy), func(t *testing.T) {
			if got := len(o.filter(suggestions, tc.strategy, nil)); got != tc.want {
				t.Errorf("%s kept %d suggestions, want %d", tc.strategy, got, tc.want)
			}
		})
	}
}

func TestStrategyValid(t *testing.T) {
	for _, s := range []Strategy{StrategyMinimal, StrategyBalanced, StrategyAggressive, StrategyPreserveIntent, StrategyEnergyFocused, StrategyNarrativeFocused} {
		if !s.Valid() {
			t.Errorf("%s reported invalid", s)
		}
	}
	if Strategy("drastic").Valid() {
		t.Error("unknown strategy reported valid")
	}
}

func TestOptimize_ColorJumpGetsCrossfade(t *testing.T) {
	store := stubStore{
		"a": {"dominant_colors": []any{[]any{255.0, 0.0, 0.0}}},
		"b": {"dominant_colors": []any{[]any{0.0, 0.0, 255.0}}},
	}
	o := newOptimizer(store)
	tl := makeTimeline(3, 3)

	res := o.Optimize(context.Background(), tl, Options{Strategy: StrategyBalanced})

	out := res.Timeline.Clips[0].TransitionOut
	if out == nil || out.Type != "crossfade" || out.Duration != 1.0 {
		t.Fatalf("clip 0 transition out = %+v, want 1.0s crossfade", out)
	}
	in := res.Timeline.Clips[1].TransitionIn
	if in == nil || in.Type != "crossfade" {
		t.Errorf("clip 1 transition in = %+v, want crossfade", in)
	}
	if res.ImprovementScore < 0 || res.ImprovementScore > 1 {
		t.Errorf("improvement = %v, want in [0,1]", res.ImprovementScore)
	}
}

func TestOptimize_MissingClimaxInsertsGeneratedClip(t *testing.T) {
	o := newOptimizer(nil)
	tl := makeTimeline(5, 5, 5, 5, 5, 5, 5, 5)

	res := o.Optimize(context.Background(), tl, Options{Strategy: StrategyAggressive})

	if len(res.Timeline.Clips) != 9 {
		t.Fatalf("clip count = %d, want 9 after insertion", len(res.Timeline.Clips))
	}
	inserted := res.Timeline.Clips[6]
	if !strings.HasPrefix(inserted.AssetID, "generated-") {
		t.Errorf("clip at insert position has asset %q, want generated id", inserted.AssetID)
	}
	if inserted.Duration != 3.0 || inserted.Metadata["energy_intent"] != "high" {
		t.Errorf("inserted clip = %+v", inserted)
	}
	if n := len(res.Timeline.ContiguityViolations()); n != 0 {
		t.Errorf("contiguity violations = %d, want 0", n)
	}

	// Re-scoring reads the generated clip at its intended high energy, so
	// the climax defect resolves and nothing new appears.
	if math.Abs(res.ImprovementScore-1.0) > 1e-9 {
		t.Errorf("improvement = %v, want 1.0 (climax issue resolved)", res.ImprovementScore)
	}
}

func TestOptimize_AggressiveNeverWorsensSeverity(t *testing.T) {
	// Six slow-bucket clips over 36s with no climax. The generated 3.0s
	// insert cannot satisfy the slow bucket's 5s minimum, so applying it
	// would score worse than the original; the optimizer must notice and
	// fall back to the input unchanged.
	store := stubStore{}
	for i := 0; i < 6; i++ {
		store[string(rune('a'+i))] = map[string]any{
			"semantic_tags": []any{"calm", fmt.Sprintf("scene%d", i)},
		}
	}
	o := newOptimizer(store)
	tl := makeTimeline(6, 6, 6, 6, 6, 6)

	extractor := features.NewExtractor(store, nil, nil, 2, nil)
	detector := flow.NewDetector(flow.DefaultTuning(), nil)
	origIssues := detector.Detect(tl, extractor.ExtractAll(context.Background(), tl.Clips), flow.DetectOptions{})
	if len(origIssues) != 1 || origIssues[0].Type != flow.IssueMissingClimax {
		t.Fatalf("setup issues = %+v, want exactly one missing-climax issue", origIssues)
	}

	res := o.Optimize(context.Background(), tl, Options{Strategy: StrategyAggressive})

	optIssues := detector.Detect(res.Timeline,
		extractor.ExtractAll(context.Background(), res.Timeline.Clips), flow.DetectOptions{})
	var origSum, optSum float64
	for _, issue := range origIssues {
		origSum += issue.Severity
	}
	for _, issue := range optIssues {
		optSum += issue.Severity
	}
	if optSum > origSum+1e-9 {
		t.Errorf("severity sum grew %.3f -> %.3f under the aggressive strategy", origSum, optSum)
	}

	if len(res.Timeline.Clips) != 6 {
		t.Errorf("clip count = %d, want the original 6", len(res.Timeline.Clips))
	}
	if len(res.ChangesMade) != 0 {
		t.Errorf("regressive plan should leave no changes, got %v", res.ChangesMade)
	}
	if res.ImprovementScore != 0 {
		t.Errorf("improvement = %v, want 0", res.ImprovementScore)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "scored worse") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a fallback warning, got %v", res.Warnings)
	}
}

func TestOptimize_TargetDuration(t *testing.T) {
	t.Run("rescales proportionally", func(t *testing.T) {
		o := newOptimizer(nil)
		target := 4.0
		res := o.Optimize(context.Background(), makeTimeline(4, 4), Options{
			Strategy:       StrategyBalanced,
			TargetDuration: &target,
		})
		if math.Abs(res.Timeline.Duration-4.0) > timeline.ContiguityTolerance {
			t.Errorf("duration = %v, want 4.0", res.Timeline.Duration)
		}
		for i, c := range res.Timeline.Clips {
			if math.Abs(c.Duration-2.0) > 1e-9 {
				t.Errorf("clip %d duration = %v, want 2.0", i, c.Duration)
			}
		}
	})

	t.Run("preserved clips keep their length", func(t *testing.T) {
		o := newOptimizer(nil)
		target := 6.0
		res := o.Optimize(context.Background(), makeTimeline(4, 4), Options{
			Strategy:            StrategyBalanced,
			TargetDuration:      &target,
			PreserveClipIndices: []int{0},
		})
		if got := res.Timeline.Clips[0].Duration; got != 4.0 {
			t.Errorf("preserved clip duration = %v, want 4.0", got)
		}
		if got := res.Timeline.Clips[1].Duration; math.Abs(got-2.0) > 1e-9 {
			t.Errorf("adjustable clip duration = %v, want 2.0", got)
		}
	})

	t.Run("clamping shortfall is warned", func(t *testing.T) {
		o := newOptimizer(nil)
		target := 100.0
		res := o.Optimize(context.Background(), makeTimeline(5, 5), Options{
			Strategy:       StrategyBalanced,
			TargetDuration: &target,
		})
		for i, c := range res.Timeline.Clips {
			if c.Duration != 30.0 {
				t.Errorf("clip %d duration = %v, want clamped to 30", i, c.Duration)
			}
		}
		found := false
		for _, w := range res.Warnings {
			if strings.Contains(w, "differs from target") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a clamp warning, got %v", res.Warnings)
		}
	})

	t.Run("target below preserved content is refused", func(t *testing.T) {
		o := newOptimizer(nil)
		target := 3.0
		res := o.Optimize(context.Background(), makeTimeline(4, 4), Options{
			Strategy:            StrategyBalanced,
			TargetDuration:      &target,
			PreserveClipIndices: []int{0},
		})
		if res.Timeline.Clips[1].Duration != 4.0 {
			t.Errorf("rescale should have been skipped, clip 1 = %v", res.Timeline.Clips[1].Duration)
		}
		found := false
		for _, w := range res.Warnings {
			if strings.Contains(w, "rescale skipped") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a skip warning, got %v", res.Warnings)
		}
	})
}

func TestOptimize_HealthyTimelineUntouched(t *testing.T) {
	o := newOptimizer(nil)
	res := o.Optimize(context.Background(), makeTimeline(3, 3, 3), Options{Strategy: StrategyAggressive})

	if len(res.ChangesMade) != 0 {
		t.Errorf("changes on a healthy timeline: %v", res.ChangesMade)
	}
	if res.ImprovementScore != 0 {
		t.Errorf("improvement = %v, want 0 when nothing was wrong", res.ImprovementScore)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
}

func TestOptimize_EmptyTimeline(t *testing.T) {
	o := newOptimizer(nil)
	res := o.Optimize(context.Background(), &timeline.Timeline{}, Options{Strategy: StrategyBalanced})
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for an empty timeline")
	}
	res = o.Optimize(context.Background(), nil, Options{Strategy: StrategyBalanced})
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for a nil timeline")
	}
}

func TestImprovement(t *testing.T) {
	issues := func(sevs ...float64) []flow.Issue {
		out := make([]flow.Issue, len(sevs))
		for i, s := range sevs {
			out[i] = flow.Issue{Severity: s}
		}
		return out
	}

	tests := []struct {
		name string
		orig []flow.Issue
		opt  []flow.Issue
		want float64
	}{
		{"no original issues", nil, issues(0.5), 0},
		{"all resolved", issues(0.5, 0.5), nil, 1},
		{"halved", issues(0.4, 0.4), issues(0.4), 0.5},
		{"made worse clamps to zero", issues(0.2), issues(0.9), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := improvement(tc.orig, tc.opt); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("improvement = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApplySplitClip(t *testing.T) {
	work := makeTimeline(6)
	in := 2.0
	work.Clips[0].InPoint = &in

	_, err := applySplitClip(work, flow.Suggestion{
		Action:      flow.ActionSplitClip,
		ClipIndices: []int{0},
		Params:      map[string]any{"at": 2.5},
	})
	if err != nil {
		t.Fatalf("split error: %v", err)
	}
	if len(work.Clips) != 2 {
		t.Fatalf("clip count = %d, want 2", len(work.Clips))
	}
	if work.Clips[0].Duration != 2.5 || work.Clips[1].Duration != 3.5 {
		t.Errorf("durations = %v, %v, want 2.5, 3.5", work.Clips[0].Duration, work.Clips[1].Duration)
	}
	if *work.Clips[1].InPoint != 4.5 {
		t.Errorf("second half in point = %v, want 4.5", *work.Clips[1].InPoint)
	}

	if _, err := applySplitClip(work, flow.Suggestion{
		ClipIndices: []int{0},
		Params:      map[string]any{"at": 10.0},
	}); err == nil {
		t.Error("split beyond clip end should fail")
	}
}

func TestApplyMergeClips(t *testing.T) {
	work := makeTimeline(3, 3)
	work.Clips[1].AssetID = work.Clips[0].AssetID

	_, err := applyMergeClips(work, flow.Suggestion{ClipIndices: []int{0, 1}})
	if err != nil {
		t.Fatalf("merge error: %v", err)
	}
	if len(work.Clips) != 1 || work.Clips[0].Duration != 6 {
		t.Errorf("merged timeline = %+v", work.Clips)
	}

	other := makeTimeline(3, 3)
	if _, err := applyMergeClips(other, flow.Suggestion{ClipIndices: []int{0, 1}}); err == nil {
		t.Error("merging clips of different assets should fail")
	}
}

func TestApplyReorderClips(t *testing.T) {
	work := makeTimeline(1, 2, 3)
	_, err := applyReorderClips(work, flow.Suggestion{Params: map[string]any{"from": 0, "to": 2}})
	if err != nil {
		t.Fatalf("reorder error: %v", err)
	}
	want := []float64{2, 3, 1}
	for i, w := range want {
		if work.Clips[i].Duration != w {
			t.Errorf("clip %d duration = %v, want %v", i, work.Clips[i].Duration, w)
		}
	}

	if _, err := applyReorderClips(work, flow.Suggestion{Params: map[string]any{"from": 1, "to": 1}}); err == nil {
		t.Error("no-op reorder should fail")
	}
	if _, err := applyReorderClips(work, flow.Suggestion{Params: map[string]any{"from": 0, "to": 9}}); err == nil {
		t.Error("out-of-range reorder should fail")
	}
}

func TestApplyRemoveClip_RefusesLastClip(t *testing.T) {
	work := makeTimeline(3)
	if _, err := applyRemoveClip(work, flow.Suggestion{ClipIndices: []int{0}}); err == nil {
		t.Error("removing the only clip should fail")
	}

	work = makeTimeline(3, 3)
	if _, err := applyRemoveClip(work, flow.Suggestion{ClipIndices: []int{1}}); err != nil {
		t.Errorf("remove error: %v", err)
	}
	if len(work.Clips) != 1 {
		t.Errorf("clip count = %d, want 1", len(work.Clips))
	}
}
