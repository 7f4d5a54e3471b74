package flow

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/flowlens/flowlens-agent/internal/features"
	"github.com/flowlens/flowlens-agent/internal/timeline"
)

// pacingBucket is an ideal clip-duration range chosen from the timeline's
// mean energy.
type pacingBucket struct {
	name     string
	min, max float64
}

// DetectOptions carry the optional analysis targets.
type DetectOptions struct {
	TargetMood  *float64
	TargetCurve EnergyCurve
}

// Detector scans a clip sequence plus its index-aligned features for flow
// defects. It is stateless; every call is an independent scan.
type Detector struct {
	tuning Tuning
	logger *slog.Logger
}

func NewDetector(tuning Tuning, logger *slog.Logger) *Detector {
	return &Detector{tuning: tuning, logger: logger}
}

// Detect runs all four issue families over the timeline. feats must be
// positionally aligned with tl.Clips.
func (d *Detector) Detect(tl *timeline.Timeline, feats []features.Features, opts DetectOptions) []Issue {
	if tl == nil || len(tl.Clips) == 0 || len(feats) != len(tl.Clips) {
		return nil
	}

	var issues []Issue
	issues = append(issues, d.detectPacing(tl, feats)...)
	issues = append(issues, d.detectContinuity(tl, feats)...)
	issues = append(issues, d.detectEnergy(tl, feats, opts.TargetCurve)...)
	issues = append(issues, d.detectNarrative(tl, feats)...)
	if opts.TargetMood != nil {
		issues = append(issues, d.detectMood(tl, feats, *opts.TargetMood)...)
	}

	if d.logger != nil && len(issues) > 0 {
		d.logger.Debug("flow scan complete", "clips", len(tl.Clips), "issues", len(issues))
	}
	return issues
}

// PacingBucket exposes the ideal duration range for a mean energy level.
func (d *Detector) PacingBucket(meanEnergy float64) (name string, min, max float64) {
	b := d.bucketFor(meanEnergy)
	return b.name, b.min, b.max
}

func (d *Detector) bucketFor(meanEnergy float64) pacingBucket {
	switch {
	case meanEnergy > d.tuning.FastEnergyThreshold:
		return pacingBucket{name: "fast", min: 0.5, max: 2.0}
	case meanEnergy > d.tuning.MediumEnergyThreshold:
		return pacingBucket{name: "medium", min: 2.0, max: 5.0}
	default:
		return pacingBucket{name: "slow", min: 5.0, max: 10.0}
	}
}

func (d *Detector) detectPacing(tl *timeline.Timeline, feats []features.Features) []Issue {
	bucket := d.bucketFor(meanEnergy(feats))

	var issues []Issue
	for i, clip := range tl.Clips {
		metrics := map[string]float64{
			"duration":  clip.Duration,
			"ideal_min": bucket.min,
			"ideal_max": bucket.max,
		}
		switch {
		case clip.Duration < bucket.min:
			issues = append(issues, Issue{
				Type:        IssuePacingTooFast,
				Severity:    clamp01(0.5 + (bucket.min-clip.Duration)/bucket.min),
				StartTime:   clip.StartTime,
				EndTime:     clip.EndTime(),
				ClipIndices: []int{i},
				Description: fmt.Sprintf("clip %d runs %.1fs, under the %s-pacing minimum of %.1fs", i, clip.Duration, bucket.name, bucket.min),
				Metrics:     metrics,
			})
		case clip.Duration > bucket.max:
			issues = append(issues, Issue{
				Type:        IssuePacingTooSlow,
				Severity:    clamp01(0.5 + (clip.Duration-bucket.max)/bucket.max),
				StartTime:   clip.StartTime,
				EndTime:     clip.EndTime(),
				ClipIndices: []int{i},
				Description: fmt.Sprintf("clip %d runs %.1fs, over the %s-pacing maximum of %.1fs", i, clip.Duration, bucket.name, bucket.max),
				Metrics:     metrics,
			})
		}
	}

	if len(tl.Clips) >= 3 {
		variance := durationVariance(tl.Clips)
		if variance > d.tuning.RhythmVarianceThreshold {
			indices := make([]int, len(tl.Clips))
			for i := range indices {
				indices[i] = i
			}
			issues = append(issues, Issue{
				Type:        IssueInconsistentRhythm,
				Severity:    clamp01(variance / 10.0),
				StartTime:   tl.Clips[0].StartTime,
				EndTime:     tl.Clips[len(tl.Clips)-1].EndTime(),
				ClipIndices: indices,
				Description: fmt.Sprintf("clip durations vary widely (variance %.1f)", variance),
				Metrics:     map[string]float64{"variance": variance},
			})
		}
	}
	return issues
}

func (d *Detector) detectContinuity(tl *timeline.Timeline, feats []features.Features) []Issue {
	var issues []Issue
	for i := 0; i+1 < len(tl.Clips); i++ {
		a, b := feats[i], feats[i+1]
		pairStart := tl.Clips[i].StartTime
		pairEnd := tl.Clips[i+1].EndTime()
		indices := []int{i, i + 1}

		dist := colorDistance(a.DominantColors, b.DominantColors)
		if dist > d.tuning.ColorDistanceThreshold {
			issues = append(issues, Issue{
				Type:        IssueColorDiscontinuity,
				Severity:    clamp01(dist / maxColorDistance),
				StartTime:   pairStart,
				EndTime:     pairEnd,
				ClipIndices: indices,
				Description: fmt.Sprintf("dominant colors jump between clips %d and %d (distance %.0f)", i, i+1, dist),
				Metrics:     map[string]float64{"color_distance": dist},
			})
		}

		if jump := math.Abs(a.Brightness - b.Brightness); jump > d.tuning.BrightnessJumpThreshold {
			issues = append(issues, Issue{
				Type:        IssueJarringTransition,
				Severity:    clamp01(jump),
				StartTime:   pairStart,
				EndTime:     pairEnd,
				ClipIndices: indices,
				Description: fmt.Sprintf("brightness jumps %.2f between clips %d and %d", jump, i, i+1),
				Metrics:     map[string]float64{"brightness_delta": jump},
			})
		}

		if delta := math.Abs(a.Motion - b.Motion); delta > d.tuning.MotionConflictThreshold {
			issues = append(issues, Issue{
				Type:        IssueMotionConflict,
				Severity:    clamp01(delta),
				StartTime:   pairStart,
				EndTime:     pairEnd,
				ClipIndices: indices,
				Description: fmt.Sprintf("motion intensity conflicts between clips %d and %d", i, i+1),
				Metrics:     map[string]float64{"motion_delta": delta},
			})
		}
	}
	return issues
}

func (d *Detector) detectEnergy(tl *timeline.Timeline, feats []features.Features, curve EnergyCurve) []Issue {
	var issues []Issue

	for i := 0; i+1 < len(tl.Clips); i++ {
		drop := feats[i].Energy - feats[i+1].Energy
		if drop > d.tuning.EnergyDropThreshold {
			issues = append(issues, Issue{
				Type:        IssueEnergyDrop,
				Severity:    clamp01(drop),
				StartTime:   tl.Clips[i].StartTime,
				EndTime:     tl.Clips[i+1].EndTime(),
				ClipIndices: []int{i, i + 1},
				Description: fmt.Sprintf("energy falls %.2f from clip %d to clip %d", drop, i, i+1),
				Metrics:     map[string]float64{"energy_drop": drop},
			})
		}
	}

	if curve.Valid() && tl.Duration > 0 {
		for i, clip := range tl.Clips {
			t := clip.Midpoint() / tl.Duration
			expected := curve.Value(t)
			deviation := math.Abs(feats[i].Energy - expected)
			if deviation > d.tuning.CurveDeviationThreshold {
				issues = append(issues, Issue{
					Type:        IssueEnergyCurveDeviation,
					Severity:    clamp01(0.5 * deviation),
					StartTime:   clip.StartTime,
					EndTime:     clip.EndTime(),
					ClipIndices: []int{i},
					Description: fmt.Sprintf("clip %d energy %.2f deviates from %s target %.2f", i, feats[i].Energy, curve, expected),
					Metrics:     map[string]float64{"expected": expected, "actual": feats[i].Energy},
				})
			}
		}
	}

	if tl.Duration > d.tuning.ClimaxMinDuration {
		maxEnergy := 0.0
		for _, f := range feats {
			if f.Energy > maxEnergy {
				maxEnergy = f.Energy
			}
		}
		if maxEnergy < d.tuning.ClimaxEnergyThreshold {
			issues = append(issues, Issue{
				Type:        IssueMissingClimax,
				Severity:    clamp01(0.3 + (d.tuning.ClimaxEnergyThreshold - maxEnergy)),
				StartTime:   0,
				EndTime:     tl.Duration,
				Description: fmt.Sprintf("no clip reaches climax energy %.1f (peak %.2f)", d.tuning.ClimaxEnergyThreshold, maxEnergy),
				Metrics: map[string]float64{
					"peak_energy":     maxEnergy,
					"insert_position": float64(climaxInsertIndex(tl)),
				},
			})
		}
	}
	return issues
}

func (d *Detector) detectNarrative(tl *timeline.Timeline, feats []features.Features) []Issue {
	var issues []Issue

	for i := 0; i+2 < len(tl.Clips); i++ {
		overlap := tagOverlap(feats[i].Tags, feats[i+2].Tags)
		if overlap > d.tuning.TagOverlapThreshold {
			issues = append(issues, Issue{
				Type:        IssueRepetitiveSequence,
				Severity:    clamp01(overlap),
				StartTime:   tl.Clips[i].StartTime,
				EndTime:     tl.Clips[i+2].EndTime(),
				ClipIndices: []int{i, i + 2},
				Description: fmt.Sprintf("clips %d and %d repeat near-identical content", i, i+2),
				Metrics:     map[string]float64{"tag_overlap": overlap},
			})
		}
	}

	if len(tl.Clips) > 3 {
		for i := 0; i+1 < len(tl.Clips); i++ {
			styleA := d.styleTag(feats[i].Tags)
			styleB := d.styleTag(feats[i+1].Tags)
			if styleA != "" && styleB != "" && styleA != styleB {
				issues = append(issues, Issue{
					Type:        IssueStyleMismatch,
					Severity:    0.4,
					StartTime:   tl.Clips[i].StartTime,
					EndTime:     tl.Clips[i+1].EndTime(),
					ClipIndices: []int{i, i + 1},
					Description: fmt.Sprintf("style shifts from %s to %s between clips %d and %d", styleA, styleB, i, i+1),
				})
			}
		}
	}
	return issues
}

func (d *Detector) detectMood(tl *timeline.Timeline, feats []features.Features, target float64) []Issue {
	var issues []Issue
	for i, clip := range tl.Clips {
		deviation := math.Abs(feats[i].Mood - target)
		if deviation > d.tuning.MoodMismatchThreshold {
			issues = append(issues, Issue{
				Type:        IssueMoodMismatch,
				Severity:    clamp01(0.5 * deviation),
				StartTime:   clip.StartTime,
				EndTime:     clip.EndTime(),
				ClipIndices: []int{i},
				Description: fmt.Sprintf("clip %d mood %.2f misses the target %.2f", i, feats[i].Mood, target),
				Metrics:     map[string]float64{"mood": feats[i].Mood, "target": target},
			})
		}
	}
	return issues
}

func (d *Detector) styleTag(tags []string) string {
	for _, tag := range tags {
		for _, style := range d.tuning.StyleTags {
			if tag == style {
				return tag
			}
		}
	}
	return ""
}

// climaxInsertIndex is the clip position closest to the 75% mark, where an
// inserted climax clip belongs.
func climaxInsertIndex(tl *timeline.Timeline) int {
	target := 0.75 * tl.Duration
	for i, clip := range tl.Clips {
		if clip.Midpoint() >= target {
			return i
		}
	}
	return len(tl.Clips)
}

// maxColorDistance is the RGB-space diagonal, used to normalize severity.
const maxColorDistance = 441.67

func colorDistance(a, b []features.RGB) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dr := float64(a[0].R) - float64(b[0].R)
	dg := float64(a[0].G) - float64(b[0].G)
	db := float64(a[0].B) - float64(b[0].B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func meanEnergy(feats []features.Features) float64 {
	if len(feats) == 0 {
		return 0
	}
	var sum float64
	for _, f := range feats {
		sum += f.Energy
	}
	return sum / float64(len(feats))
}

func durationVariance(clips []timeline.Clip) float64 {
	var sum float64
	for _, c := range clips {
		sum += c.Duration
	}
	mean := sum / float64(len(clips))
	var sq float64
	for _, c := range clips {
		d := c.Duration - mean
		sq += d * d
	}
	return sq / float64(len(clips))
}

// tagOverlap is the Jaccard overlap of two tag sets.
func tagOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, tag := range a {
		set[tag] = true
	}
	shared := 0
	union := len(set)
	for _, tag := range b {
		if set[tag] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
