package timeline

import (
	"math"
	"testing"
)

func makeTimeline(durations ...float64) *Timeline {
	tl := &Timeline{FrameRate: 30, Width: 1920, Height: 1080}
	start := 0.0
	for i, d := range durations {
		tl.Clips = append(tl.Clips, Clip{
			AssetID:   string(rune('a' + i)),
			StartTime: start,
			Duration:  d,
		})
		start += d
	}
	tl.Duration = start
	return tl
}

func TestDeepCopy_Independent(t *testing.T) {
	in := 1.5
	tl := makeTimeline(2, 3)
	tl.Clips[0].InPoint = &in
	tl.Clips[0].TransitionOut = &Transition{Type: "crossfade", Duration: 1}
	tl.Clips[0].Effects = []Effect{{Type: "blur", Params: map[string]any{"radius": 2.0}}}
	tl.Clips[0].Metadata = map[string]any{"name": "opening"}
	tl.Markers = []Marker{{Time: 1, Label: "beat"}}

	cp := tl.DeepCopy()

	cp.Clips[0].Duration = 9
	*cp.Clips[0].InPoint = 7
	cp.Clips[0].TransitionOut.Duration = 5
	cp.Clips[0].Effects[0].Params["radius"] = 99.0
	cp.Clips[0].Metadata["name"] = "changed"
	cp.Markers[0].Label = "changed"

	if tl.Clips[0].Duration != 2 {
		t.Errorf("original duration mutated: %v", tl.Clips[0].Duration)
	}
	if *tl.Clips[0].InPoint != 1.5 {
		t.Errorf("original in point mutated: %v", *tl.Clips[0].InPoint)
	}
	if tl.Clips[0].TransitionOut.Duration != 1 {
		t.Errorf("original transition mutated")
	}
	if tl.Clips[0].Effects[0].Params["radius"] != 2.0 {
		t.Errorf("original effect params mutated")
	}
	if tl.Clips[0].Metadata["name"] != "opening" {
		t.Errorf("original metadata mutated")
	}
	if tl.Markers[0].Label != "beat" {
		t.Errorf("original marker mutated")
	}
}

func TestRecomputeStartTimes(t *testing.T) {
	tl := makeTimeline(2, 3, 4)
	tl.Clips[1].StartTime = 99 // introduce drift
	tl.Clips[2].StartTime = 1

	tl.RecomputeStartTimes()

	wantStarts := []float64{0, 2, 5}
	for i, want := range wantStarts {
		if got := tl.Clips[i].StartTime; math.Abs(got-want) > 1e-9 {
			t.Errorf("clip %d start = %v, want %v", i, got, want)
		}
	}
	if math.Abs(tl.Duration-9) > 1e-9 {
		t.Errorf("duration = %v, want 9", tl.Duration)
	}
}

func TestContiguityViolations(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Timeline)
		want  int
	}{
		{name: "contiguous", setup: func(tl *Timeline) {}, want: 0},
		{name: "within tolerance", setup: func(tl *Timeline) {
			tl.Clips[1].StartTime += 0.005
		}, want: 0},
		{name: "gap", setup: func(tl *Timeline) {
			tl.Clips[1].StartTime += 0.5
		}, want: 1},
		{name: "overlap", setup: func(tl *Timeline) {
			tl.Clips[2].StartTime -= 0.2
		}, want: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tl := makeTimeline(2, 3, 4)
			tc.setup(tl)
			if got := len(tl.ContiguityViolations()); got != tc.want {
				t.Errorf("violations = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestClipEndAndMidpoint(t *testing.T) {
	c := Clip{StartTime: 2, Duration: 4}
	if c.EndTime() != 6 {
		t.Errorf("EndTime = %v, want 6", c.EndTime())
	}
	if c.Midpoint() != 4 {
		t.Errorf("Midpoint = %v, want 4", c.Midpoint())
	}
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Errorf("NewID returned duplicates: %s", a)
	}
	if len(a) == 0 {
		t.Error("NewID returned empty string")
	}
}
