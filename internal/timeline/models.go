// Package timeline defines the in-memory edit model the analysis pipeline
// operates on: an ordered sequence of placed clips with absolute timing.
package timeline

import (
	"crypto/rand"
	"fmt"
)

// ContiguityTolerance is the allowed drift, in seconds, between one clip's
// end and the next clip's start.
const ContiguityTolerance = 0.01

type Transition struct {
	Type     string  `json:"type"`
	Duration float64 `json:"duration"`
}

type Effect struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

type Marker struct {
	Time  float64 `json:"time"`
	Label string  `json:"label"`
}

// Clip is one placed instance of a source asset.
type Clip struct {
	AssetID       string         `json:"asset_id"`
	AssetPath     string         `json:"asset_path,omitempty"`
	StartTime     float64        `json:"start_time"`
	Duration      float64        `json:"duration"`
	InPoint       *float64       `json:"in_point,omitempty"`
	OutPoint      *float64       `json:"out_point,omitempty"`
	TransitionIn  *Transition    `json:"transition_in,omitempty"`
	TransitionOut *Transition    `json:"transition_out,omitempty"`
	Effects       []Effect       `json:"effects,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (c Clip) EndTime() float64 {
	return c.StartTime + c.Duration
}

// Midpoint returns the clip's temporal center.
func (c Clip) Midpoint() float64 {
	return c.StartTime + c.Duration/2
}

// Timeline is one assembled edit. Clip order is significant.
type Timeline struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Clips     []Clip         `json:"clips"`
	Duration  float64        `json:"duration"`
	FrameRate float64        `json:"frame_rate"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Markers   []Marker       `json:"markers,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DeepCopy returns an independent copy of the timeline. The optimizer
// mutates only copies, never its input.
func (t *Timeline) DeepCopy() *Timeline {
	out := &Timeline{
		ID:        t.ID,
		Name:      t.Name,
		Duration:  t.Duration,
		FrameRate: t.FrameRate,
		Width:     t.Width,
		Height:    t.Height,
		Metadata:  copyMap(t.Metadata),
	}
	if t.Clips != nil {
		out.Clips = make([]Clip, len(t.Clips))
		for i, c := range t.Clips {
			out.Clips[i] = c.deepCopy()
		}
	}
	if t.Markers != nil {
		out.Markers = make([]Marker, len(t.Markers))
		copy(out.Markers, t.Markers)
	}
	return out
}

func (c Clip) deepCopy() Clip {
	out := c
	out.InPoint = copyFloat(c.InPoint)
	out.OutPoint = copyFloat(c.OutPoint)
	if c.TransitionIn != nil {
		ti := *c.TransitionIn
		out.TransitionIn = &ti
	}
	if c.TransitionOut != nil {
		to := *c.TransitionOut
		out.TransitionOut = &to
	}
	if c.Effects != nil {
		out.Effects = make([]Effect, len(c.Effects))
		for i, e := range c.Effects {
			out.Effects[i] = Effect{Type: e.Type, Params: copyMap(e.Params)}
		}
	}
	out.Metadata = copyMap(c.Metadata)
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RecomputeStartTimes makes the clip sequence contiguous from the first
// clip's start, and refreshes the total duration.
func (t *Timeline) RecomputeStartTimes() {
	if len(t.Clips) == 0 {
		t.Duration = 0
		return
	}
	cursor := t.Clips[0].StartTime
	for i := range t.Clips {
		t.Clips[i].StartTime = cursor
		cursor += t.Clips[i].Duration
	}
	t.Duration = cursor - t.Clips[0].StartTime
}

// ContiguityViolations reports the indices i where clip i's end drifts from
// clip i+1's start by more than the tolerance.
func (t *Timeline) ContiguityViolations() []int {
	var out []int
	for i := 0; i+1 < len(t.Clips); i++ {
		gap := t.Clips[i+1].StartTime - t.Clips[i].EndTime()
		if gap > ContiguityTolerance || gap < -ContiguityTolerance {
			out = append(out, i)
		}
	}
	return out
}

// ClipDurationsSum returns the summed clip durations, which should match
// Duration for a contiguous timeline.
func (t *Timeline) ClipDurationsSum() float64 {
	var sum float64
	for _, c := range t.Clips {
		sum += c.Duration
	}
	return sum
}

// NewID returns a random identifier usable for markers and scratch objects.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
