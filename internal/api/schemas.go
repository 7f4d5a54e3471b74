package api

import (
	"github.com/flowlens/flowlens-agent/internal/analysis"
	"github.com/flowlens/flowlens-agent/internal/composition"
	"github.com/flowlens/flowlens-agent/internal/flow"
	"github.com/flowlens/flowlens-agent/internal/optimizer"
	"github.com/flowlens/flowlens-agent/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State          string `json:"state"`
	TimelinesCount int    `json:"timelines_count"`
	ReportsCount   int    `json:"reports_count"`
}

type CreateTimelineRequest struct {
	Name     string             `json:"name,omitempty"`
	Timeline *timeline.Timeline `json:"timeline" validate:"required"`
}

type CreateTimelineResponse struct {
	TimelineID string `json:"timeline_id"`
}

type TimelineSummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Clips     int     `json:"clips"`
	Duration  float64 `json:"duration"`
	UpdatedAt string  `json:"updated_at"`
}

type TimelinesResponse struct {
	Timelines []TimelineSummary `json:"timelines"`
}

type AnalyzeRequest struct {
	TargetMood   *float64 `json:"target_mood,omitempty" validate:"omitempty,gte=-1,lte=1"`
	TargetEnergy string   `json:"target_energy,omitempty" validate:"omitempty,oneof=rising_action falling_action wave steady climactic"`
}

type AnalyzeResponse struct {
	Issues      []flow.Issue      `json:"issues"`
	Suggestions []flow.Suggestion `json:"suggestions"`
	Report      analysis.Report   `json:"report"`
	ReportID    string            `json:"report_id,omitempty"`
}

type OptimizeRequest struct {
	Strategy            string   `json:"strategy" validate:"required,oneof=minimal balanced aggressive preserve_intent energy_focused narrative_focused"`
	PreserveClipIndices []int    `json:"preserve_clip_indices,omitempty" validate:"omitempty,dive,gte=0"`
	TargetDuration      *float64 `json:"target_duration,omitempty" validate:"omitempty,gt=0"`
}

type OptimizeResponse struct {
	Result *optimizer.Result `json:"result"`
}

type MetadataRequest struct {
	Metadata map[string]any `json:"metadata" validate:"required"`
}

type CompositionRequest struct {
	AssetPath string `json:"asset_path" validate:"required"`
}

type CompositionResponse struct {
	Metrics composition.Metrics `json:"metrics"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
