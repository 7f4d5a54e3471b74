// Package analysis is the produced surface of the flow pipeline: analyze a
// timeline for issues and suggestions, aggregate them into a health report,
// and optimize under a chosen strategy.
package analysis

import (
	"context"
	"log/slog"
	"sort"

	"github.com/flowlens/flowlens-agent/internal/composition"
	"github.com/flowlens/flowlens-agent/internal/features"
	"github.com/flowlens/flowlens-agent/internal/flow"
	"github.com/flowlens/flowlens-agent/internal/optimizer"
	"github.com/flowlens/flowlens-agent/internal/timeline"
)

// AnalyzeOptions carries the optional analysis targets.
type AnalyzeOptions struct {
	TargetMood   *float64
	TargetEnergy flow.EnergyCurve
}

// Report aggregates one analysis pass. HealthScore is 0-100.
type Report struct {
	TotalIssues         int                         `json:"total_issues"`
	TotalSuggestions    int                         `json:"total_suggestions"`
	IssueCounts         map[flow.IssueType]int      `json:"issue_counts"`
	AverageSeverity     map[flow.IssueType]float64  `json:"average_severity"`
	ExpectedImprovement map[flow.ActionType]float64 `json:"expected_improvement"`
	HealthScore         float64                     `json:"health_score"`
}

// Service wires the pipeline stages together. It is safe for concurrent
// use; the only shared state is the idempotent feature cache.
type Service struct {
	extractor *features.Extractor
	detector  *flow.Detector
	generator *flow.Generator
	optimizer *optimizer.Optimizer
	scorer    *composition.Scorer
	logger    *slog.Logger
}

func NewService(extractor *features.Extractor, detector *flow.Detector, generator *flow.Generator, opt *optimizer.Optimizer, scorer *composition.Scorer, logger *slog.Logger) *Service {
	return &Service{
		extractor: extractor,
		detector:  detector,
		generator: generator,
		optimizer: opt,
		scorer:    scorer,
		logger:    logger,
	}
}

// Analyze extracts features, detects issues, and generates suggestions.
// Issues come back sorted by severity descending, suggestions by priority
// descending. Re-running on an unmodified timeline is idempotent.
func (s *Service) Analyze(ctx context.Context, tl *timeline.Timeline, opts AnalyzeOptions) ([]flow.Issue, []flow.Suggestion) {
	feats := s.extractor.ExtractAll(ctx, tl.Clips)
	issues := s.detector.Detect(tl, feats, flow.DetectOptions{
		TargetMood:  opts.TargetMood,
		TargetCurve: opts.TargetEnergy,
	})
	suggestions := s.generator.Generate(issues)

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity > issues[j].Severity
	})
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Priority > suggestions[j].Priority
	})

	if s.logger != nil {
		s.logger.Info("timeline analyzed", "timeline_id", tl.ID, "issues", len(issues), "suggestions", len(suggestions))
	}
	return issues, suggestions
}

// Score aggregates issues and suggestions into a report. An issue-free
// timeline scores a perfect 100.
func (s *Service) Score(issues []flow.Issue, suggestions []flow.Suggestion) Report {
	report := Report{
		TotalIssues:         len(issues),
		TotalSuggestions:    len(suggestions),
		IssueCounts:         make(map[flow.IssueType]int),
		AverageSeverity:     make(map[flow.IssueType]float64),
		ExpectedImprovement: make(map[flow.ActionType]float64),
	}

	var severitySum float64
	for _, issue := range issues {
		report.IssueCounts[issue.Type]++
		report.AverageSeverity[issue.Type] += issue.Severity
		severitySum += issue.Severity
	}
	for kind, total := range report.AverageSeverity {
		report.AverageSeverity[kind] = total / float64(report.IssueCounts[kind])
	}
	for _, sug := range suggestions {
		report.ExpectedImprovement[sug.Action] += sug.ExpectedImprovement
	}

	if len(issues) == 0 {
		report.HealthScore = 100.0
	} else {
		report.HealthScore = 100.0 * (1.0 - severitySum/float64(len(issues)))
	}
	return report
}

// Optimize applies a strategy-filtered suggestion subset and scores the
// improvement.
func (s *Service) Optimize(ctx context.Context, tl *timeline.Timeline, opts optimizer.Options) *optimizer.Result {
	return s.optimizer.Optimize(ctx, tl, opts)
}

// ScoreComposition scores the framing of one still-image asset. An
// undecodable asset yields zero metrics, never an error.
func (s *Service) ScoreComposition(path string) composition.Metrics {
	return s.scorer.ScoreFile(path)
}
