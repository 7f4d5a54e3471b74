package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/flowlens/flowlens-agent/internal/analysis"
	"github.com/flowlens/flowlens-agent/internal/export"
	"github.com/flowlens/flowlens-agent/internal/flow"
	"github.com/flowlens/flowlens-agent/internal/optimizer"
)

var validate = validator.New()

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/timelines", createTimelineHandler(cfg))
		r.Get("/timelines", listTimelinesHandler(cfg))
		r.Get("/timelines/{id}", getTimelineHandler(cfg))
		r.Delete("/timelines/{id}", deleteTimelineHandler(cfg))
		r.Post("/timelines/{id}/analyze", analyzeHandler(cfg))
		r.Post("/timelines/{id}/optimize", optimizeHandler(cfg))
		r.Get("/timelines/{id}/export/edl", exportEDLHandler(cfg))
		r.Put("/assets/{id}/metadata", putMetadataHandler(cfg))
		r.Post("/composition/score", compositionHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		timelines, _ := cfg.Repository.CountTimelines(ctx)
		reports, _ := cfg.Repository.CountReports(ctx)

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:          "idle",
			TimelinesCount: timelines,
			ReportsCount:   reports,
		})
	}
}

func createTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTimelineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validate.Struct(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		if req.Name != "" {
			req.Timeline.Name = req.Name
		}
		rec, err := cfg.Repository.SaveTimeline(r.Context(), req.Timeline)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusCreated, CreateTimelineResponse{TimelineID: rec.ID})
	}
}

func listTimelinesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Repository.ListTimelines(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list timelines", "INTERNAL_ERROR")
			return
		}

		resp := TimelinesResponse{Timelines: make([]TimelineSummary, len(records))}
		for i, rec := range records {
			resp.Timelines[i] = TimelineSummary{
				ID:        rec.ID,
				Name:      rec.Name,
				Clips:     len(rec.Timeline.Clips),
				Duration:  rec.Timeline.Duration,
				UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Repository.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "timeline not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	}
}

func deleteTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Repository.DeleteTimeline(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func analyzeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Repository.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "timeline not found", "NOT_FOUND")
			return
		}

		var req AnalyzeRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}
		if err := validate.Struct(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		issues, suggestions := cfg.Analysis.Analyze(r.Context(), rec.Timeline, analysis.AnalyzeOptions{
			TargetMood:   req.TargetMood,
			TargetEnergy: flow.EnergyCurve(req.TargetEnergy),
		})
		report := cfg.Analysis.Score(issues, suggestions)

		resp := AnalyzeResponse{Issues: issues, Suggestions: suggestions, Report: report}
		if saved, err := cfg.Repository.SaveReport(r.Context(), rec.ID, report); err != nil {
			cfg.Logger.Warn("failed to persist analysis report", "timeline_id", rec.ID, "error", err)
		} else {
			resp.ReportID = saved.ID
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func optimizeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Repository.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "timeline not found", "NOT_FOUND")
			return
		}

		var req OptimizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validate.Struct(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		result := cfg.Analysis.Optimize(r.Context(), rec.Timeline, optimizer.Options{
			Strategy:            optimizer.Strategy(req.Strategy),
			PreserveClipIndices: req.PreserveClipIndices,
			TargetDuration:      req.TargetDuration,
		})
		WriteJSON(w, http.StatusOK, OptimizeResponse{Result: result})
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := cfg.Repository.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "timeline not found", "NOT_FOUND")
			return
		}

		title := rec.Name
		if title == "" {
			title = rec.ID
		}
		edl := export.GenerateEDL(rec.Timeline, title)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func putMetadataHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID := chi.URLParam(r, "id")

		var req MetadataRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validate.Struct(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		if err := cfg.Repository.PutMetadata(r.Context(), assetID, req.Metadata); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func compositionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompositionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validate.Struct(req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		metrics := cfg.Analysis.ScoreComposition(req.AssetPath)
		WriteJSON(w, http.StatusOK, CompositionResponse{Metrics: metrics})
	}
}
