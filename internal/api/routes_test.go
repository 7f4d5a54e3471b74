package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flowlens/flowlens-agent/internal/analysis"
	"github.com/flowlens/flowlens-agent/internal/composition"
	"github.com/flowlens/flowlens-agent/internal/features"
	"github.com/flowlens/flowlens-agent/internal/flow"
	"github.com/flowlens/flowlens-agent/internal/optimizer"
	"github.com/flowlens/flowlens-agent/internal/store"
	"github.com/flowlens/flowlens-agent/internal/timeline"
)

const testToken = "test-token"

func newTestRouter(t *testing.T) (http.Handler, store.Repository) {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "flowlens.db"), nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := store.NewRepository(db.Conn())
	if err := repo.SetConfig(context.Background(), AuthTokenConfigKey, testToken); err != nil {
		t.Fatalf("seed auth token: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	extractor := features.NewExtractor(repo, nil, nil, 2, logger)
	detector := flow.NewDetector(flow.DefaultTuning(), logger)
	generator := flow.NewGenerator(logger)
	opt := optimizer.New(extractor, detector, generator, logger)
	svc := analysis.NewService(extractor, detector, generator, opt, composition.NewScorer(logger), logger)

	router := NewRouter(ServerConfig{
		Port:       0,
		Analysis:   svc,
		Repository: repo,
		Logger:     logger,
		StartTime:  time.Now(),
		Version:    "test",
	})
	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createTimeline(t *testing.T, router http.Handler, durations ...float64) string {
	t.Helper()
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

	rr := doJSON(t, router, http.MethodPost, "/timelines", CreateTimelineRequest{Name: "test cut", Timeline: tl}, true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create timeline status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp CreateTimelineResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.TimelineID
}

func TestHealth_NoAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/health", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestStatus(t *testing.T) {
	router, _ := newTestRouter(t)
	createTimeline(t, router, 3, 3)

	rr := doJSON(t, router, http.MethodGet, "/status", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TimelinesCount != 1 {
		t.Errorf("timelines count = %d, want 1", resp.TimelinesCount)
	}
}

func TestTimelineLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createTimeline(t, router, 3, 4)

	rr := doJSON(t, router, http.MethodGet, "/timelines/"+id, nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/timelines", nil, true)
	var list TimelinesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Timelines) != 1 || list.Timelines[0].Clips != 2 || list.Timelines[0].Duration != 7 {
		t.Errorf("list = %+v", list.Timelines)
	}

	rr = doJSON(t, router, http.MethodDelete, "/timelines/"+id, nil, true)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/timelines/"+id, nil, true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestCreateTimeline_Invalid(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/timelines", map[string]any{"name": "no timeline"}, true)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing timeline status = %d, want 400", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/timelines", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rr.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)
	id := createTimeline(t, router, 0.3, 3, 3, 12)

	rr := doJSON(t, router, http.MethodPost, "/timelines/"+id+"/analyze", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("analyze status = %d: %s", rr.Code, rr.Body.String())
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Issues) == 0 {
		t.Error("expected issues for out-of-range pacing")
	}
	if resp.Report.TotalIssues != len(resp.Issues) {
		t.Errorf("report totals %d != issues %d", resp.Report.TotalIssues, len(resp.Issues))
	}
	if resp.ReportID == "" {
		t.Error("report was not persisted")
	}

	reports, err := repo.ListReports(context.Background(), id, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Errorf("persisted reports = %d, want 1", len(reports))
	}
}

func TestAnalyzeEndpoint_InvalidTargets(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createTimeline(t, router, 3, 3)

	rr := doJSON(t, router, http.MethodPost, "/timelines/"+id+"/analyze",
		map[string]any{"target_energy": "spiral"}, true)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad target_energy status = %d, want 400", rr.Code)
	}

	rr = doJSON(t, router, http.MethodPost, "/timelines/"+id+"/analyze",
		map[string]any{"target_mood": 5.0}, true)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("out-of-range target_mood status = %d, want 400", rr.Code)
	}
}

func TestOptimizeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createTimeline(t, router, 0.3, 3, 3, 12)

	rr := doJSON(t, router, http.MethodPost, "/timelines/"+id+"/optimize",
		OptimizeRequest{Strategy: "balanced"}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("optimize status = %d: %s", rr.Code, rr.Body.String())
	}

	var resp OptimizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result == nil || len(resp.Result.ChangesMade) == 0 {
		t.Errorf("result = %+v, want applied changes", resp.Result)
	}
	if resp.Result.ImprovementScore < 0 || resp.Result.ImprovementScore > 1 {
		t.Errorf("improvement = %v", resp.Result.ImprovementScore)
	}
}

func TestOptimizeEndpoint_InvalidStrategy(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createTimeline(t, router, 3, 3)

	for _, body := range []any{
		OptimizeRequest{Strategy: "drastic"},
		map[string]any{},
	} {
		rr := doJSON(t, router, http.MethodPost, "/timelines/"+id+"/optimize", body, true)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("invalid strategy %v status = %d, want 400", body, rr.Code)
		}
	}
}

func TestExportEDLEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createTimeline(t, router, 2, 2)

	rr := doJSON(t, router, http.MethodGet, "/timelines/"+id+"/export/edl", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q, want text/plain", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "TITLE: test cut") || !strings.Contains(body, "001  AX") {
		t.Errorf("EDL body missing expected lines: %q", body)
	}
}

func TestPutMetadataEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPut, "/assets/asset-1/metadata",
		MetadataRequest{Metadata: map[string]any{"brightness": 0.9}}, true)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("put metadata status = %d: %s", rr.Code, rr.Body.String())
	}

	meta, err := repo.GetMetadata(context.Background(), "asset-1")
	if err != nil {
		t.Fatal(err)
	}
	if meta["brightness"] != 0.9 {
		t.Errorf("stored metadata = %v", meta)
	}
}

func TestCompositionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/composition/score",
		CompositionRequest{AssetPath: "/nonexistent/frame.png"}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("composition status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp CompositionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Metrics.Archetype != composition.ArchetypeUnknown {
		t.Errorf("archetype = %s, want unknown for a missing asset", resp.Metrics.Archetype)
	}

	rr = doJSON(t, router, http.MethodPost, "/composition/score", map[string]any{}, true)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing asset_path status = %d, want 400", rr.Code)
	}
}

func TestUnknownTimeline_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/timelines/missing", nil},
		{http.MethodPost, "/timelines/missing/analyze", nil},
		{http.MethodPost, "/timelines/missing/optimize", OptimizeRequest{Strategy: "balanced"}},
		{http.MethodGet, "/timelines/missing/export/edl", nil},
	} {
		rr := doJSON(t, router, tc.method, tc.path, tc.body, true)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.path, rr.Code)
		}
	}
}
