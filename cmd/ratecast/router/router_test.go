package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fxlab/ratecast/pkg/diagnostics"
	"github.com/fxlab/ratecast/pkg/models"
	"github.com/fxlab/ratecast/pkg/report"
	"github.com/fxlab/ratecast/pkg/series"
	"github.com/fxlab/ratecast/pkg/storage"
	"github.com/fxlab/ratecast/pkg/tuner"
)

// testDiagnostics analyzes a synthetic weekly series so the snapshot
// carries a full summary, NaN decomposition edges included.
func testDiagnostics(t *testing.T) *diagnostics.Summary {
	t.Helper()

	values := make([]float64, 70)
	times := make([]time.Time, 70)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range values {
		values[i] = 50 + 5*math.Sin(2*math.Pi*float64(i)/7) + 0.05*float64(i)
		times[i] = start.AddDate(0, 0, i)
	}
	s, err := series.New("usd-eur", times, values)
	if err != nil {
		t.Fatalf("failed to build series: %v", err)
	}

	summary := diagnostics.Analyze(s, 7, 0)
	return &summary
}

func testSnapshot(series string, generatedAt time.Time) storage.Snapshot {
	rep := report.Build(series, map[string]models.Record{
		models.NameRandomForest: {MSE: 0.04, MAE: 0.15, RMSE: 0.2, MAPE: 1.2, MAPEDefined: true},
	}, map[string]string{
		models.NameSARIMA: "non-invertible MA polynomial",
	})
	rep.GeneratedAt = generatedAt

	order := models.Order{P: 1, D: 1, Q: 1}

	return storage.Snapshot{
		SeriesName:  series,
		GeneratedAt: generatedAt,
		BestParams: storage.BestParams{
			SARIMAOrder: &order,
			SARIMAAIC:   -212.4,
		},
		Report: rep,
		Trials: []tuner.Trial{
			{Index: 0, Family: models.NameSARIMA, Params: []tuner.Param{{Name: "p", Value: 1}}, Score: -212.4, Success: true},
			{Index: 1, Family: models.NameSARIMA, Params: []tuner.Param{{Name: "p", Value: 2}}, Success: false, Reason: "series too short"},
		},
	}
}

func newMux(t *testing.T, snapshots ...storage.Snapshot) *http.ServeMux {
	t.Helper()

	store := storage.NewMemoryStore()
	for _, s := range snapshots {
		if err := store.Put(context.Background(), s); err != nil {
			t.Fatalf("failed to put snapshot: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return SetupRoutes(store, "usd-eur", 2*time.Minute, logger)
}

func TestHealthEndpoint(t *testing.T) {
	mux := newMux(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	if body := w.Body.String(); body != "OK" {
		t.Errorf("body = %q, want %q", body, "OK")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newMux(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	if contentType := w.Header().Get("Content-Type"); contentType == "" {
		t.Error("Content-Type header should be set for metrics endpoint")
	}
}

func TestGetReport_NotFound(t *testing.T) {
	mux := newMux(t)

	req := httptest.NewRequest(http.MethodGet, "/report/latest?series=nonexistent", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetReport_InvalidSeriesName(t *testing.T) {
	mux := newMux(t)

	req := httptest.NewRequest(http.MethodGet, "/report/latest?series=usd%2Feur", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetReport_DefaultSeries(t *testing.T) {
	snapshot := testSnapshot("usd-eur", time.Now())
	snapshot.Diagnostics = testDiagnostics(t)
	if !snapshot.Diagnostics.Decomposition.Available {
		t.Fatalf("decomposition unavailable: %s", snapshot.Diagnostics.Decomposition.Reason)
	}
	mux := newMux(t, snapshot)

	req := httptest.NewRequest(http.MethodGet, "/report/latest", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	if contentType := w.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	if stale := w.Header().Get("X-Ratecast-Stale"); stale == "true" {
		t.Error("fresh snapshot should not be marked stale")
	}

	var resp struct {
		Series      string               `json:"series"`
		Diagnostics *diagnostics.Summary `json:"diagnostics"`
		Report      *report.Report       `json:"report"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Series != "usd-eur" {
		t.Errorf("series = %q, want %q", resp.Series, "usd-eur")
	}
	if resp.Diagnostics == nil || !resp.Diagnostics.Decomposition.Available {
		t.Error("diagnostics with an available decomposition should survive the API")
	}
	if resp.Report == nil || len(resp.Report.Entries) != 2 {
		t.Fatalf("report entries = %+v, want 2 entries", resp.Report)
	}
	if resp.Report.Entries[0].Name != models.NameRandomForest {
		t.Errorf("top entry = %q, want %q", resp.Report.Entries[0].Name, models.NameRandomForest)
	}
}

func TestGetReport_Stale(t *testing.T) {
	mux := newMux(t, testSnapshot("usd-eur", time.Now().Add(-5*time.Minute)))

	req := httptest.NewRequest(http.MethodGet, "/report/latest", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	if stale := w.Header().Get("X-Ratecast-Stale"); stale != "true" {
		t.Error("old snapshot should be marked stale")
	}
}

func TestGetTrials(t *testing.T) {
	mux := newMux(t, testSnapshot("usd-eur", time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/trials?series=usd-eur", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Series string        `json:"series"`
		Trials []tuner.Trial `json:"trials"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Trials) != 2 {
		t.Fatalf("trials = %d, want 2", len(resp.Trials))
	}
	if resp.Trials[1].Success || resp.Trials[1].Reason == "" {
		t.Errorf("failed trial should carry its reason, got %+v", resp.Trials[1])
	}
}

func TestGetTrials_NotFound(t *testing.T) {
	mux := newMux(t)

	req := httptest.NewRequest(http.MethodGet, "/trials?series=nonexistent", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}
