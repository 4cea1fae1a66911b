// Package router configures HTTP routes for the ratecast HTTP API.
//
// In serve mode ratecast exposes an HTTP server on port 8081 (configurable)
// that provides run-snapshot retrieval, health checks, and Prometheus
// metrics. This package sets up the routes for that HTTP server.
//
// Routes configured:
//   - GET /report/latest?series=<name> - Ranked evaluation report of the latest run
//   - GET /trials?series=<name> - Full hyperparameter trial log of the latest run
//   - GET /healthz - Health check endpoint (returns 200 OK)
//   - GET /metrics - Prometheus metrics endpoint
//
// The series parameter defaults to the configured series name. Snapshots
// older than the stale threshold include an X-Ratecast-Stale header.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fxlab/ratecast/pkg/httpx"
	"github.com/fxlab/ratecast/pkg/storage"
)

var seriesNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// SetupRoutes configures HTTP endpoints for the pipeline.
func SetupRoutes(store storage.Store, defaultSeries string, staleAfter time.Duration, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.Handle("/healthz", httpx.HealthHandler())

	// Latest ranked report
	mux.HandleFunc("/report/latest", handleGetReport(store, defaultSeries, staleAfter, logger))

	// Latest trial log
	mux.HandleFunc("/trials", handleGetTrials(store, defaultSeries, logger))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// getSnapshot resolves the series name and loads its latest snapshot,
// writing the error response itself when anything goes wrong.
func getSnapshot(w http.ResponseWriter, r *http.Request, store storage.Store, defaultSeries string, logger *slog.Logger) (storage.Snapshot, bool) {
	series := r.URL.Query().Get("series")
	if series == "" {
		series = defaultSeries
	}

	if !seriesNameRegex.MatchString(series) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid series name format")
		return storage.Snapshot{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	snapshot, found, err := store.GetLatest(ctx, series)
	if err != nil {
		logger.Error("failed to get snapshot", "series", series, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return storage.Snapshot{}, false
	}

	if !found {
		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("snapshot not found for series %q", series))
		return storage.Snapshot{}, false
	}

	return snapshot, true
}

// handleGetReport returns a handler for GET /report/latest?series=<name>.
func handleGetReport(store storage.Store, defaultSeries string, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := getSnapshot(w, r, store, defaultSeries, logger)
		if !ok {
			return
		}

		if time.Since(snapshot.GeneratedAt) > staleAfter {
			w.Header().Set("X-Ratecast-Stale", "true")
		}

		resp := map[string]any{
			"series":      snapshot.SeriesName,
			"generatedAt": snapshot.GeneratedAt.Format(time.RFC3339),
			"diagnostics": snapshot.Diagnostics,
			"bestParams":  snapshot.BestParams,
			"report":      snapshot.Report,
		}

		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleGetTrials returns a handler for GET /trials?series=<name>.
func handleGetTrials(store storage.Store, defaultSeries string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, ok := getSnapshot(w, r, store, defaultSeries, logger)
		if !ok {
			return
		}

		resp := map[string]any{
			"series":      snapshot.SeriesName,
			"generatedAt": snapshot.GeneratedAt.Format(time.RFC3339),
			"trials":      snapshot.Trials,
		}

		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
