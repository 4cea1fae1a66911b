// Package metrics provides Prometheus metrics instrumentation for the
// ratecast pipeline.
//
// It exposes operational metrics about pipeline performance, including the
// duration of each stage (load, diagnose, tune, evaluate), hyperparameter
// trial outcomes, the winning scores of the latest run, and error tracking.
// All metrics are exposed via the /metrics HTTP endpoint for Prometheus
// scraping.
//
// Metrics exposed:
//   - ratecast_load_seconds: Histogram of series ingestion duration
//   - ratecast_diagnose_seconds: Histogram of diagnostics duration
//   - ratecast_tune_seconds: Histogram of hyperparameter search duration
//   - ratecast_evaluate_seconds: Histogram of fit/evaluate/report duration
//   - ratecast_trials_total: Counter of trials by family and outcome
//   - ratecast_best_aic: Gauge of the winning SARIMA AIC
//   - ratecast_best_rmse: Gauge of the top-ranked model's test RMSE
//   - ratecast_errors_total: Counter of errors by component and reason
//
// All metrics include the series label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	LoadSeconds     prometheus.Histogram
	DiagnoseSeconds prometheus.Histogram
	TuneSeconds     prometheus.Histogram
	EvaluateSeconds prometheus.Histogram
	TrialsTotal     *prometheus.CounterVec
	BestAIC         prometheus.Gauge
	BestRMSE        prometheus.Gauge
	ErrorsTotal     *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(series string) *Metrics {
	return &Metrics{
		LoadSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "ratecast_load_seconds",
			Help: "Time spent fetching and validating the series",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
			Buckets: prometheus.DefBuckets,
		}),

		DiagnoseSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "ratecast_diagnose_seconds",
			Help: "Time spent on stationarity, autocorrelation and decomposition diagnostics",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
			Buckets: prometheus.DefBuckets,
		}),

		TuneSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "ratecast_tune_seconds",
			Help: "Time spent searching the hyperparameter grids",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		EvaluateSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "ratecast_evaluate_seconds",
			Help: "Time spent fitting the final models and building the report",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
			Buckets: prometheus.DefBuckets,
		}),

		TrialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ratecast_trials_total",
			Help: "Total number of hyperparameter trials by family and outcome",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
		}, []string{"family", "outcome"}),

		BestAIC: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ratecast_best_aic",
			Help: "AIC of the winning SARIMA configuration from the latest run",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
		}),

		BestRMSE: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ratecast_best_rmse",
			Help: "Test RMSE of the top-ranked model from the latest run",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ratecast_errors_total",
			Help: "Total number of errors by component and reason",
			ConstLabels: prometheus.Labels{
				"series": series,
			},
		}, []string{"component", "reason"}),
	}
}

// RecordLoad records the time spent fetching the series.
func (m *Metrics) RecordLoad(seconds float64) {
	m.LoadSeconds.Observe(seconds)
}

// RecordDiagnose records the time spent on diagnostics.
func (m *Metrics) RecordDiagnose(seconds float64) {
	m.DiagnoseSeconds.Observe(seconds)
}

// RecordTune records the time spent on the grid search.
func (m *Metrics) RecordTune(seconds float64) {
	m.TuneSeconds.Observe(seconds)
}

// RecordEvaluate records the time spent on final fitting and reporting.
func (m *Metrics) RecordEvaluate(seconds float64) {
	m.EvaluateSeconds.Observe(seconds)
}

// RecordTrial increments the trial counter for a family and outcome.
// Outcome is "success" or "failure".
func (m *Metrics) RecordTrial(family string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.TrialsTotal.WithLabelValues(family, outcome).Inc()
}

// SetBestAIC sets the winning SARIMA AIC.
func (m *Metrics) SetBestAIC(aic float64) {
	m.BestAIC.Set(aic)
}

// SetBestRMSE sets the top-ranked model's test RMSE.
func (m *Metrics) SetBestRMSE(rmse float64) {
	m.BestRMSE.Set(rmse)
}

// RecordError increments the error counter for a component and reason.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
