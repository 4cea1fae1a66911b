// Package main implements the core evaluation pipeline orchestration.
//
// This file contains the Pipeline type which orchestrates one evaluation run:
//
//	load → diagnose → tune → evaluate → report → store
//
// RunOnce executes a single run for CLI usage. In serve mode the Pipeline
// runs continuously via Run(), re-executing the run at regular intervals and
// updating the stored snapshot that the HTTP API serves.
//
// The pipeline is instrumented with Prometheus metrics tracking the duration
// of each stage, the outcome of every hyperparameter trial, and any errors
// encountered during execution.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxlab/ratecast/cmd/ratecast/metrics"
	"github.com/fxlab/ratecast/pkg/diagnostics"
	"github.com/fxlab/ratecast/pkg/features"
	"github.com/fxlab/ratecast/pkg/models"
	"github.com/fxlab/ratecast/pkg/report"
	"github.com/fxlab/ratecast/pkg/series"
	"github.com/fxlab/ratecast/pkg/sources"
	"github.com/fxlab/ratecast/pkg/storage"
	"github.com/fxlab/ratecast/pkg/tuner"
)

// Pipeline orchestrates one evaluation run: load → diagnose → tune →
// evaluate → store.
type Pipeline struct {
	seriesName   string
	source       sources.Source
	store        storage.Store
	testFraction float64
	lags         int
	window       int
	period       int
	maxLag       int
	workers      int
	trialsCSV    string
	sarimaGrid   tuner.SARIMAGrid
	forestGrid   tuner.ForestGrid
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewPipeline creates a new Pipeline.
func NewPipeline(
	seriesName string,
	source sources.Source,
	store storage.Store,
	testFraction float64,
	lags, window, period, maxLag, workers int,
	trialsCSV string,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		seriesName:   seriesName,
		source:       source,
		store:        store,
		testFraction: testFraction,
		lags:         lags,
		window:       window,
		period:       period,
		maxLag:       maxLag,
		workers:      workers,
		trialsCSV:    trialsCSV,
		sarimaGrid:   tuner.DefaultSARIMAGrid(),
		forestGrid:   tuner.DefaultForestGrid(),
		logger:       logger,
		metrics:      metrics,
	}
}

// Run executes the pipeline at regular intervals.
// Blocks until context is canceled.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting evaluation loop", "interval", interval, "series", p.seriesName)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("initial evaluation run failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("evaluation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("evaluation run failed", "error", err)
			}
		}
	}
}

// RunOnce performs one complete evaluation run.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	start := time.Now()
	p.logger.Debug("starting evaluation run")

	s, loadDuration, err := p.load(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("source", "fetch_failed")
		}
		return fmt.Errorf("load: %w", err)
	}

	summary, diagnoseDuration := p.diagnose(s)

	rawSplit, err := s.Split(p.testFraction)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("split", "invalid_config")
		}
		return fmt.Errorf("split: %w", err)
	}

	featureSplit, err := features.BuildSplit(s, p.lags, p.window, p.testFraction)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("features", "build_failed")
		}
		return fmt.Errorf("build features: %w", err)
	}

	sarimaResult, forestResult, tuneDuration, err := p.tune(ctx, rawSplit.Train, featureSplit.Train)
	if err != nil {
		return fmt.Errorf("tune: %w", err)
	}

	rep, bestParams, evaluateDuration := p.evaluate(sarimaResult, forestResult, rawSplit, featureSplit)

	trials := append(append([]tuner.Trial{}, sarimaResult.Trials...), forestResult.Trials...)

	snapshot := storage.Snapshot{
		SeriesName:  p.seriesName,
		GeneratedAt: time.Now(),
		Diagnostics: &summary,
		BestParams:  bestParams,
		Report:      rep,
		Trials:      trials,
	}

	if err := p.store.Put(ctx, snapshot); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("store", "put_failed")
		}
		return fmt.Errorf("store: %w", err)
	}

	if p.trialsCSV != "" {
		if err := p.exportTrials(sarimaResult.Trials, forestResult.Trials); err != nil {
			if p.metrics != nil {
				p.metrics.RecordError("export", "csv_failed")
			}
			p.logger.Error("trial CSV export failed", "error", err)
		}
	}

	totalDuration := time.Since(start)
	p.logger.Info("evaluation run complete",
		"series", p.seriesName,
		"points", s.Len(),
		"stationary", summary.Stationarity.Stationary,
		"trials", len(trials),
		"load_ms", loadDuration.Milliseconds(),
		"diagnose_ms", diagnoseDuration.Milliseconds(),
		"tune_ms", tuneDuration.Milliseconds(),
		"evaluate_ms", evaluateDuration.Milliseconds(),
		"total_ms", totalDuration.Milliseconds(),
	)

	return nil
}

// load fetches and validates the series from the source.
func (p *Pipeline) load(ctx context.Context) (*series.TimeSeries, time.Duration, error) {
	start := time.Now()

	s, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, 0, err
	}

	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordLoad(duration.Seconds())
	}

	p.logger.Info("loaded series",
		"source", p.source.Name(),
		"points", s.Len(),
		"duration_ms", duration.Milliseconds(),
	)

	return s, duration, nil
}

// diagnose runs the stationarity, autocorrelation and decomposition
// diagnostics. Diagnostics never abort the run; degenerate sections carry
// their own failure records inside the summary.
func (p *Pipeline) diagnose(s *series.TimeSeries) (diagnostics.Summary, time.Duration) {
	start := time.Now()

	summary := diagnostics.Analyze(s, p.period, p.maxLag)

	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordDiagnose(duration.Seconds())
	}

	attrs := []any{
		"stationary", summary.Stationarity.Stationary,
		"seasonal", summary.Decomposition.HasSeasonality,
		"duration_ms", duration.Milliseconds(),
	}
	if adf := summary.Stationarity.ADF; adf != nil {
		attrs = append(attrs, "adf_p", adf.PValue)
	}
	if kpss := summary.Stationarity.KPSS; kpss != nil {
		attrs = append(attrs, "kpss_p", kpss.PValue)
	}
	p.logger.Info("diagnostics complete", attrs...)

	return summary, duration
}

// tune searches both hyperparameter grids. An exhausted grid is not fatal;
// the failed trials flow into the report and the snapshot. A canceled
// context is fatal.
func (p *Pipeline) tune(ctx context.Context, rawTrain *series.TimeSeries, featureTrain *features.Frame) (*tuner.SARIMAResult, *tuner.ForestResult, time.Duration, error) {
	start := time.Now()

	sarimaResult, err := tuner.TuneSARIMA(ctx, rawTrain, p.sarimaGrid, p.workers)
	if err != nil {
		if errors.Is(err, tuner.ErrSearchExhausted) {
			p.logger.Warn("every SARIMA candidate failed", "trials", len(sarimaResult.Trials))
		} else {
			if p.metrics != nil {
				p.metrics.RecordError("tuner", "sarima_search_failed")
			}
			return nil, nil, 0, err
		}
	}

	forestResult, err := tuner.TuneForest(ctx, featureTrain.X, featureTrain.Y, p.forestGrid, p.workers)
	if err != nil {
		if errors.Is(err, tuner.ErrSearchExhausted) {
			p.logger.Warn("every forest candidate failed", "trials", len(forestResult.Trials))
		} else {
			if p.metrics != nil {
				p.metrics.RecordError("tuner", "forest_search_failed")
			}
			return nil, nil, 0, err
		}
	}

	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordTune(duration.Seconds())
		for _, t := range sarimaResult.Trials {
			p.metrics.RecordTrial(t.Family, t.Success)
		}
		for _, t := range forestResult.Trials {
			p.metrics.RecordTrial(t.Family, t.Success)
		}
	}

	p.logger.Info("grid search complete",
		"sarima_candidates", p.sarimaGrid.Size(),
		"forest_candidates", p.forestGrid.Size(),
		"best_order", sarimaResult.BestOrder.String(),
		"best_seasonal", sarimaResult.BestSeasonal.String(),
		"best_forest", forestResult.BestParams.String(),
		"duration_ms", duration.Milliseconds(),
	)

	return sarimaResult, forestResult, duration, nil
}

// evaluate fits the final model family with the winning hyperparameters,
// scores every model on the held-out test partition and builds the ranked
// report. Individual model failures become report entries, never errors.
func (p *Pipeline) evaluate(sarimaResult *tuner.SARIMAResult, forestResult *tuner.ForestResult, rawSplit *series.Split, featureSplit *features.Split) (*report.Report, storage.BestParams, time.Duration) {
	start := time.Now()

	records := make(map[string]models.Record)
	failures := make(map[string]string)
	var bestParams storage.BestParams

	forestParams := models.ForestParams{}
	if forestResult.Model != nil {
		forestParams = forestResult.BestParams
		fp := forestResult.BestParams
		bestParams.Forest = &fp
		bestParams.ForestMSE = forestResult.BestMSE
	} else {
		p.logger.Warn("random forest grid search produced no winner, evaluating with default parameters",
			"series", p.seriesName,
		)
	}

	fitted, fitErrs := models.FitRegressionFamily(
		featureSplit.Train.X, featureSplit.Train.Y,
		models.NewLinearRegression(),
		models.NewRandomForest(forestParams),
	)
	for name, err := range fitErrs {
		failures[name] = err.Error()
	}

	for name, m := range fitted {
		predicted, err := m.Predict(featureSplit.Test.X)
		if err != nil {
			failures[name] = err.Error()
			continue
		}
		record, err := models.Evaluate(featureSplit.Test.Y, predicted)
		if err != nil {
			failures[name] = err.Error()
			continue
		}
		records[name] = record
	}

	if sarimaResult.Model != nil {
		order := sarimaResult.BestOrder
		seasonal := sarimaResult.BestSeasonal
		bestParams.SARIMAOrder = &order
		bestParams.SARIMASeasonal = &seasonal
		bestParams.SARIMAAIC = sarimaResult.BestAIC

		if record, err := p.evaluateSARIMA(sarimaResult.Model, rawSplit); err != nil {
			failures[models.NameSARIMA] = err.Error()
		} else {
			records[models.NameSARIMA] = record
		}
	} else {
		failures[models.NameSARIMA] = "every grid candidate failed to fit"
	}

	rep := report.Build(p.seriesName, records, failures)

	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordEvaluate(duration.Seconds())
		if sarimaResult.Model != nil {
			p.metrics.SetBestAIC(sarimaResult.BestAIC)
		}
		if best, ok := rep.Best(); ok {
			p.metrics.SetBestRMSE(best.Metrics.RMSE)
		}
	}

	if best, ok := rep.Best(); ok {
		p.logger.Info("evaluation complete",
			"best_model", best.Name,
			"rmse", best.Metrics.RMSE,
			"mae", best.Metrics.MAE,
			"failures", len(failures),
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		p.logger.Warn("every model failed evaluation", "failures", len(failures))
	}

	return rep, bestParams, duration
}

// evaluateSARIMA forecasts over the raw test horizon and scores against
// the held-out observations.
func (p *Pipeline) evaluateSARIMA(m *models.SARIMA, rawSplit *series.Split) (models.Record, error) {
	forecast, err := m.Forecast(rawSplit.Test.Len())
	if err != nil {
		return models.Record{}, err
	}
	return models.Evaluate(rawSplit.Test.Values(), forecast)
}

// exportTrials writes each family's trial log to its own CSV next to the
// configured base path: trials.csv becomes trials_sarima.csv and
// trials_forest.csv.
func (p *Pipeline) exportTrials(sarimaTrials, forestTrials []tuner.Trial) error {
	for _, family := range []struct {
		suffix string
		trials []tuner.Trial
	}{
		{"sarima", sarimaTrials},
		{"forest", forestTrials},
	} {
		path := trialsPath(p.trialsCSV, family.suffix)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := tuner.WriteCSV(f, family.trials); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", path, err)
		}
		p.logger.Info("exported trial log", "path", path, "trials", len(family.trials))
	}
	return nil
}

// trialsPath inserts the family suffix before the extension.
func trialsPath(base, suffix string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + suffix + ext
}
