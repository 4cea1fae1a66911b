// Package tuner runs exhaustive hyperparameter searches over model grids.
//
// Candidates are enumerated in a stable order, fitted on a bounded worker
// pool, and logged as trials whether they succeed or fail. A candidate
// failure never aborts the search; the search itself fails only when every
// candidate failed.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/fxlab/ratecast/pkg/models"
	"github.com/fxlab/ratecast/pkg/series"
)

// ErrSearchExhausted is returned when no candidate in the grid produced a
// successful fit.
var ErrSearchExhausted = errors.New("tuner: every candidate in the grid failed to fit")

// Param is a single named hyperparameter value. Trials keep parameters as
// an ordered list so CSV export emits one stable column per parameter.
type Param struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Trial records the outcome of fitting one candidate. Score is meaningful
// only when Success is true; Reason is empty unless the fit failed.
type Trial struct {
	Index   int     `json:"index"`
	Family  string  `json:"family"`
	Params  []Param `json:"params"`
	Score   float64 `json:"score"`
	Success bool    `json:"success"`
	Reason  string  `json:"reason,omitempty"`
}

// trialLog is the append-only result sink shared by the workers. Slots are
// pre-allocated per candidate index so the log always reads back in
// enumeration order regardless of completion order.
type trialLog struct {
	mu     sync.Mutex
	trials []Trial
}

func newTrialLog(size int) *trialLog {
	return &trialLog{trials: make([]Trial, size)}
}

func (l *trialLog) record(t Trial) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trials[t.Index] = t
}

// SARIMAGrid is the Cartesian candidate space for the seasonal ARIMA
// family: every order paired with every seasonal order, in slice order.
type SARIMAGrid struct {
	Orders   []models.Order
	Seasonal []models.SeasonalOrder
}

// DefaultSARIMAGrid mirrors the pipeline's standard search space for daily
// data with weekly and monthly seasonal candidates.
func DefaultSARIMAGrid() SARIMAGrid {
	return SARIMAGrid{
		Orders: []models.Order{
			{P: 1, D: 1, Q: 1},
			{P: 1, D: 1, Q: 2},
			{P: 2, D: 1, Q: 1},
			{P: 2, D: 1, Q: 2},
		},
		Seasonal: []models.SeasonalOrder{
			{P: 1, D: 1, Q: 1, S: 7},
			{P: 1, D: 1, Q: 1, S: 30},
			{P: 0, D: 1, Q: 1, S: 7},
			{P: 1, D: 0, Q: 1, S: 7},
		},
	}
}

// Size returns the number of candidates.
func (g SARIMAGrid) Size() int { return len(g.Orders) * len(g.Seasonal) }

// candidate returns the i-th (order, seasonal) pair in enumeration order.
func (g SARIMAGrid) candidate(i int) (models.Order, models.SeasonalOrder) {
	return g.Orders[i/len(g.Seasonal)], g.Seasonal[i%len(g.Seasonal)]
}

// SARIMAResult is the outcome of a SARIMA grid search. Trials always holds
// one entry per candidate in enumeration order, including failures.
type SARIMAResult struct {
	BestOrder    models.Order         `json:"best_order"`
	BestSeasonal models.SeasonalOrder `json:"best_seasonal"`
	BestAIC      float64              `json:"best_aic"`
	BestIndex    int                  `json:"best_index"`
	Trials       []Trial              `json:"trials"`
	Model        *models.SARIMA       `json:"-"`
}

// TuneSARIMA fits every candidate in the grid on train and selects the one
// with the lowest AIC, ties broken by lowest candidate index.
//
// workers <= 0 selects runtime.NumCPU(). Cancellation via ctx stops the
// search between candidates and returns the context error. When every
// candidate fails, the returned result still carries the full trial log
// alongside ErrSearchExhausted.
func TuneSARIMA(ctx context.Context, train *series.TimeSeries, grid SARIMAGrid, workers int) (*SARIMAResult, error) {
	size := grid.Size()
	if size == 0 {
		return nil, fmt.Errorf("tuner: empty SARIMA grid")
	}

	log := newTrialLog(size)
	err := runPool(ctx, size, workers, func(i int) {
		order, seasonal := grid.candidate(i)
		trial := Trial{
			Index:  i,
			Family: models.NameSARIMA,
			Params: []Param{
				{"p", order.P}, {"d", order.D}, {"q", order.Q},
				{"P", seasonal.P}, {"D", seasonal.D}, {"Q", seasonal.Q}, {"s", seasonal.S},
			},
		}

		m, err := models.NewSARIMA(order, seasonal)
		if err == nil {
			err = m.Fit(train)
		}
		if err != nil {
			trial.Reason = err.Error()
			log.record(trial)
			return
		}

		aic, err := m.AIC()
		if err != nil {
			trial.Reason = err.Error()
			log.record(trial)
			return
		}

		trial.Score = aic
		trial.Success = true
		log.record(trial)
	})
	if err != nil {
		return nil, err
	}

	result := &SARIMAResult{Trials: log.trials, BestIndex: -1}
	for _, t := range log.trials {
		if t.Success && (result.BestIndex < 0 || t.Score < result.BestAIC) {
			result.BestIndex = t.Index
			result.BestAIC = t.Score
		}
	}
	if result.BestIndex < 0 {
		return result, ErrSearchExhausted
	}

	result.BestOrder, result.BestSeasonal = grid.candidate(result.BestIndex)

	// refit the winner; fitting is deterministic so this reproduces the
	// trial exactly
	best, err := models.NewSARIMA(result.BestOrder, result.BestSeasonal)
	if err == nil {
		err = best.Fit(train)
	}
	if err != nil {
		return result, fmt.Errorf("tuner: refit of winning candidate %d: %w", result.BestIndex, err)
	}
	result.Model = best

	return result, nil
}

// ForestGrid is the Cartesian candidate space for the random forest
// family. A MaxDepths entry of 0 means unlimited depth.
type ForestGrid struct {
	Estimators []int
	MaxDepths  []int
	MinSplits  []int
}

// DefaultForestGrid mirrors the pipeline's standard search space.
func DefaultForestGrid() ForestGrid {
	return ForestGrid{
		Estimators: []int{50, 100, 200},
		MaxDepths:  []int{5, 10, 0},
		MinSplits:  []int{2, 5, 10},
	}
}

// Size returns the number of candidates.
func (g ForestGrid) Size() int {
	return len(g.Estimators) * len(g.MaxDepths) * len(g.MinSplits)
}

func (g ForestGrid) candidate(i int) models.ForestParams {
	nSplits := len(g.MinSplits)
	nDepths := len(g.MaxDepths)
	return models.ForestParams{
		Estimators:      g.Estimators[i/(nDepths*nSplits)],
		MaxDepth:        g.MaxDepths[(i/nSplits)%nDepths],
		MinSamplesSplit: g.MinSplits[i%nSplits],
	}
}

// ForestResult is the outcome of a random forest grid search.
type ForestResult struct {
	BestParams models.ForestParams  `json:"best_params"`
	BestMSE    float64              `json:"best_mse"`
	BestIndex  int                  `json:"best_index"`
	Trials     []Trial              `json:"trials"`
	Model      *models.RandomForest `json:"-"`
}

// TuneForest fits every candidate on the training matrix and selects the
// one with the lowest in-sample MSE, ties broken by lowest candidate index.
// Semantics otherwise match TuneSARIMA.
func TuneForest(ctx context.Context, x [][]float64, y []float64, grid ForestGrid, workers int) (*ForestResult, error) {
	size := grid.Size()
	if size == 0 {
		return nil, fmt.Errorf("tuner: empty forest grid")
	}

	log := newTrialLog(size)
	err := runPool(ctx, size, workers, func(i int) {
		params := grid.candidate(i)
		trial := Trial{
			Index:  i,
			Family: models.NameRandomForest,
			Params: []Param{
				{"n_estimators", params.Estimators},
				{"max_depth", params.MaxDepth},
				{"min_samples_split", params.MinSamplesSplit},
			},
		}

		m := models.NewRandomForest(params)
		score, err := forestInSampleMSE(m, x, y)
		if err != nil {
			trial.Reason = err.Error()
			log.record(trial)
			return
		}

		trial.Score = score
		trial.Success = true
		log.record(trial)
	})
	if err != nil {
		return nil, err
	}

	result := &ForestResult{Trials: log.trials, BestIndex: -1}
	for _, t := range log.trials {
		if t.Success && (result.BestIndex < 0 || t.Score < result.BestMSE) {
			result.BestIndex = t.Index
			result.BestMSE = t.Score
		}
	}
	if result.BestIndex < 0 {
		return result, ErrSearchExhausted
	}

	result.BestParams = grid.candidate(result.BestIndex)

	best := models.NewRandomForest(result.BestParams)
	if err := best.Fit(x, y); err != nil {
		return result, fmt.Errorf("tuner: refit of winning candidate %d: %w", result.BestIndex, err)
	}
	result.Model = best

	return result, nil
}

func forestInSampleMSE(m *models.RandomForest, x [][]float64, y []float64) (float64, error) {
	if err := m.Fit(x, y); err != nil {
		return 0, err
	}
	preds, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	rec, err := models.Evaluate(y, preds)
	if err != nil {
		return 0, err
	}
	return rec.MSE, nil
}

// runPool executes fn(i) for i in [0, size) on a bounded worker pool.
// Workers stop picking up new candidates once ctx is cancelled; a trial
// already running is allowed to finish.
func runPool(ctx context.Context, size, workers int, fn func(i int)) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > size {
		workers = size
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

feed:
	for i := 0; i < size; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}
