package storage

import (
	"context"
	"time"

	"github.com/fxlab/ratecast/pkg/diagnostics"
	"github.com/fxlab/ratecast/pkg/models"
	"github.com/fxlab/ratecast/pkg/report"
	"github.com/fxlab/ratecast/pkg/tuner"
)

// BestParams holds the winning hyperparameters of one pipeline run.
// Pointers are nil for a family whose search produced no winner.
type BestParams struct {
	SARIMAOrder    *models.Order         `json:"sarima_order,omitempty"`
	SARIMASeasonal *models.SeasonalOrder `json:"sarima_seasonal,omitempty"`
	SARIMAAIC      float64               `json:"sarima_aic,omitempty"`
	Forest         *models.ForestParams  `json:"forest,omitempty"`
	ForestMSE      float64               `json:"forest_mse,omitempty"`
}

// Snapshot is the persisted outcome of one pipeline run for a series:
// diagnostics, winning hyperparameters, the ranked evaluation report and
// the full trial log.
type Snapshot struct {
	SeriesName  string               `json:"series_name"`
	GeneratedAt time.Time            `json:"generated_at"`
	Diagnostics *diagnostics.Summary `json:"diagnostics,omitempty"`
	BestParams  BestParams           `json:"best_params"`
	Report      *report.Report       `json:"report,omitempty"`
	Trials      []tuner.Trial        `json:"trials,omitempty"`
}

// Store persists the latest snapshot per series name.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, seriesName string) (Snapshot, bool, error)
}
