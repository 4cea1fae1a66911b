// Package sources provides data source connectors that retrieve a daily
// exchange-rate series from an external system and normalize it into a
// validated TimeSeries.
//
// Each source implements the Source interface and plugs into the ratecast
// pipeline. Available sources:
//   - CSVSource reads a local CSV file (date column + value column)
//   - HTTPSource calls any REST API with a JSON response, extracting
//     dates and values via gjson path expressions
//
// Sources pull raw observations and shape them into a series, leaving
// diagnostics, feature building and modelling to the upper layers. A fetch
// is one attempt; retry policy belongs to the caller.
package sources

import (
	"context"

	"github.com/fxlab/ratecast/pkg/series"
)

// Source fetches one exchange-rate series.
//
// Fetch is synchronous and must respect context cancellation. It must not
// panic; any malformed upstream data is returned as a series.DataError.
type Source interface {
	Fetch(ctx context.Context) (*series.TimeSeries, error)

	// Name returns a short, unique identifier, e.g. "csv" or "http".
	Name() string
}
