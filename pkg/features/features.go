// Package features derives a tabular regression dataset from a time series.
//
// Each row targets the value at some timestamp t and carries lagged values
// and rolling statistics computed from observations strictly before t, so a
// regression model fitted on the frame never sees its own target.
package features

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/fxlab/ratecast/pkg/series"
)

// Defaults match the pipeline configuration.
const (
	DefaultLags   = 5
	DefaultWindow = 3
)

// Frame is a feature matrix with one row per usable observation.
//
// Columns lists the feature names in X column order. Index maps each row
// back to its position in the source series, which is how BuildSplit keeps
// the frame split on the same chronological boundary as the series split.
type Frame struct {
	Columns []string
	Times   []time.Time
	Index   []int
	X       [][]float64
	Y       []float64
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Y) }

// Split pairs the train and test portions of a frame. Boundary is the
// series index at which the test rows begin.
type Split struct {
	Train    *Frame
	Test     *Frame
	Boundary int
}

// Build constructs the feature frame for s.
//
// Feature columns are lag_1..lag_k (value at t-i), rolling_mean_w and
// rolling_std_w over the window t-w..t-1. Rows whose history is incomplete
// are dropped, so the first row targets series index max(nLags, window).
// nLags <= 0 and window <= 0 select the defaults.
func Build(s *series.TimeSeries, nLags, window int) (*Frame, error) {
	if nLags <= 0 {
		nLags = DefaultLags
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if window < 2 {
		return nil, &series.ConfigError{Reason: fmt.Sprintf("rolling window %d too small, need at least 2", window)}
	}

	start := nLags
	if window > start {
		start = window
	}
	if start >= s.Len() {
		return nil, &series.ConfigError{Reason: fmt.Sprintf(
			"series of length %d leaves no rows after %d lags and window %d", s.Len(), nLags, window)}
	}

	columns := make([]string, 0, nLags+2)
	for i := 1; i <= nLags; i++ {
		columns = append(columns, fmt.Sprintf("lag_%d", i))
	}
	columns = append(columns,
		fmt.Sprintf("rolling_mean_%d", window),
		fmt.Sprintf("rolling_std_%d", window))

	values := s.Values()
	times := s.Times()

	n := s.Len() - start
	frame := &Frame{
		Columns: columns,
		Times:   make([]time.Time, 0, n),
		Index:   make([]int, 0, n),
		X:       make([][]float64, 0, n),
		Y:       make([]float64, 0, n),
	}

	for t := start; t < s.Len(); t++ {
		row := make([]float64, 0, len(columns))
		for i := 1; i <= nLags; i++ {
			row = append(row, values[t-i])
		}
		win := values[t-window : t]
		row = append(row, stat.Mean(win, nil), math.Sqrt(stat.Variance(win, nil)))

		frame.Times = append(frame.Times, times[t])
		frame.Index = append(frame.Index, t)
		frame.X = append(frame.X, row)
		frame.Y = append(frame.Y, values[t])
	}

	return frame, nil
}

// BuildSplit builds the frame and splits it on the same chronological
// boundary as the series split for testFraction, so frame holdout rows
// cover the same dates as the series holdout.
//
// Returns a ConfigError when either side of the split ends up empty.
func BuildSplit(s *series.TimeSeries, nLags, window int, testFraction float64) (*Split, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, &series.ConfigError{Reason: fmt.Sprintf("test fraction %v outside (0, 1)", testFraction)}
	}

	frame, err := Build(s, nLags, window)
	if err != nil {
		return nil, err
	}

	boundary := series.SplitIndex(s.Len(), testFraction)

	cut := len(frame.Index)
	for i, idx := range frame.Index {
		if idx >= boundary {
			cut = i
			break
		}
	}
	if cut == 0 || cut == len(frame.Index) {
		return nil, &series.ConfigError{Reason: fmt.Sprintf(
			"split at series index %d leaves an empty frame side (%d rows)", boundary, len(frame.Index))}
	}

	return &Split{
		Train:    frame.slice(0, cut),
		Test:     frame.slice(cut, frame.Len()),
		Boundary: boundary,
	}, nil
}

func (f *Frame) slice(from, to int) *Frame {
	return &Frame{
		Columns: f.Columns,
		Times:   f.Times[from:to],
		Index:   f.Index[from:to],
		X:       f.X[from:to],
		Y:       f.Y[from:to],
	}
}
