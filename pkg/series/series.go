// Package series provides the validated time-series container that every
// other stage of the pipeline consumes.
//
// A TimeSeries is created once by a loader (CSV file, HTTP source), validated
// on construction, and then passed around by read-only reference. Chronological
// train/test splitting lives here so that the series split and the feature
// split share one boundary calculation.
package series

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DataError reports malformed, empty, or unparseable input data.
// It is surfaced to the caller immediately and never retried.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string { return "series: " + e.Reason }

func dataErrorf(format string, args ...any) *DataError {
	return &DataError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigError reports an invalid caller-supplied parameter (bad split
// fraction, too many lags). It is the caller's responsibility to fix.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// TimeSeries is an ordered sequence of (timestamp, value) observations.
//
// Invariants, enforced by New:
//   - timestamps strictly increasing (no duplicates)
//   - every value is a finite float64
//   - at least one observation
//
// The struct is treated as immutable after construction; accessors that
// expose slices return copies.
type TimeSeries struct {
	name   string
	times  []time.Time
	values []float64
}

// New validates the observations and builds a TimeSeries.
// Returns a DataError if the series is empty, out of order, contains
// duplicate timestamps, or contains non-finite values.
func New(name string, times []time.Time, values []float64) (*TimeSeries, error) {
	if len(times) != len(values) {
		return nil, dataErrorf("timestamp count (%d) != value count (%d)", len(times), len(values))
	}
	if len(values) == 0 {
		return nil, dataErrorf("empty series %q", name)
	}

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, dataErrorf("non-finite value at index %d", i)
		}
		if i > 0 && !times[i].After(times[i-1]) {
			return nil, dataErrorf("timestamps not strictly increasing at index %d (%s then %s)",
				i, times[i-1].Format(time.RFC3339), times[i].Format(time.RFC3339))
		}
	}

	ts := make([]time.Time, len(times))
	vs := make([]float64, len(values))
	copy(ts, times)
	copy(vs, values)

	return &TimeSeries{name: name, times: ts, values: vs}, nil
}

// Name returns the series identifier (e.g. the currency pair).
func (s *TimeSeries) Name() string { return s.name }

// Len returns the number of observations.
func (s *TimeSeries) Len() int { return len(s.values) }

// At returns the observation at index i.
func (s *TimeSeries) At(i int) (time.Time, float64) { return s.times[i], s.values[i] }

// First returns the earliest observation.
func (s *TimeSeries) First() (time.Time, float64) { return s.times[0], s.values[0] }

// Last returns the most recent observation.
func (s *TimeSeries) Last() (time.Time, float64) {
	n := len(s.values)
	return s.times[n-1], s.values[n-1]
}

// Values returns a copy of the value slice.
func (s *TimeSeries) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Times returns a copy of the timestamp slice.
func (s *TimeSeries) Times() []time.Time {
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

// Mean returns the arithmetic mean of the values.
func (s *TimeSeries) Mean() float64 { return stat.Mean(s.values, nil) }

// Std returns the sample standard deviation of the values.
func (s *TimeSeries) Std() float64 {
	if len(s.values) < 2 {
		return 0
	}
	return stat.StdDev(s.values, nil)
}

// Diff returns a new series of first differences, one observation shorter.
// Each differenced point keeps the timestamp of the later operand.
func (s *TimeSeries) Diff() *TimeSeries {
	if len(s.values) < 2 {
		return &TimeSeries{name: s.name, times: nil, values: nil}
	}

	times := make([]time.Time, len(s.values)-1)
	values := make([]float64, len(s.values)-1)
	for i := 1; i < len(s.values); i++ {
		times[i-1] = s.times[i]
		values[i-1] = s.values[i] - s.values[i-1]
	}

	return &TimeSeries{name: s.name, times: times, values: values}
}

// Slice returns the half-open sub-series [from, to).
func (s *TimeSeries) Slice(from, to int) *TimeSeries {
	times := make([]time.Time, to-from)
	values := make([]float64, to-from)
	copy(times, s.times[from:to])
	copy(values, s.values[from:to])
	return &TimeSeries{name: s.name, times: times, values: values}
}

// Split is a chronological train/test partition of a series.
// train ∪ test reconstructs the original, train wholly precedes test.
type Split struct {
	Train *TimeSeries
	Test  *TimeSeries
	// Boundary is the index of the first test observation in the
	// original series. The feature builder splits at the same index.
	Boundary int
}

// SplitIndex computes the boundary index for a series of length n at the
// given test fraction: the train prefix spans [0, idx), the test suffix
// [idx, n).
func SplitIndex(n int, testFraction float64) int {
	return int(float64(n) * (1 - testFraction))
}

// Split partitions the series at testFraction from the end.
// Returns a ConfigError if the fraction is outside (0,1) or either side
// would be empty.
func (s *TimeSeries) Split(testFraction float64) (*Split, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, configErrorf("test fraction %v outside (0,1)", testFraction)
	}

	idx := SplitIndex(len(s.values), testFraction)
	if idx == 0 || idx == len(s.values) {
		return nil, configErrorf("test fraction %v leaves an empty partition for %d points", testFraction, len(s.values))
	}

	return &Split{
		Train:    s.Slice(0, idx),
		Test:     s.Slice(idx, len(s.values)),
		Boundary: idx,
	}, nil
}
