package diagnostics

import (
	"github.com/fxlab/ratecast/pkg/series"
)

// BasicStats summarises the raw series.
type BasicStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary is the full diagnostic picture of a series: descriptive stats,
// the dual stationarity verdict, the autocorrelation profile, and the
// seasonal decomposition. Sections that could not be computed carry their
// own failure records; Analyze itself never fails on a valid series.
type Summary struct {
	Stats            BasicStats
	Stationarity     StationarityResult
	Correlation      *CorrelationProfile
	CorrelationError string
	Decomposition    Decomposition
}

// Analyze runs every diagnostic against the series with the given seasonal
// period and autocorrelation horizon (maxLag <= 0 uses DefaultMaxLag).
func Analyze(s *series.TimeSeries, period, maxLag int) Summary {
	out := Summary{
		Stats:         basicStats(s),
		Stationarity:  Stationarity(s),
		Decomposition: Decompose(s, period),
	}

	profile, err := Correlation(s, maxLag)
	if err != nil {
		out.CorrelationError = err.Error()
	} else {
		out.Correlation = profile
	}

	return out
}

func basicStats(s *series.TimeSeries) BasicStats {
	values := s.Values()
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return BasicStats{
		Count: s.Len(),
		Mean:  s.Mean(),
		Std:   s.Std(),
		Min:   min,
		Max:   max,
	}
}
