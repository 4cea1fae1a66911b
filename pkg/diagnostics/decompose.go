package diagnostics

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/fxlab/ratecast/pkg/series"
)

// seasonalityThreshold declares seasonality present when the seasonal
// component's spread exceeds this fraction of the series spread. Carried
// over from the upstream pipeline unchanged.
const seasonalityThreshold = 0.1

// Decomposition is the additive split of a series into trend, seasonal and
// residual components, plus derived strength metrics.
//
// When the decomposition cannot be computed (series shorter than two full
// periods, degenerate residual) Available is false and Reason explains why;
// decomposition failure is never an error.
type Decomposition struct {
	Available bool
	Reason    string

	Period   int
	Trend    []float64 // NaN at the edges where the centered MA is undefined
	Seasonal []float64
	Residual []float64

	TrendStrength    float64
	SeasonalStrength float64
	HasSeasonality   bool
}

// Decompose performs classical additive decomposition with the given period:
// centered moving-average trend, period-averaged seasonal pattern, residual
// remainder.
func Decompose(s *series.TimeSeries, period int) Decomposition {
	n := s.Len()
	if period < 2 {
		return unavailable(fmt.Sprintf("period %d too small", period))
	}
	if n < 2*period {
		return unavailable(fmt.Sprintf("need %d points for period %d, got %d", 2*period, period, n))
	}

	values := s.Values()
	trend := centeredMA(values, period)

	// Seasonal pattern: average detrended value per position in the period,
	// centered so the pattern sums to zero.
	pattern := make([]float64, period)
	counts := make([]int, period)
	for i := range n {
		if math.IsNaN(trend[i]) {
			continue
		}
		idx := i % period
		pattern[idx] += values[i] - trend[i]
		counts[idx]++
	}
	for i := range period {
		if counts[i] > 0 {
			pattern[i] /= float64(counts[i])
		}
	}
	patternMean := 0.0
	for _, v := range pattern {
		patternMean += v
	}
	patternMean /= float64(period)
	for i := range pattern {
		pattern[i] -= patternMean
	}

	seasonal := make([]float64, n)
	residual := make([]float64, n)
	for i := range n {
		seasonal[i] = pattern[i%period]
		if math.IsNaN(trend[i]) {
			residual[i] = math.NaN()
		} else {
			residual[i] = values[i] - trend[i] - seasonal[i]
		}
	}

	residStd := stdSkipNaN(residual)
	if residStd == 0 {
		return unavailable("degenerate residual component")
	}

	seasonalStd := stdSkipNaN(seasonal)

	return Decomposition{
		Available:        true,
		Period:           period,
		Trend:            trend,
		Seasonal:         seasonal,
		Residual:         residual,
		TrendStrength:    stdSkipNaN(trend) / residStd,
		SeasonalStrength: seasonalStd / residStd,
		HasSeasonality:   seasonalStd > seasonalityThreshold*s.Std(),
	}
}

func unavailable(reason string) Decomposition {
	return Decomposition{Available: false, Reason: reason}
}

// decompositionJSON mirrors Decomposition for encoding. Trend and Residual
// carry NaN where the centered MA is undefined and encoding/json rejects
// raw NaN, so the component slices encode those positions as null.
type decompositionJSON struct {
	Available        bool       `json:"available"`
	Reason           string     `json:"reason,omitempty"`
	Period           int        `json:"period,omitempty"`
	Trend            []*float64 `json:"trend,omitempty"`
	Seasonal         []*float64 `json:"seasonal,omitempty"`
	Residual         []*float64 `json:"residual,omitempty"`
	TrendStrength    float64    `json:"trend_strength,omitempty"`
	SeasonalStrength float64    `json:"seasonal_strength,omitempty"`
	HasSeasonality   bool       `json:"has_seasonality,omitempty"`
}

// MarshalJSON encodes the decomposition with NaN component values as null.
func (d Decomposition) MarshalJSON() ([]byte, error) {
	return json.Marshal(decompositionJSON{
		Available:        d.Available,
		Reason:           d.Reason,
		Period:           d.Period,
		Trend:            nullifyNaN(d.Trend),
		Seasonal:         nullifyNaN(d.Seasonal),
		Residual:         nullifyNaN(d.Residual),
		TrendStrength:    d.TrendStrength,
		SeasonalStrength: d.SeasonalStrength,
		HasSeasonality:   d.HasSeasonality,
	})
}

// UnmarshalJSON restores null component values to NaN.
func (d *Decomposition) UnmarshalJSON(data []byte) error {
	var aux decompositionJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Decomposition{
		Available:        aux.Available,
		Reason:           aux.Reason,
		Period:           aux.Period,
		Trend:            restoreNaN(aux.Trend),
		Seasonal:         restoreNaN(aux.Seasonal),
		Residual:         restoreNaN(aux.Residual),
		TrendStrength:    aux.TrendStrength,
		SeasonalStrength: aux.SeasonalStrength,
		HasSeasonality:   aux.HasSeasonality,
	}
	return nil
}

func nullifyNaN(values []float64) []*float64 {
	if values == nil {
		return nil
	}
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			v := values[i]
			out[i] = &v
		}
	}
	return out
}

func restoreNaN(values []*float64) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	for i := range values {
		if values[i] == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *values[i]
		}
	}
	return out
}

// centeredMA computes the centered moving-average trend. For even periods
// a 2×period average with half-weighted endpoints keeps the window centered.
// Positions without a full window are NaN.
func centeredMA(values []float64, period int) []float64 {
	n := len(values)
	trend := make([]float64, n)
	for i := range trend {
		trend[i] = math.NaN()
	}

	half := period / 2

	if period%2 == 0 {
		for i := half; i < n-half; i++ {
			sum := values[i-half]*0.5 + values[i+half]*0.5
			for j := i - half + 1; j < i+half; j++ {
				sum += values[j]
			}
			trend[i] = sum / float64(period)
		}
	} else {
		for i := half; i < n-half; i++ {
			sum := 0.0
			for j := i - half; j <= i+half; j++ {
				sum += values[j]
			}
			trend[i] = sum / float64(period)
		}
	}

	return trend
}

// stdSkipNaN is the sample standard deviation over the non-NaN entries.
func stdSkipNaN(values []float64) float64 {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) < 2 {
		return 0
	}
	return stat.StdDev(clean, nil)
}
