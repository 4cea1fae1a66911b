package diagnostics

import (
	"errors"
	"math"

	"github.com/fxlab/ratecast/pkg/series"
)

// DefaultMaxLag is the autocorrelation horizon used by the pipeline.
const DefaultMaxLag = 40

// maxSignificantLags caps how many significant lags are reported; the first
// few are the candidate orders for the SARIMA search.
const maxSignificantLags = 5

// CorrelationProfile holds ACF and PACF values for lags 0..MaxLag together
// with the 95% white-noise confidence band and the first significant lags
// of each function (lag 0 excluded).
type CorrelationProfile struct {
	ACF             []float64
	PACF            []float64
	ConfBound       float64
	SignificantACF  []int
	SignificantPACF []int
}

// Correlation computes the autocorrelation profile of the series.
// maxLag <= 0 selects DefaultMaxLag; the lag is clamped to len-1.
// Returns an error for constant series (zero variance).
func Correlation(s *series.TimeSeries, maxLag int) (*CorrelationProfile, error) {
	if maxLag <= 0 {
		maxLag = DefaultMaxLag
	}
	if maxLag >= s.Len() {
		maxLag = s.Len() - 1
	}
	if maxLag < 1 {
		return nil, errors.New("correlation: series too short")
	}

	acf := acfValues(s.Values(), maxLag)
	if acf == nil {
		return nil, errors.New("correlation: zero variance series")
	}
	pacf := pacfValues(acf, maxLag)

	bound := 1.96 / math.Sqrt(float64(s.Len()))

	return &CorrelationProfile{
		ACF:             acf,
		PACF:            pacf,
		ConfBound:       bound,
		SignificantACF:  significantLags(acf, bound),
		SignificantPACF: significantLags(pacf, bound),
	}, nil
}

// acfValues computes sample autocorrelations for lags 0..maxLag.
// Returns nil when the series has zero variance.
func acfValues(values []float64, maxLag int) []float64 {
	n := len(values)

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	c0 := 0.0
	for _, v := range values {
		c0 += (v - mean) * (v - mean)
	}
	if c0 == 0 {
		return nil
	}

	acf := make([]float64, maxLag+1)
	for k := 0; k <= maxLag; k++ {
		ck := 0.0
		for i := k; i < n; i++ {
			ck += (values[i] - mean) * (values[i-k] - mean)
		}
		acf[k] = ck / c0
	}

	return acf
}

// pacfValues derives partial autocorrelations from the ACF via the
// Durbin-Levinson recursion.
func pacfValues(acf []float64, maxLag int) []float64 {
	pacf := make([]float64, maxLag+1)
	pacf[0] = 1

	phi := make([][]float64, maxLag+1)
	for i := range phi {
		phi[i] = make([]float64, maxLag+1)
	}

	if maxLag >= 1 {
		phi[1][1] = acf[1]
		pacf[1] = acf[1]
	}

	for k := 2; k <= maxLag; k++ {
		num := acf[k]
		den := 1.0
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-j]
			den -= phi[k-1][j] * acf[j]
		}

		if den == 0 {
			pacf[k] = 0
			continue
		}

		phi[k][k] = num / den
		pacf[k] = phi[k][k]

		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}
	}

	return pacf
}

// significantLags returns the first lags whose absolute value exceeds the
// confidence bound, skipping lag 0, capped at maxSignificantLags.
func significantLags(values []float64, bound float64) []int {
	var lags []int
	for i := 1; i < len(values); i++ {
		if math.Abs(values[i]) > bound {
			lags = append(lags, i)
			if len(lags) == maxSignificantLags {
				break
			}
		}
	}
	return lags
}
