// Package diagnostics implements exploratory statistics for a rate series:
// unit-root and trend-stationarity tests, autocorrelation profiles, and
// classical seasonal decomposition.
//
// Per-test numerical failures are recorded in the result structs rather than
// raised, so a degenerate series still produces a usable (if mostly empty)
// diagnostic summary.
package diagnostics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/fxlab/ratecast/pkg/series"
)

// significance used by both stationarity tests.
const alpha = 0.05

// ADFResult is the outcome of an Augmented Dickey-Fuller unit-root test.
// The null hypothesis is that the series has a unit root (is non-stationary);
// a p-value below 0.05 rejects the null in favour of stationarity.
type ADFResult struct {
	Statistic  float64
	PValue     float64
	Lags       int
	Stationary bool
}

// KPSSResult is the outcome of a KPSS level-stationarity test.
// The null hypothesis is that the series is stationary; a p-value of 0.05 or
// above fails to reject the null, favouring stationarity.
type KPSSResult struct {
	Statistic  float64
	PValue     float64
	Lags       int
	Stationary bool
}

// StationarityResult combines both tests under the dual decision rule:
// the series is declared stationary only when ADF rejects its null AND KPSS
// fails to reject its null. Either test alone is unreliable near the
// boundary. A test that could not be computed is recorded in ADFError or
// KPSSError and counts against stationarity.
type StationarityResult struct {
	ADF        *ADFResult
	ADFError   string
	KPSS       *KPSSResult
	KPSSError  string
	Stationary bool
}

// Stationarity runs the dual ADF/KPSS test on the series.
// Computation failures never propagate as errors; they are recorded on the
// result and force Stationary to false.
func Stationarity(s *series.TimeSeries) StationarityResult {
	var out StationarityResult

	adf, err := ADF(s, 0)
	if err != nil {
		out.ADFError = err.Error()
	} else {
		out.ADF = adf
	}

	kpss, err := KPSS(s, 0)
	if err != nil {
		out.KPSSError = err.Error()
	} else {
		out.KPSS = kpss
	}

	out.Stationary = out.ADF != nil && out.ADF.Stationary &&
		out.KPSS != nil && out.KPSS.Stationary

	return out
}

// ADF performs the Augmented Dickey-Fuller test with a constant term.
// maxLag <= 0 selects the default floor((n-1)^(1/3)).
func ADF(s *series.TimeSeries, maxLag int) (*ADFResult, error) {
	n := s.Len()
	if n < 10 {
		return nil, fmt.Errorf("adf: need at least 10 points, got %d", n)
	}

	if maxLag <= 0 {
		maxLag = int(math.Floor(math.Pow(float64(n-1), 1.0/3.0)))
	}
	if maxLag >= n-1 {
		maxLag = n - 2
	}

	values := s.Values()
	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = values[i] - values[i-1]
	}

	// Regression: Δy_t = α + β·y_{t-1} + Σ γ_i·Δy_{t-i} + ε.
	// The test statistic is the t-stat of β.
	nObs := n - maxLag - 1
	if nObs < 10 {
		return nil, fmt.Errorf("adf: only %d usable observations after %d lags", nObs, maxLag)
	}

	y := make([]float64, nObs)
	x := make([][]float64, nObs)
	for i := range nObs {
		t := i + maxLag
		y[i] = diff[t]
		row := make([]float64, 2+maxLag)
		row[0] = 1
		row[1] = values[t]
		for j := 1; j <= maxLag; j++ {
			row[1+j] = diff[t-j]
		}
		x[i] = row
	}

	coeffs, se, err := ols(x, y)
	if err != nil {
		return nil, fmt.Errorf("adf: %w", err)
	}
	if se[1] == 0 {
		return nil, errors.New("adf: degenerate regressor variance")
	}

	tStat := coeffs[1] / se[1]
	p := mackinnonPValue(tStat)

	return &ADFResult{
		Statistic:  tStat,
		PValue:     p,
		Lags:       maxLag,
		Stationary: p <= alpha,
	}, nil
}

// KPSS performs the Kwiatkowski-Phillips-Schmidt-Shin test for level
// stationarity (constant-only regression, matching the upstream data
// pipeline). nlags <= 0 selects the default ceil(12·(n/100)^0.25).
func KPSS(s *series.TimeSeries, nlags int) (*KPSSResult, error) {
	n := s.Len()
	if n < 10 {
		return nil, fmt.Errorf("kpss: need at least 10 points, got %d", n)
	}

	if nlags <= 0 {
		nlags = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	}
	if nlags >= n {
		nlags = n - 1
	}

	values := s.Values()
	mean := s.Mean()
	residuals := make([]float64, n)
	for i, v := range values {
		residuals[i] = v - mean
	}

	// Long-run variance via Newey-West with Bartlett weights.
	s2 := 0.0
	for _, r := range residuals {
		s2 += r * r
	}
	s2 /= float64(n)

	for l := 1; l <= nlags; l++ {
		cov := 0.0
		for i := l; i < n; i++ {
			cov += residuals[i] * residuals[i-l]
		}
		cov /= float64(n)
		weight := 1 - float64(l)/float64(nlags+1)
		s2 += 2 * weight * cov
	}

	if s2 <= 0 {
		return nil, errors.New("kpss: degenerate long-run variance")
	}

	cum := 0.0
	etaSq := 0.0
	for _, r := range residuals {
		cum += r
		etaSq += cum * cum
	}
	stat := etaSq / (float64(n) * float64(n) * s2)

	p := kpssPValue(stat)

	return &KPSSResult{
		Statistic:  stat,
		PValue:     p,
		Lags:       nlags,
		Stationary: p >= alpha,
	}, nil
}

// ols solves y = Xβ + ε by QR least squares and returns the coefficients
// with their standard errors.
func ols(x [][]float64, y []float64) (coeffs, stderrs []float64, err error) {
	n := len(y)
	if n == 0 || len(x) != n {
		return nil, nil, errors.New("ols: empty or mismatched design matrix")
	}
	k := len(x[0])
	if n <= k {
		return nil, nil, fmt.Errorf("ols: %d observations for %d regressors", n, k)
	}

	X := mat.NewDense(n, k, nil)
	for i, row := range x {
		X.SetRow(i, row)
	}
	Y := mat.NewVecDense(n, y)

	var qr mat.QR
	qr.Factorize(X)

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, Y); err != nil {
		return nil, nil, fmt.Errorf("ols: singular design matrix: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)

	sse := 0.0
	for i := range n {
		r := y[i] - fitted.AtVec(i)
		sse += r * r
	}
	sigma2 := sse / float64(n-k)

	var xtx, inv mat.Dense
	xtx.Mul(X.T(), X)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, nil, fmt.Errorf("ols: X'X not invertible: %w", err)
	}

	coeffs = make([]float64, k)
	stderrs = make([]float64, k)
	for i := range k {
		coeffs[i] = beta.AtVec(i)
		stderrs[i] = math.Sqrt(sigma2 * inv.At(i, i))
	}

	return coeffs, stderrs, nil
}

// mackinnonPValue interpolates the approximate p-value of an ADF statistic
// for the constant-only regression, after MacKinnon (1994).
func mackinnonPValue(stat float64) float64 {
	switch {
	case stat < -3.96:
		return 0.001
	case stat < -3.43:
		return 0.01
	case stat < -2.86:
		return 0.05
	case stat < -2.57:
		return 0.10
	case stat < -1.94:
		return 0.25
	case stat < -1.62:
		return 0.50
	default:
		return math.Min(0.5+(stat+1.62)*0.25, 0.99)
	}
}

// kpssPValue interpolates the approximate p-value of a KPSS statistic for
// level stationarity.
func kpssPValue(stat float64) float64 {
	switch {
	case stat > 0.739:
		return 0.01
	case stat > 0.463:
		return 0.05
	case stat > 0.347:
		return 0.10
	default:
		return math.Min(0.10+(0.347-stat)*0.5, 0.99)
	}
}
