package models

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/fxlab/ratecast/pkg/series"
)

// SARIMA is a seasonal ARIMA(p,d,q)(P,D,Q,s) model.
//
// Fitting applies non-seasonal and seasonal differencing, estimates AR
// coefficients by Yule-Walker (Levinson-Durbin on the sample ACF), reads MA
// coefficients off the residual autocorrelations, and scores the fit with a
// Gaussian log-likelihood AIC. The model is safe for concurrent Forecast
// calls after Fit returns.
type SARIMA struct {
	order    Order
	seasonal SeasonalOrder

	mu        sync.RWMutex
	fitted    bool
	mean      float64
	ar        []float64
	ma        []float64
	sar       []float64
	sma       []float64
	centered  []float64
	residuals []float64
	stages    []diffStage
	sigma2    float64
	logLik    float64
	aic       float64
	nobs      int
}

// diffStage records the series as it was before one differencing step, so
// forecasts on the stationary scale can be integrated back.
type diffStage struct {
	lag    int
	values []float64
}

// NewSARIMA validates the orders and returns an unfitted model.
// Invalid orders are reported as errors so a grid search can log them as
// failed candidates instead of aborting.
func NewSARIMA(order Order, seasonal SeasonalOrder) (*SARIMA, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("sarima: negative non-seasonal order %s", order)
	}
	if order.D > 2 {
		return nil, fmt.Errorf("sarima: differencing order %d exceeds 2", order.D)
	}
	if seasonal.P < 0 || seasonal.D < 0 || seasonal.Q < 0 {
		return nil, fmt.Errorf("sarima: negative seasonal order %s", seasonal)
	}
	if seasonal.D > 1 {
		return nil, fmt.Errorf("sarima: seasonal differencing order %d exceeds 1", seasonal.D)
	}
	if !seasonal.IsZero() && seasonal.S <= 0 {
		return nil, fmt.Errorf("sarima: seasonal order %s requires a positive period", seasonal)
	}

	return &SARIMA{order: order, seasonal: seasonal}, nil
}

func (m *SARIMA) Name() string {
	if m.seasonal.IsZero() {
		return fmt.Sprintf("sarima%s", m.order)
	}
	return fmt.Sprintf("sarima%s%s", m.order, m.seasonal)
}

// Fit estimates the model from the training series.
// Numerical trouble (too little data, zero variance after differencing,
// unstable Yule-Walker recursion) is returned as an error and leaves the
// model unfitted.
func (m *SARIMA) Fit(s *series.TimeSeries) error {
	values := s.Values()
	p, d, q := m.order.P, m.order.D, m.order.Q
	P, D, Q, sp := m.seasonal.P, m.seasonal.D, m.seasonal.Q, m.seasonal.S

	longest := max(max(p, P*sp), max(q, Q*sp))
	minPoints := d + D*sp + longest + 10
	if len(values) < minPoints {
		return fmt.Errorf("sarima: need at least %d points for %s, got %d", minPoints, m.Name(), len(values))
	}

	var stages []diffStage
	cur := values
	for i := 0; i < d; i++ {
		stages = append(stages, diffStage{lag: 1, values: cur})
		cur = diff(cur, 1)
	}
	for i := 0; i < D; i++ {
		stages = append(stages, diffStage{lag: sp, values: cur})
		cur = diff(cur, sp)
	}

	mean := meanOf(cur)
	centered := make([]float64, len(cur))
	for i, v := range cur {
		centered[i] = v - mean
	}

	if varianceOf(centered) < 1e-12 {
		return errors.New("sarima: zero variance after differencing")
	}

	ar, err := yuleWalker(centered, p, 1)
	if err != nil {
		return fmt.Errorf("sarima: AR fit: %w", err)
	}
	sar, err := yuleWalker(centered, P, sp)
	if err != nil {
		return fmt.Errorf("sarima: seasonal AR fit: %w", err)
	}

	residuals := arResiduals(centered, ar, sar, sp)
	if len(residuals) < 2 {
		return errors.New("sarima: too few residuals after AR fit")
	}

	ma := residualMA(residuals, q, 1)
	sma := residualMA(residuals, Q, sp)

	var sumSq float64
	for _, r := range residuals {
		sumSq += r * r
	}
	sigma2 := sumSq / float64(len(residuals))
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return errors.New("sarima: degenerate residual variance")
	}

	n := float64(len(residuals))
	logLik := -0.5 * n * (math.Log(2*math.Pi) + math.Log(sigma2) + 1)
	k := float64(p + q + P + Q + 1)
	aic := -2*logLik + 2*k

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fitted = true
	m.mean = mean
	m.ar = ar
	m.ma = ma
	m.sar = sar
	m.sma = sma
	m.centered = centered
	m.residuals = residuals
	m.stages = stages
	m.sigma2 = sigma2
	m.logLik = logLik
	m.aic = aic
	m.nobs = len(residuals)

	return nil
}

// AIC returns the Akaike information criterion of the fit.
func (m *SARIMA) AIC() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.fitted {
		return 0, ErrNotFitted
	}
	return m.aic, nil
}

// Forecast predicts the next steps values beyond the training series.
//
// The recursion runs on the differenced scale with future shocks set to
// zero; results are then integrated back through every differencing stage.
func (m *SARIMA) Forecast(steps int) ([]float64, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("sarima: forecast steps %d must be positive", steps)
	}

	m.mu.RLock()
	if !m.fitted {
		m.mu.RUnlock()
		return nil, ErrNotFitted
	}
	mean := m.mean
	ar := append([]float64(nil), m.ar...)
	ma := append([]float64(nil), m.ma...)
	sar := append([]float64(nil), m.sar...)
	sma := append([]float64(nil), m.sma...)
	hist := append([]float64(nil), m.centered...)
	errs := append([]float64(nil), m.residuals...)
	stages := m.stages
	m.mu.RUnlock()

	sp := m.seasonal.S
	forecast := make([]float64, steps)

	for h := 0; h < steps; h++ {
		var v float64
		for i := range ar {
			v += ar[i] * hist[len(hist)-1-i]
		}
		for i := range sar {
			idx := len(hist) - 1 - (i+1)*sp
			if idx >= 0 {
				v += sar[i] * hist[idx]
			}
		}
		// shocks before the forecast origin are known, future ones are zero
		for j := 1; j <= len(ma); j++ {
			if j > h {
				idx := len(errs) - (j - h)
				if idx >= 0 {
					v += ma[j-1] * errs[idx]
				}
			}
		}
		for j := 1; j <= len(sma); j++ {
			lag := j * sp
			if lag > h {
				idx := len(errs) - (lag - h)
				if idx >= 0 {
					v += sma[j-1] * errs[idx]
				}
			}
		}

		hist = append(hist, v)
		forecast[h] = v + mean
	}

	for si := len(stages) - 1; si >= 0; si-- {
		base := stages[si].values
		lag := stages[si].lag
		ext := make([]float64, len(base), len(base)+steps)
		copy(ext, base)
		for i := range forecast {
			forecast[i] += ext[len(ext)-lag]
			ext = append(ext, forecast[i])
		}
	}

	return forecast, nil
}

// diff applies one differencing pass at the given lag.
func diff(values []float64, lag int) []float64 {
	if lag <= 0 || len(values) <= lag {
		return append([]float64(nil), values...)
	}
	out := make([]float64, len(values)-lag)
	for i := range out {
		out[i] = values[i+lag] - values[i]
	}
	return out
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func varianceOf(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := meanOf(values)
	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values)-1)
}

func autocorr(values []float64, lag int) float64 {
	if lag < 0 || lag >= len(values) {
		return 0
	}
	mean := meanOf(values)
	var c0, ck float64
	for _, v := range values {
		c0 += (v - mean) * (v - mean)
	}
	for i := 0; i < len(values)-lag; i++ {
		ck += (values[i] - mean) * (values[i+lag] - mean)
	}
	if c0 == 0 {
		return 0
	}
	return ck / c0
}

// yuleWalker estimates order AR coefficients at multiples of step from the
// sample ACF via the Levinson-Durbin recursion. step 1 gives the
// non-seasonal coefficients, step s the seasonal ones.
func yuleWalker(centered []float64, order, step int) ([]float64, error) {
	if order == 0 {
		return nil, nil
	}

	acf := make([]float64, order+1)
	for k := 0; k <= order; k++ {
		acf[k] = autocorr(centered, k*step)
	}
	return levinsonDurbin(acf, order)
}

func levinsonDurbin(acf []float64, p int) ([]float64, error) {
	phi := make([][]float64, p+1)
	for i := range phi {
		phi[i] = make([]float64, p+1)
	}

	v := acf[0]
	for k := 1; k <= p; k++ {
		num := acf[k]
		for j := 1; j < k; j++ {
			num -= phi[k-1][j] * acf[k-j]
		}

		if v == 0 {
			return nil, errors.New("zero innovation variance in Levinson-Durbin")
		}

		phi[k][k] = num / v
		for j := 1; j < k; j++ {
			phi[k][j] = phi[k-1][j] - phi[k][k]*phi[k-1][k-j]
		}

		v *= 1 - phi[k][k]*phi[k][k]
		if v < 0 {
			return nil, errors.New("negative innovation variance in Levinson-Durbin")
		}
	}

	coeffs := make([]float64, p)
	for i := range coeffs {
		coeffs[i] = phi[p][i+1]
	}
	return coeffs, nil
}

// arResiduals computes one-step prediction errors of the combined
// non-seasonal and seasonal AR components.
func arResiduals(centered, ar, sar []float64, sp int) []float64 {
	start := len(ar)
	if s := len(sar) * sp; s > start {
		start = s
	}
	if start >= len(centered) {
		return nil
	}

	residuals := make([]float64, 0, len(centered)-start)
	for t := start; t < len(centered); t++ {
		pred := 0.0
		for i := range ar {
			pred += ar[i] * centered[t-1-i]
		}
		for i := range sar {
			pred += sar[i] * centered[t-(i+1)*sp]
		}
		residuals = append(residuals, centered[t]-pred)
	}
	return residuals
}

// residualMA reads MA coefficients off the residual autocorrelations at
// multiples of step, clipped into (-1, 1).
func residualMA(residuals []float64, order, step int) []float64 {
	if order == 0 {
		return nil
	}
	coeffs := make([]float64, order)
	for i := range coeffs {
		coeffs[i] = autocorr(residuals, (i+1)*step)
		if math.Abs(coeffs[i]) > 1 {
			coeffs[i] = math.Copysign(0.9, coeffs[i])
		}
	}
	return coeffs
}
