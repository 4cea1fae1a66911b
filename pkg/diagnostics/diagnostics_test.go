package diagnostics

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/fxlab/ratecast/pkg/series"
)

func buildSeries(t *testing.T, values []float64) *series.TimeSeries {
	t.Helper()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, len(values))
	for i := range values {
		times[i] = start.AddDate(0, 0, i)
	}

	s, err := series.New("test", times, values)
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	return s
}

func whiteNoise(t *testing.T, n int, seed int64) *series.TimeSeries {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.NormFloat64()
	}
	return buildSeries(t, values)
}

func randomWalk(t *testing.T, n int, seed int64) *series.TimeSeries {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	level := 0.0
	for i := range values {
		level += rng.NormFloat64()
		values[i] = level
	}
	return buildSeries(t, values)
}

func TestStationarity_WhiteNoise(t *testing.T) {
	s := whiteNoise(t, 300, 1)

	result := Stationarity(s)

	if result.ADFError != "" || result.KPSSError != "" {
		t.Fatalf("unexpected test failures: adf=%q kpss=%q", result.ADFError, result.KPSSError)
	}
	if !result.ADF.Stationary {
		t.Errorf("ADF on white noise: stationary = false (p=%v)", result.ADF.PValue)
	}
	if !result.KPSS.Stationary {
		t.Errorf("KPSS on white noise: stationary = false (p=%v)", result.KPSS.PValue)
	}
	if !result.Stationary {
		t.Error("white noise declared non-stationary")
	}
}

func TestStationarity_RandomWalk(t *testing.T) {
	s := randomWalk(t, 300, 2)

	result := Stationarity(s)

	if result.Stationary {
		t.Error("random walk declared stationary")
	}
}

func TestStationarity_DegenerateSeriesRecordedNotRaised(t *testing.T) {
	// constant series: KPSS long-run variance is zero
	values := make([]float64, 50)
	for i := range values {
		values[i] = 1.5
	}
	s := buildSeries(t, values)

	result := Stationarity(s)

	if result.KPSSError == "" {
		t.Error("expected KPSS failure to be recorded")
	}
	if result.Stationary {
		t.Error("degenerate series must not be declared stationary")
	}
}

func TestADF_TooShort(t *testing.T) {
	s := buildSeries(t, []float64{1, 2, 3})
	if _, err := ADF(s, 0); err == nil {
		t.Error("expected error for short series")
	}
}

func TestCorrelation_AR1HasSignificantLag1(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 400)
	prev := 0.0
	for i := range values {
		prev = 0.8*prev + rng.NormFloat64()
		values[i] = prev
	}
	s := buildSeries(t, values)

	profile, err := Correlation(s, DefaultMaxLag)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}

	if len(profile.SignificantACF) == 0 || profile.SignificantACF[0] != 1 {
		t.Errorf("AR(1): significant ACF lags = %v, want first lag 1", profile.SignificantACF)
	}
	if len(profile.SignificantPACF) == 0 || profile.SignificantPACF[0] != 1 {
		t.Errorf("AR(1): significant PACF lags = %v, want first lag 1", profile.SignificantPACF)
	}
	if len(profile.SignificantACF) > 5 || len(profile.SignificantPACF) > 5 {
		t.Error("significant lag lists must be capped at 5")
	}
}

func TestCorrelation_WhiteNoiseFalsePositiveRate(t *testing.T) {
	s := whiteNoise(t, 500, 4)

	profile, err := Correlation(s, DefaultMaxLag)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}

	// Under the 95% band roughly 5% of 40 lags exceed it by chance.
	count := 0
	for i := 1; i < len(profile.ACF); i++ {
		if math.Abs(profile.ACF[i]) > profile.ConfBound {
			count++
		}
	}
	if count > 6 {
		t.Errorf("white noise: %d significant ACF lags of 40, want near 2", count)
	}
}

func TestCorrelation_PACFLag1MatchesACF(t *testing.T) {
	s := whiteNoise(t, 100, 5)

	profile, err := Correlation(s, 10)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}

	if profile.PACF[0] != 1 {
		t.Errorf("PACF[0] = %v, want 1", profile.PACF[0])
	}
	if math.Abs(profile.PACF[1]-profile.ACF[1]) > 1e-12 {
		t.Errorf("PACF[1] = %v, ACF[1] = %v, want equal", profile.PACF[1], profile.ACF[1])
	}
}

func TestCorrelation_ConstantSeries(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 2.0
	}
	s := buildSeries(t, values)

	if _, err := Correlation(s, 10); err == nil {
		t.Error("expected error for zero-variance series")
	}
}

func TestDecompose_SineWave(t *testing.T) {
	const period = 7
	rng := rand.New(rand.NewSource(6))
	values := make([]float64, 210)
	for i := range values {
		values[i] = 10 + 3*math.Sin(2*math.Pi*float64(i)/period) + 0.1*rng.NormFloat64()
	}
	s := buildSeries(t, values)

	d := Decompose(s, period)

	if !d.Available {
		t.Fatalf("decomposition unavailable: %s", d.Reason)
	}
	if !d.HasSeasonality {
		t.Error("strong weekly sine: HasSeasonality = false")
	}
	if d.SeasonalStrength <= 1 {
		t.Errorf("seasonal strength = %v, want > 1 for dominant seasonality", d.SeasonalStrength)
	}
	if len(d.Trend) != s.Len() || len(d.Seasonal) != s.Len() || len(d.Residual) != s.Len() {
		t.Error("component lengths must match the series")
	}
}

func TestDecompose_NoSeasonality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 200)
	for i := range values {
		values[i] = float64(i) + 5*rng.NormFloat64()
	}
	s := buildSeries(t, values)

	d := Decompose(s, 7)

	if !d.Available {
		t.Fatalf("decomposition unavailable: %s", d.Reason)
	}
	if d.HasSeasonality {
		t.Error("trend plus noise: HasSeasonality = true")
	}
}

func TestDecompose_Unavailable(t *testing.T) {
	s := buildSeries(t, []float64{1, 2, 3, 4, 5})

	d := Decompose(s, 7)
	if d.Available {
		t.Error("expected unavailable for series shorter than two periods")
	}
	if d.Reason == "" {
		t.Error("expected a reason for unavailability")
	}
}

func TestAnalyze(t *testing.T) {
	s := whiteNoise(t, 300, 8)

	summary := Analyze(s, 7, 0)

	if summary.Stats.Count != 300 {
		t.Errorf("count = %d, want 300", summary.Stats.Count)
	}
	if summary.Correlation == nil {
		t.Fatalf("correlation missing: %s", summary.CorrelationError)
	}
	if len(summary.Correlation.ACF) != DefaultMaxLag+1 {
		t.Errorf("ACF length = %d, want %d", len(summary.Correlation.ACF), DefaultMaxLag+1)
	}
	if summary.Stats.Min > summary.Stats.Max {
		t.Error("min > max")
	}
}

func TestDecomposition_JSONRoundTrip(t *testing.T) {
	const period = 7
	values := make([]float64, 70)
	for i := range values {
		values[i] = 10 + 3*math.Sin(2*math.Pi*float64(i)/period) + 0.01*float64(i)
	}
	s := buildSeries(t, values)

	d := Decompose(s, period)
	if !d.Available {
		t.Fatalf("decomposition unavailable: %s", d.Reason)
	}
	if !math.IsNaN(d.Trend[0]) {
		t.Fatal("expected NaN trend at the left edge of the centered MA")
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Decomposition
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !got.Available || got.Period != period {
		t.Errorf("round trip lost header fields: %+v", got)
	}
	if len(got.Trend) != len(d.Trend) || len(got.Residual) != len(d.Residual) {
		t.Fatal("round trip changed component lengths")
	}
	for i := range d.Trend {
		switch {
		case math.IsNaN(d.Trend[i]) != math.IsNaN(got.Trend[i]):
			t.Fatalf("trend[%d] NaN-ness changed across round trip", i)
		case !math.IsNaN(d.Trend[i]) && math.Abs(d.Trend[i]-got.Trend[i]) > 1e-12:
			t.Fatalf("trend[%d] = %v, want %v", i, got.Trend[i], d.Trend[i])
		}
	}
	if got.HasSeasonality != d.HasSeasonality {
		t.Errorf("HasSeasonality = %v, want %v", got.HasSeasonality, d.HasSeasonality)
	}
}

func TestSummary_JSONMarshal(t *testing.T) {
	const period = 7
	values := make([]float64, 140)
	for i := range values {
		values[i] = 50 + 0.05*float64(i) + 5*math.Sin(2*math.Pi*float64(i)/period)
	}
	s := buildSeries(t, values)

	summary := Analyze(s, period, 0)
	if !summary.Decomposition.Available {
		t.Fatalf("decomposition unavailable: %s", summary.Decomposition.Reason)
	}

	if _, err := json.Marshal(summary); err != nil {
		t.Fatalf("Marshal() error = %v, full summary must encode", err)
	}
}
