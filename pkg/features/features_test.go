package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fxlab/ratecast/pkg/series"
)

func linearSeries(t *testing.T, n int) *series.TimeSeries {
	t.Helper()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	values := make([]float64, n)
	for i := range values {
		times[i] = start.AddDate(0, 0, i)
		values[i] = float64(i + 1)
	}

	s, err := series.New("linear", times, values)
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	return s
}

func TestBuild_Columns(t *testing.T) {
	s := linearSeries(t, 20)

	frame, err := Build(s, 3, 4)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{"lag_1", "lag_2", "lag_3", "rolling_mean_4", "rolling_std_4"}
	if len(frame.Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", frame.Columns, want)
	}
	for i, name := range want {
		if frame.Columns[i] != name {
			t.Errorf("column %d = %q, want %q", i, frame.Columns[i], name)
		}
	}
}

func TestBuild_DropsIncompleteRows(t *testing.T) {
	s := linearSeries(t, 20)

	frame, err := Build(s, 5, 3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// first complete row targets index max(5, 3) = 5
	if frame.Len() != 15 {
		t.Fatalf("rows = %d, want 15", frame.Len())
	}
	if frame.Index[0] != 5 {
		t.Errorf("first row index = %d, want 5", frame.Index[0])
	}
	if frame.Y[0] != 6 {
		t.Errorf("first target = %v, want 6", frame.Y[0])
	}
}

func TestBuild_LagValues(t *testing.T) {
	s := linearSeries(t, 20)

	frame, err := Build(s, 2, 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// row targeting value 11 (series index 10): lags 10, 9; window {9, 10}
	var row []float64
	for i, idx := range frame.Index {
		if idx == 10 {
			row = frame.X[i]
			break
		}
	}
	if row == nil {
		t.Fatal("row for index 10 not found")
	}
	if row[0] != 10 || row[1] != 9 {
		t.Errorf("lags = %v, %v, want 10, 9", row[0], row[1])
	}
	if row[2] != 9.5 {
		t.Errorf("rolling mean = %v, want 9.5", row[2])
	}
	if math.Abs(row[3]-math.Sqrt(0.5)) > 1e-12 {
		t.Errorf("rolling std = %v, want %v", row[3], math.Sqrt(0.5))
	}
}

func TestBuild_NoLeakage(t *testing.T) {
	s := linearSeries(t, 30)

	frame, err := Build(s, 3, 3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Every feature derives from values before the target, so on a strictly
	// increasing series every feature must be strictly below the target.
	for i, row := range frame.X {
		for j, v := range row {
			if v >= frame.Y[i] {
				t.Fatalf("row %d column %s: feature %v >= target %v", i, frame.Columns[j], v, frame.Y[i])
			}
		}
	}
}

func TestBuild_TooManyLags(t *testing.T) {
	s := linearSeries(t, 6)

	_, err := Build(s, 6, 3)
	var cfgErr *series.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestBuildSplit_BoundaryMatchesSeriesSplit(t *testing.T) {
	s := linearSeries(t, 100)

	split, err := BuildSplit(s, 5, 3, 0.2)
	if err != nil {
		t.Fatalf("build split: %v", err)
	}

	if split.Boundary != series.SplitIndex(100, 0.2) {
		t.Errorf("boundary = %d, want %d", split.Boundary, series.SplitIndex(100, 0.2))
	}
	for _, idx := range split.Train.Index {
		if idx >= split.Boundary {
			t.Fatalf("train row index %d crosses boundary %d", idx, split.Boundary)
		}
	}
	for _, idx := range split.Test.Index {
		if idx < split.Boundary {
			t.Fatalf("test row index %d before boundary %d", idx, split.Boundary)
		}
	}
	if split.Train.Len()+split.Test.Len() != 95 {
		t.Errorf("total rows = %d, want 95", split.Train.Len()+split.Test.Len())
	}
}

func TestBuildSplit_InvalidFraction(t *testing.T) {
	s := linearSeries(t, 50)

	for _, fraction := range []float64{0, 1, -0.1, 1.5} {
		if _, err := BuildSplit(s, 3, 3, fraction); err == nil {
			t.Errorf("fraction %v: expected error", fraction)
		}
	}
}

func TestBuildSplit_EmptySide(t *testing.T) {
	// 12 points, 5 lags: rows target indexes 5..11. Fraction 0.7 puts the
	// boundary at 3, before the first surviving row, so train is empty.
	s := linearSeries(t, 12)

	_, err := BuildSplit(s, 5, 3, 0.7)
	var cfgErr *series.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}
