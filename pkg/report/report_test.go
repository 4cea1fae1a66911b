package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fxlab/ratecast/pkg/models"
)

func TestBuild_RanksByRMSEThenMAE(t *testing.T) {
	records := map[string]models.Record{
		"sarima":            {RMSE: 2.0, MAE: 1.5, MSE: 4.0, MAPE: 3, MAPEDefined: true},
		"linear_regression": {RMSE: 1.0, MAE: 0.9, MSE: 1.0, MAPE: 2, MAPEDefined: true},
		"random_forest":     {RMSE: 1.0, MAE: 0.7, MSE: 1.0, MAPE: 2, MAPEDefined: true},
	}

	r := Build("usd_eur", records, nil)

	wantOrder := []string{"random_forest", "linear_regression", "sarima"}
	for i, name := range wantOrder {
		if r.Entries[i].Name != name {
			t.Errorf("rank %d = %q, want %q", i+1, r.Entries[i].Name, name)
		}
		if r.Entries[i].Rank != i+1 {
			t.Errorf("entry %q rank = %d, want %d", name, r.Entries[i].Rank, i+1)
		}
	}

	best, ok := r.Best()
	if !ok || best.Name != "random_forest" {
		t.Errorf("best = %+v, ok = %v", best, ok)
	}
}

func TestBuild_FailuresKeptUnranked(t *testing.T) {
	records := map[string]models.Record{
		"linear_regression": {RMSE: 1.0, MAE: 0.9},
	}
	failures := map[string]string{
		"sarima": "zero variance after differencing",
	}

	r := Build("usd_eur", records, failures)

	if len(r.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(r.Entries))
	}
	failed := r.Entries[1]
	if failed.Name != "sarima" || failed.Rank != 0 || failed.Failure == "" || failed.Metrics != nil {
		t.Errorf("failed entry = %+v", failed)
	}
}

func TestBuild_AllFailed(t *testing.T) {
	r := Build("usd_eur", nil, map[string]string{"sarima": "boom", "random_forest": "boom"})

	if _, ok := r.Best(); ok {
		t.Error("Best must report false when every model failed")
	}
	if len(r.Entries) != 2 {
		t.Errorf("entries = %d, want 2 (failures never dropped)", len(r.Entries))
	}
}

func TestRender(t *testing.T) {
	records := map[string]models.Record{
		"linear_regression": {RMSE: 1.5, MAE: 1.2, MSE: 2.25, MAPEDefined: false},
	}
	failures := map[string]string{"sarima": "too few residuals"}

	var buf bytes.Buffer
	if err := Build("usd_eur", records, failures).Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"usd_eur", "linear_regression", "undefined", "Failed models:", "too few residuals"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
}

func TestReport_JSONShape(t *testing.T) {
	records := map[string]models.Record{
		"linear_regression": {RMSE: 1.5, MAE: 1.2, MSE: 2.25, MAPE: 4.2, MAPEDefined: true},
	}

	data, err := json.Marshal(Build("usd_eur", records, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.SeriesName != "usd_eur" || len(decoded.Entries) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Entries[0].Metrics == nil || decoded.Entries[0].Metrics.RMSE != 1.5 {
		t.Errorf("metrics lost in round trip: %+v", decoded.Entries[0])
	}
}
