package models

import (
	"fmt"
	"math"
)

// Record holds pointwise error metrics of one model against held-out data.
//
// MAPE divides by the actual values, so it is undefined whenever any actual
// is exactly zero; MAPEDefined distinguishes that case from a genuine zero
// error instead of reporting infinity.
type Record struct {
	MSE         float64 `json:"mse"`
	MAE         float64 `json:"mae"`
	RMSE        float64 `json:"rmse"`
	MAPE        float64 `json:"mape"`
	MAPEDefined bool    `json:"mape_defined"`
}

// Evaluate computes MSE, MAE, RMSE and MAPE of predicted against actual.
func Evaluate(actual, predicted []float64) (Record, error) {
	if len(actual) == 0 {
		return Record{}, fmt.Errorf("evaluate: no observations")
	}
	if len(actual) != len(predicted) {
		return Record{}, fmt.Errorf("evaluate: %d actuals but %d predictions", len(actual), len(predicted))
	}

	var sumSq, sumAbs, sumPct float64
	mapeDefined := true
	for i := range actual {
		diff := actual[i] - predicted[i]
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
		if actual[i] == 0 {
			mapeDefined = false
		} else {
			sumPct += math.Abs(diff / actual[i])
		}
	}

	n := float64(len(actual))
	rec := Record{
		MSE:         sumSq / n,
		MAE:         sumAbs / n,
		MAPEDefined: mapeDefined,
	}
	rec.RMSE = math.Sqrt(rec.MSE)
	if mapeDefined {
		rec.MAPE = sumPct / n * 100
	}
	return rec, nil
}
