// Package models implements the forecasting models the pipeline compares:
// a seasonal ARIMA model fitted on the raw series and a small family of
// regression models fitted on the lag/rolling feature frame.
//
// Every model is fit-once: Forecast and Predict return ErrNotFitted until
// a successful Fit, and numerical trouble during fitting is returned as an
// error rather than panicking, so the tuner can record it as a failed trial.
package models

import (
	"errors"
	"fmt"
)

// ErrNotFitted is returned by forecast and predict operations invoked
// before a successful fit.
var ErrNotFitted = errors.New("model not fitted, call Fit() first")

// Order holds the non-seasonal ARIMA orders (p, d, q).
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

func (o Order) String() string { return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q) }

// SeasonalOrder holds the seasonal orders (P, D, Q) at period S.
// A zero SeasonalOrder disables the seasonal component.
type SeasonalOrder struct {
	P int `json:"P"`
	D int `json:"D"`
	Q int `json:"Q"`
	S int `json:"s"`
}

func (o SeasonalOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", o.P, o.D, o.Q, o.S)
}

// IsZero reports whether the seasonal component is disabled.
func (o SeasonalOrder) IsZero() bool { return o.P == 0 && o.D == 0 && o.Q == 0 }
