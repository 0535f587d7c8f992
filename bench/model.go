// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bench

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientData is returned when a fit is requested over samples
// that cannot determine a line: fewer than two samples, or zero variance
// in work units. Callers report it as a non-fatal annotation; the run
// continues without a fitted model.
var ErrInsufficientData = errors.New("insufficient data to fit cost model")

// CostModel maps declared work units to expected execution cost:
// elapsed = Slope*workUnits + Intercept, in nanoseconds. A model is never
// mutated in place; a new fit supersedes the old.
type CostModel struct {
	// Slope is nanoseconds per work unit.
	Slope float64
	// Intercept is the fixed per-run cost in nanoseconds.
	Intercept float64
	// ResidualVariance is the unbiased variance of the fit residuals
	// (zero when fewer than three samples leave no degrees of freedom).
	ResidualVariance float64
	// R2 is the coefficient of determination; callers reject
	// low-confidence fits by thresholding it.
	R2 float64
	// Samples is the number of observations the model was fitted over.
	Samples int
}

// Predict returns the modeled cost of [workUnits], floored at zero.
func (m *CostModel) Predict(workUnits uint64) time.Duration {
	ns := m.Slope*float64(workUnits) + m.Intercept
	if ns < 0 {
		return 0
	}
	return time.Duration(ns)
}

func (m *CostModel) String() string {
	return fmt.Sprintf(
		"elapsed = %.3f ns/unit * work + %.1f ns (r2=%.4f, n=%d)",
		m.Slope, m.Intercept, m.R2, m.Samples,
	)
}

// Fit computes the ordinary-least-squares line through [samples] in
// closed form over the standard sums. Degenerate input returns
// ErrInsufficientData instead of a spurious fit.
func Fit(samples []CalibrationSample) (*CostModel, error) {
	n := len(samples)
	if n < 2 {
		return nil, ErrInsufficientData
	}

	var sumX, sumY, sumXY, sumXX float64
	distinct := make(map[uint64]struct{}, n)
	for _, s := range samples {
		x := float64(s.WorkUnits)
		y := float64(s.Elapsed)
		distinct[s.WorkUnits] = struct{}{}
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	// A slope needs at least two distinct work-unit values. Counted
	// directly: at large magnitudes, rounding in the float sums can leave
	// the denominator nonzero for constant-x input.
	if len(distinct) < 2 {
		return nil, ErrInsufficientData
	}

	fn := float64(n)
	// n*Σx² - (Σx)² is n² times the x-variance; zero means no slope is
	// determined.
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return nil, ErrInsufficientData
	}

	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	meanY := sumY / fn
	var ssRes, ssTot float64
	for _, s := range samples {
		x := float64(s.WorkUnits)
		y := float64(s.Elapsed)
		residual := y - (slope*x + intercept)
		ssRes += residual * residual
		ssTot += (y - meanY) * (y - meanY)
	}

	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	var residualVariance float64
	if n > 2 {
		residualVariance = ssRes / float64(n-2)
	}

	return &CostModel{
		Slope:            slope,
		Intercept:        intercept,
		ResidualVariance: residualVariance,
		R2:               r2,
		Samples:          n,
	}, nil
}
