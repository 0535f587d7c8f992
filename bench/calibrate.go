// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bench isolates per-vector execution cost: the calibrator
// subtracts fixed harness overhead from raw timings, and the fitter
// derives a cost model from the calibrated samples.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay"
)

// DefaultCalibrationIterations is the default number of no-op baseline
// runs used to estimate harness overhead.
const DefaultCalibrationIterations = 50

var errNoIterations = errors.New("calibration requires at least one iteration")

// CalibrationSample is one (work units, raw elapsed) observation.
// Immutable once recorded.
type CalibrationSample struct {
	WorkUnits uint64
	Elapsed   time.Duration
}

// Calibrator holds the measured baseline offset of the replay harness.
type Calibrator struct {
	offset     time.Duration
	iterations int
}

// Calibrate replays a degenerate zero-message vector [iterations] times
// through the ordinary engine path and takes the median raw elapsed time
// as the baseline offset. The median, not the mean, is used so that
// scheduler-noise outliers do not inflate the offset.
func Calibrate(ctx context.Context, factory replay.MachineFactory, iterations int) (*Calibrator, error) {
	if iterations < 1 {
		return nil, errNoIterations
	}

	baseline, err := corpus.BaselineVector()
	if err != nil {
		return nil, fmt.Errorf("couldn't build baseline vector: %w", err)
	}

	elapsed := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		result := replay.Replay(ctx, baseline, factory, nil)
		if result.Outcome != replay.Pass {
			return nil, fmt.Errorf("baseline replay %d ended %s: %s", i, result.Outcome, result.Reason)
		}
		elapsed = append(elapsed, result.ElapsedRaw)
	}

	c := &Calibrator{
		offset:     median(elapsed),
		iterations: iterations,
	}
	log.Info("calibrated harness overhead", "iterations", iterations, "offset", c.offset)
	return c, nil
}

// Offset returns the measured baseline offset.
func (c *Calibrator) Offset() time.Duration { return c.offset }

// Apply converts a raw elapsed time into calibrated machine-only cost,
// floored at zero. A raw time below the baseline means measurement noise
// exceeded the offset; negative cost is meaningless, so it clamps.
func (c *Calibrator) Apply(raw time.Duration) time.Duration {
	calibrated := raw - c.offset
	if calibrated < 0 {
		return 0
	}
	return calibrated
}

// Annotate fills in the calibrated elapsed time of [result] in place.
func (c *Calibrator) Annotate(result *replay.Result) {
	result.ElapsedCalibrated = c.Apply(result.ElapsedRaw)
	result.Calibrated = true
}

func median(durations []time.Duration) time.Duration {
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
