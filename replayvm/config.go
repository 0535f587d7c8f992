// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"runtime"
	"time"

	"github.com/ava-labs/replayvm/bench"
	"github.com/ava-labs/replayvm/corpus"
)

// DefaultVectorTimeout bounds a single vector's replay.
const DefaultVectorTimeout = 30 * time.Second

// Config is the run configuration supplied by the CLI loader. The harness
// treats it as an opaque input; it performs no I/O of its own.
type Config struct {
	// CorpusDir is the root of the vector directory tree.
	CorpusDir string

	// Workers is the worker pool size; 0 means the available processor
	// count.
	Workers int

	// VectorTimeout bounds one vector's replay; a vector exceeding it is
	// recorded as ERROR (timeout) without blocking the pool.
	VectorTimeout time.Duration

	// Retries is how many times a timed-out vector is retried. Zero by
	// default: re-running a deterministic replay that timed out rarely
	// resolves differently.
	Retries int

	// Selection configures the selector evaluator.
	Selection corpus.RunConfig

	// ToleranceOverride, when set, replaces the per-vector tolerance for
	// vectors running relaxed.
	ToleranceOverride *corpus.GasTolerance

	// CalibrationIterations is the number of no-op baseline runs on the
	// benchmarking path; 0 means bench.DefaultCalibrationIterations.
	CalibrationIterations int

	// ProfileVectors enables the per-vector profiling hook. Off by
	// default; the pool runs a no-op hook otherwise.
	ProfileVectors bool
}

// WithDefaults returns a copy of [c] with zero fields defaulted.
func (c Config) WithDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = DefaultVectorTimeout
	}
	if c.CalibrationIterations <= 0 {
		c.CalibrationIterations = bench.DefaultCalibrationIterations
	}
	return c
}
