// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/avalanchego/database/memdb"

	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay"
	"github.com/ava-labs/replayvm/replay/machinetest"
)

func newTestJobs(t *testing.T, count int) []Job {
	jobs := make([]Job, 0, count)
	for i := 0; i < count; i++ {
		vec, err := machinetest.NewVector(
			fmt.Sprintf("suite/vec-%03d", i),
			nil,
			[][]byte{[]byte(fmt.Sprintf("payload-%d", i))},
		)
		require.NoError(t, err)
		jobs = append(jobs, Job{Vector: vec})
	}
	return jobs
}

func TestPoolRunAll(t *testing.T) {
	assert := assert.New(t)

	jobs := newTestJobs(t, 20)
	pool := NewPool(4, time.Minute, 0, &machinetest.Factory{}, nil)
	results := pool.RunAll(context.Background(), jobs)

	assert.Len(results, len(jobs))
	for i, result := range results {
		assert.Equal(jobs[i].Vector.ID, result.VectorID)
		assert.Equal(replay.Pass, result.Outcome)
	}
}

// The final result list must be identical regardless of worker count or
// scheduling order.
func TestPoolOrderIndependence(t *testing.T) {
	assert := assert.New(t)

	jobs := newTestJobs(t, 30)

	outcomes := func(workers int) []string {
		pool := NewPool(workers, time.Minute, 0, &machinetest.Factory{}, nil)
		results := pool.RunAll(context.Background(), jobs)
		out := make([]string, len(results))
		for i, result := range results {
			out[i] = fmt.Sprintf("%s=%s", result.VectorID, result.Outcome)
		}
		return out
	}

	serial := outcomes(1)
	assert.Equal(serial, outcomes(4))
	assert.Equal(serial, outcomes(16))
}

// A panicking machine is converted into an ERROR outcome at the worker
// boundary and must not abort sibling vectors.
func TestPoolPanicIsolation(t *testing.T) {
	assert := assert.New(t)

	jobs := newTestJobs(t, 5)
	panicID := jobs[2].Vector.ID

	factory := &machinetest.Factory{
		ApplyHook: func(_ context.Context, msg []byte) error {
			if string(msg) == "payload-2" {
				panic("machine exploded")
			}
			return nil
		},
	}

	pool := NewPool(2, time.Minute, 0, factory, nil)
	results := pool.RunAll(context.Background(), jobs)
	assert.Len(results, len(jobs))

	for _, result := range results {
		if result.VectorID == panicID {
			assert.Equal(replay.Error, result.Outcome)
			assert.Equal(replay.ErrPanic, result.Kind)
			assert.Contains(result.Reason, "machine exploded")
		} else {
			assert.Equal(replay.Pass, result.Outcome)
		}
	}
}

// A vector exceeding the per-vector timeout is recorded as ERROR
// (timeout) while its siblings complete normally.
func TestPoolVectorTimeout(t *testing.T) {
	assert := assert.New(t)

	jobs := newTestJobs(t, 4)
	slowID := jobs[1].Vector.ID

	factory := &machinetest.Factory{
		ApplyHook: func(ctx context.Context, msg []byte) error {
			if string(msg) == "payload-1" {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}

	pool := NewPool(2, 20*time.Millisecond, 0, factory, nil)
	results := pool.RunAll(context.Background(), jobs)
	assert.Len(results, len(jobs))

	for _, result := range results {
		if result.VectorID == slowID {
			assert.Equal(replay.Error, result.Outcome)
			assert.Equal(replay.ErrTimeout, result.Kind)
		} else {
			assert.Equal(replay.Pass, result.Outcome)
		}
	}
}

// Cancelling the run mid-feed never drops a vector from the tally:
// vectors the feeder never handed out are recorded as cancelled errors.
func TestPoolRunCancelled(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	jobs := newTestJobs(t, 6)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The sole worker cancels the run while still holding the first
	// vector, so the feeder observes the cancellation before any other
	// vector is handed out.
	factory := &machinetest.Factory{
		ApplyHook: func(_ context.Context, _ []byte) error {
			cancel()
			time.Sleep(50 * time.Millisecond)
			return nil
		},
	}

	pool := NewPool(1, time.Minute, 0, factory, nil)
	results := pool.RunAll(ctx, jobs)

	require.Len(results, len(jobs))
	for i, result := range results {
		assert.Equal(jobs[i].Vector.ID, result.VectorID)
		assert.Equal(replay.Error, result.Outcome)
	}
	for _, result := range results[1:] {
		assert.Equal(replay.ErrCancelled, result.Kind)
		assert.Contains(result.Reason, "cancelled")
	}
}

func TestPoolRetriesTimeouts(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/flaky", nil, [][]byte{[]byte("payload")})
	require.NoError(t, err)

	// First attempt blocks past the deadline; the retry succeeds.
	attempts := 0
	factory := &machinetest.Factory{
		ApplyHook: func(ctx context.Context, _ []byte) error {
			attempts++
			if attempts == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}

	pool := NewPool(1, 20*time.Millisecond, 1, factory, nil)
	results := pool.RunAll(context.Background(), []Job{{Vector: vec}})

	assert.Len(results, 1)
	assert.Equal(replay.Pass, results[0].Outcome)
	assert.Equal(2, attempts)
}

func TestRunnerFilter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	runnable, err := machinetest.NewVector("suite/run", nil, nil)
	require.NoError(err)
	relaxed, err := machinetest.NewVector("suite/relaxed", map[string]string{
		corpus.SelectorRelaxedGas: "true",
	}, nil)
	require.NoError(err)
	unknown, err := machinetest.NewVector("suite/unknown", map[string]string{
		"chaos-actor": "true",
	}, nil)
	require.NoError(err)

	override := &corpus.GasTolerance{RelativeDelta: 0.05}
	runner := NewRunner(Config{
		Selection:         corpus.RunConfig{AllowRelaxedGas: true},
		ToleranceOverride: override,
	}, &machinetest.Factory{})

	jobs, skipped := runner.Filter([]*corpus.TestVector{runnable, relaxed, unknown})
	require.Len(jobs, 2)
	assert.Equal("suite/run", jobs[0].Vector.ID)
	assert.Nil(jobs[0].Tolerance)
	assert.Equal("suite/relaxed", jobs[1].Vector.ID)
	assert.Equal(override, jobs[1].Tolerance)

	require.Len(skipped, 1)
	assert.Equal("suite/unknown", skipped[0].ID)
}

func TestRunnerRun(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	passing, err := machinetest.NewVector("suite/pass", map[string]string{
		corpus.SelectorVariant: "messages",
	}, [][]byte{[]byte("ok")})
	require.NoError(err)

	failing, err := machinetest.NewVector("suite/fail", map[string]string{
		corpus.SelectorVariant: "messages",
	}, [][]byte{[]byte("bad")})
	require.NoError(err)
	failing.Post.StateRoot = corpus.BlockID([]byte("wrong"))

	erroring := &corpus.TestVector{
		ID:       "suite/error",
		CARRoot:  corpus.BlockID([]byte("missing")),
		Snapshot: memdb.New(),
	}

	runner := NewRunner(Config{
		Selection: corpus.RunConfig{Variants: []string{"messages"}},
	}, &machinetest.Factory{})

	report := runner.Run(context.Background(), &corpus.Corpus{
		Vectors:  []*corpus.TestVector{erroring, failing, passing},
		Rejected: []corpus.Rejected{{Path: "suite/garbled.json", Reason: "bad json"}},
	})

	assert.Equal(1, report.Totals.Pass)
	assert.Equal(1, report.Totals.Fail)
	assert.Equal(1, report.Totals.Error)
	assert.Equal(1, report.Totals.Skipped)
	assert.False(report.Conformant())

	// Canonical order by vector ID.
	require.Len(report.Results, 3)
	assert.Equal("suite/error", report.Results[0].VectorID)
	assert.Equal("suite/fail", report.Results[1].VectorID)
	assert.Equal("suite/pass", report.Results[2].VectorID)

	require.Len(report.Skipped, 1)
	assert.Equal("suite/garbled.json", report.Skipped[0].ID)
}

func TestRunnerRunBenchmark(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// Message sizes vary so the corpus spans distinct work-unit values.
	vectors := make([]*corpus.TestVector, 0, 5)
	for i := 1; i <= 5; i++ {
		vec, err := machinetest.NewVector(
			fmt.Sprintf("suite/work-%d", i),
			nil,
			[][]byte{make([]byte, 16*i)},
		)
		require.NoError(err)
		vectors = append(vectors, vec)
	}

	runner := NewRunner(Config{CalibrationIterations: 3}, &machinetest.Factory{})
	report, err := runner.RunBenchmark(context.Background(), &corpus.Corpus{Vectors: vectors})
	require.NoError(err)

	assert.Equal(5, report.Totals.Pass)
	for _, result := range report.Results {
		assert.True(result.Calibrated)
		assert.GreaterOrEqual(int64(result.ElapsedCalibrated), int64(0))
	}

	require.NotNil(report.Model)
	assert.Equal(5, report.Model.Samples)
}

// A corpus with a single distinct work-unit value yields no fit; the run
// still completes with the omission annotated.
func TestRunnerRunBenchmarkInsufficientData(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	vec, err := machinetest.NewVector("suite/only", nil, [][]byte{[]byte("payload")})
	require.NoError(err)

	runner := NewRunner(Config{CalibrationIterations: 3}, &machinetest.Factory{})
	report, err := runner.RunBenchmark(context.Background(), &corpus.Corpus{
		Vectors: []*corpus.TestVector{vec},
	})
	require.NoError(err)

	assert.Equal(1, report.Totals.Pass)
	assert.Nil(report.Model)
	assert.NotEmpty(report.ModelNote)
}
