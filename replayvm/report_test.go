// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ava-labs/replayvm/bench"
	"github.com/ava-labs/replayvm/replay"
)

func TestBuildReport(t *testing.T) {
	assert := assert.New(t)

	results := []replay.Result{
		{VectorID: "a", Outcome: replay.Pass},
		{VectorID: "b", Outcome: replay.Fail, Reason: "state root mismatch"},
		{VectorID: "c", Outcome: replay.Error, Kind: replay.ErrTimeout},
		{VectorID: "d", Outcome: replay.Pass},
	}
	skipped := []SkippedVector{{ID: "z", Reason: "variant not enabled"}}
	categories := map[string]string{
		"a": "messages",
		"b": "messages",
		"c": "tipsets",
		// d has no variant tag
	}

	report := BuildReport(results, skipped, categories)

	assert.Equal(Counts{Pass: 2, Fail: 1, Error: 1, Skipped: 1}, report.Totals)
	assert.Equal(Counts{Pass: 1, Fail: 1}, report.ByCategory["messages"])
	assert.Equal(Counts{Error: 1}, report.ByCategory["tipsets"])
	assert.Equal(Counts{Pass: 1}, report.ByCategory[defaultCategory])

	failures := report.Failures()
	assert.Len(failures, 2)
	assert.Equal("b", failures[0].VectorID)
	assert.Equal("c", failures[1].VectorID)
}

func TestReportCompare(t *testing.T) {
	assert := assert.New(t)

	previous := BuildReport([]replay.Result{
		{VectorID: "a", Outcome: replay.Pass},
		{VectorID: "b", Outcome: replay.Pass},
		{VectorID: "gone", Outcome: replay.Fail},
	}, nil, nil)

	current := BuildReport([]replay.Result{
		{VectorID: "a", Outcome: replay.Pass},
		{VectorID: "b", Outcome: replay.Fail},
		{VectorID: "new", Outcome: replay.Pass},
	}, nil, nil)

	regressions := current.Compare(previous)
	assert.Len(regressions, 1)
	assert.Equal("b", regressions[0].VectorID)
	assert.Equal(replay.Pass, regressions[0].Previous)
	assert.Equal(replay.Fail, regressions[0].Current)

	assert.Empty(current.Compare(nil))
}

// Only passing, calibrated results feed the fitter: a failed replay's
// timing does not reflect its declared work.
func TestSamples(t *testing.T) {
	assert := assert.New(t)

	results := []replay.Result{
		{VectorID: "a", Outcome: replay.Pass, Calibrated: true, ElapsedCalibrated: 10 * time.Millisecond},
		{VectorID: "b", Outcome: replay.Fail, Calibrated: true, ElapsedCalibrated: 20 * time.Millisecond},
		{VectorID: "c", Outcome: replay.Pass, Calibrated: false},
		{VectorID: "d", Outcome: replay.Pass, Calibrated: true, ElapsedCalibrated: 40 * time.Millisecond},
	}
	workUnits := map[string]uint64{"a": 100, "b": 200, "c": 300, "d": 400}

	samples := Samples(results, workUnits)
	assert.Equal([]bench.CalibrationSample{
		{WorkUnits: 100, Elapsed: 10 * time.Millisecond},
		{WorkUnits: 400, Elapsed: 40 * time.Millisecond},
	}, samples)
}
