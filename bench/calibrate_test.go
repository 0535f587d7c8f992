// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bench

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/replayvm/replay"
	"github.com/ava-labs/replayvm/replay/machinetest"
)

func TestCalibrate(t *testing.T) {
	assert := assert.New(t)

	calibrator, err := Calibrate(context.Background(), &machinetest.Factory{}, 9)
	require.NoError(t, err)
	assert.GreaterOrEqual(int64(calibrator.Offset()), int64(0))
}

func TestCalibrateRequiresIterations(t *testing.T) {
	_, err := Calibrate(context.Background(), &machinetest.Factory{}, 0)
	assert.Error(t, err)
}

// A baseline that cannot replay cleanly invalidates the calibration.
func TestCalibrateBaselineFailure(t *testing.T) {
	factory := replay.FactoryFunc(func(replay.Blockstore, ids.ID) (replay.Machine, error) {
		return nil, assert.AnError
	})
	_, err := Calibrate(context.Background(), factory, 3)
	assert.Error(t, err)
}

// Calibrated cost is floored at zero: measurement noise below the
// baseline is not propagated as negative cost.
func TestCalibratorApplyFloor(t *testing.T) {
	assert := assert.New(t)

	c := &Calibrator{offset: 10 * time.Millisecond}
	assert.Equal(5*time.Millisecond, c.Apply(15*time.Millisecond))
	assert.Equal(time.Duration(0), c.Apply(10*time.Millisecond))
	assert.Equal(time.Duration(0), c.Apply(3*time.Millisecond))
}

func TestCalibratorAnnotate(t *testing.T) {
	assert := assert.New(t)

	c := &Calibrator{offset: time.Millisecond}
	result := replay.Result{ElapsedRaw: 3 * time.Millisecond}
	c.Annotate(&result)
	assert.True(result.Calibrated)
	assert.Equal(2*time.Millisecond, result.ElapsedCalibrated)
}

func TestMedian(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(time.Duration(3), median([]time.Duration{5, 1, 3}))
	assert.Equal(time.Duration(25), median([]time.Duration{10, 30, 20, 40}))
	// A single large outlier does not move the median.
	assert.Equal(time.Duration(3), median([]time.Duration{3, 3, 1000, 3, 2}))
}
