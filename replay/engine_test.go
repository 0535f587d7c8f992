// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay"
	"github.com/ava-labs/replayvm/replay/machinetest"
)

func TestReplayPass(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/basic", nil, [][]byte{
		[]byte("msg-0"),
		[]byte("a longer second message"),
	})
	require.NoError(t, err)

	result := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)
	assert.Equal(replay.Pass, result.Outcome)
	assert.Empty(result.Reason)
	assert.Equal(vec.Post.StateRoot, result.ActualStateRoot)
	assert.Len(result.ActualReceipts, 2)
	assert.Greater(int64(result.ElapsedRaw), int64(0))
}

// A vector with zero messages is the identity transform over its CAR
// root and must still produce a PASS.
func TestReplayZeroMessages(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/empty", nil, nil)
	require.NoError(t, err)
	assert.Equal(vec.CARRoot, vec.Post.StateRoot)

	result := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)
	assert.Equal(replay.Pass, result.Outcome)
	assert.Equal(vec.CARRoot, result.ActualStateRoot)
	assert.Empty(result.ActualReceipts)
}

// Replaying the same vector twice against independently constructed
// machines must yield bit-identical state roots and receipts.
func TestReplayDeterminism(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/determinism", nil, [][]byte{
		[]byte("alpha"), []byte("beta"), []byte("gamma"),
	})
	require.NoError(t, err)

	first := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)
	second := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)

	assert.Equal(replay.Pass, first.Outcome)
	assert.Equal(replay.Pass, second.Outcome)
	assert.Equal(first.ActualStateRoot, second.ActualStateRoot)
	assert.Equal(first.ActualReceipts, second.ActualReceipts)
}

// A snapshot missing the block for the CAR root cannot instantiate the
// machine: the verdict is ERROR, not FAIL.
func TestReplayMissingRootBlock(t *testing.T) {
	assert := assert.New(t)

	root := corpus.BlockID([]byte("never materialized"))
	vec := &corpus.TestVector{
		ID:       "suite/missing-root",
		CARRoot:  root,
		Post:     corpus.PostConditions{StateRoot: root},
		Snapshot: memdb.New(),
	}

	result := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)
	assert.Equal(replay.Error, result.Outcome)
	assert.Equal(replay.ErrInstantiation, result.Kind)
	assert.Equal(ids.Empty, result.ActualStateRoot)
}

func TestReplayFault(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/fault", nil, [][]byte{
		[]byte("fine"),
		{machinetest.FaultOpcode, 1, 2, 3},
	})
	require.NoError(t, err)

	result := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)
	assert.Equal(replay.Error, result.Outcome)
	assert.Equal(replay.ErrFault, result.Kind)
	assert.Contains(result.Reason, "message 1")
	// Partial receipts are not trusted after a fault.
	assert.Empty(result.ActualReceipts)
}

func TestReplayStateRootMismatch(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/mismatch", nil, [][]byte{[]byte("msg")})
	require.NoError(t, err)
	vec.Post.StateRoot = corpus.BlockID([]byte("some other root"))

	result := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)
	assert.Equal(replay.Fail, result.Outcome)
	assert.Contains(result.Reason, "state root mismatch")
}

func TestReplayReceiptMismatch(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/receipts", nil, [][]byte{[]byte("msg")})
	require.NoError(t, err)
	vec.Post.Receipts[0].ExitCode = 42

	result := replay.Replay(context.Background(), vec, &machinetest.Factory{}, nil)
	assert.Equal(replay.Fail, result.Outcome)
	assert.Contains(result.Reason, "exit code mismatch")
}

func TestReplayRelaxedGasTolerance(t *testing.T) {
	assert := assert.New(t)

	msg := []byte("msg")
	newVector := func(expectedGas uint64) *corpus.TestVector {
		vec, err := machinetest.NewVector("suite/gas", nil, [][]byte{msg})
		require.NoError(t, err)
		vec.Post.Receipts[0].GasUsed = expectedGas
		return vec
	}
	actualGas := machinetest.ExpectedReceipt(msg).GasUsed
	tolerance := &corpus.GasTolerance{RelativeDelta: 0.02}

	// Actual gas within 2% of expected passes under relaxed matching...
	withinVec := newVector(actualGas + actualGas/100)
	result := replay.Replay(context.Background(), withinVec, &machinetest.Factory{}, tolerance)
	assert.Equal(replay.Pass, result.Outcome)

	// ...but the same vector fails exact matching...
	result = replay.Replay(context.Background(), withinVec, &machinetest.Factory{}, nil)
	assert.Equal(replay.Fail, result.Outcome)
	assert.Contains(result.Reason, "gas mismatch")

	// ...and a 30% drift fails even relaxed matching.
	farVec := newVector(actualGas + actualGas*30/100)
	result = replay.Replay(context.Background(), farVec, &machinetest.Factory{}, tolerance)
	assert.Equal(replay.Fail, result.Outcome)
	assert.Contains(result.Reason, "gas mismatch")
}

func TestReplayTimeout(t *testing.T) {
	assert := assert.New(t)

	vec, err := machinetest.NewVector("suite/slow", nil, [][]byte{[]byte("msg")})
	require.NoError(t, err)

	factory := &machinetest.Factory{
		ApplyHook: func(ctx context.Context, _ []byte) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result := replay.Replay(ctx, vec, factory, nil)
	assert.Equal(replay.Error, result.Outcome)
	assert.Equal(replay.ErrTimeout, result.Kind)
}
