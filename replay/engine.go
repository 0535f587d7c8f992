// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/replayvm/corpus"
)

// Replay applies [vec]'s messages, in order, against a fresh machine
// bound to a blockstore seeded at the vector's CAR root, then compares
// the resulting receipts and state root against the vector's
// postconditions.
//
// [tol] selects the comparison mode: nil means exact byte-for-byte
// matching; non-nil allows the bounded gas drift it describes while still
// matching exit codes and return data exactly.
//
// Replaying the same vector twice against independently constructed
// machines must yield identical receipts and state root; the engine
// itself carries no state between calls.
func Replay(ctx context.Context, vec *corpus.TestVector, factory MachineFactory, tol *corpus.GasTolerance) Result {
	result := Result{VectorID: vec.ID}
	start := time.Now()

	machine, err := factory.New(NewBlockstore(vec), vec.CARRoot)
	if err != nil {
		result.ElapsedRaw = time.Since(start)
		result.Outcome = Error
		result.Kind = ErrInstantiation
		result.Reason = fmt.Sprintf("couldn't instantiate machine: %s", err)
		return result
	}

	receipts := make([]corpus.Receipt, 0, len(vec.Messages))
	for i, msg := range vec.Messages {
		receipt, err := machine.Apply(ctx, msg)
		if err != nil {
			result.ElapsedRaw = time.Since(start)
			result.Outcome = Error
			// Partial receipts are not trusted once a fault occurs.
			if deadlined(ctx, err) {
				result.Kind = ErrTimeout
				result.Reason = fmt.Sprintf("timed out applying message %d", i)
			} else {
				result.Kind = ErrFault
				result.Reason = fmt.Sprintf("fault applying message %d: %s", i, err)
			}
			return result
		}
		receipts = append(receipts, receipt)

		if ctx.Err() != nil {
			result.ElapsedRaw = time.Since(start)
			result.Outcome = Error
			result.Kind = ErrTimeout
			result.Reason = fmt.Sprintf("timed out after message %d", i)
			return result
		}
	}

	root, err := machine.StateRoot()
	result.ElapsedRaw = time.Since(start)
	if err != nil {
		result.Outcome = Error
		result.Kind = ErrFault
		result.Reason = fmt.Sprintf("couldn't compute state root: %s", err)
		return result
	}

	result.ActualStateRoot = root
	result.ActualReceipts = receipts

	if reason := checkPostConditions(vec, root, receipts, tol); reason != "" {
		result.Outcome = Fail
		result.Reason = reason
		log.Debug("postcondition mismatch", "vector", vec.ID, "reason", reason)
		return result
	}

	result.Outcome = Pass
	return result
}

// deadlined reports whether [err] (or the context itself) stems from the
// per-vector deadline rather than a machine fault.
func deadlined(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}
