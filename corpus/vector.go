// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package corpus

import (
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"
)

// Receipt is the recorded result of applying one message: the machine's
// exit status, its return data, and the gas the application consumed.
type Receipt struct {
	ExitCode   int64  `json:"exitCode"`
	ReturnData []byte `json:"returnData"`
	GasUsed    uint64 `json:"gasUsed"`
}

// GasTolerance bounds the acceptable drift between expected and actual gas
// when a vector runs with relaxed tolerance. The zero value means exact
// match. When both bounds are set, the larger of the two applies.
type GasTolerance struct {
	// AbsoluteDelta is the maximum absolute difference in gas units.
	AbsoluteDelta uint64 `json:"absoluteDelta"`
	// RelativeDelta is the maximum difference as a fraction of the
	// expected gas (0.02 allows a 2% drift).
	RelativeDelta float64 `json:"relativeDelta"`
}

// Allows reports whether [actual] gas is within tolerance of [expected].
func (t *GasTolerance) Allows(expected, actual uint64) bool {
	var delta uint64
	if actual > expected {
		delta = actual - expected
	} else {
		delta = expected - actual
	}
	if t == nil {
		return delta == 0
	}
	bound := t.AbsoluteDelta
	if rel := uint64(t.RelativeDelta * float64(expected)); rel > bound {
		bound = rel
	}
	return delta <= bound
}

// PostConditions describes the outcome a conforming machine must produce
// for a vector: the final state root and one receipt per applied message.
type PostConditions struct {
	StateRoot ids.ID        `json:"stateRoot"`
	Receipts  []Receipt     `json:"receipts"`
	Tolerance *GasTolerance `json:"tolerance,omitempty"`
}

// TestVector is a self-contained conformance fixture: an initial state
// snapshot, an ordered list of messages, and the expected post-execution
// outcome. Vectors are immutable once loaded and are shared read-only
// across all workers.
type TestVector struct {
	// ID is the stable identifier of this vector, unique within a corpus.
	ID string

	// Selectors declare the conditions under which this vector applies
	// (network version, variant class). Used only for filtering.
	Selectors map[string]string

	// CARRoot is the content identifier of the initial state root inside
	// [Snapshot].
	CARRoot ids.ID

	// Messages are the opaque payloads to apply, in declared order. The
	// order is semantically significant.
	Messages [][]byte

	// Post holds the expected outcome. A vector with zero messages still
	// has a postcondition (identity transform over CARRoot).
	Post PostConditions

	// Snapshot is the decoded, content-addressed block data embedded in
	// the vector. It is never written to; workers layer their own
	// copy-on-write view on top of it.
	Snapshot database.Database
}

// WorkUnits returns the vector's declared work size: the sum of expected
// gas across all receipts. This is the x-axis of the fitted cost model.
func (v *TestVector) WorkUnits() uint64 {
	var total uint64
	for _, r := range v.Post.Receipts {
		total += r.GasUsed
	}
	return total
}

// BlockID derives the content identifier of a raw block.
func BlockID(data []byte) ids.ID {
	return ids.ID(hashing.ComputeHash256Array(data))
}

// BaselineVector returns the degenerate zero-message vector used by the
// overhead calibrator: a single-block snapshot whose postcondition is the
// identity transform over its own root.
func BaselineVector() (*TestVector, error) {
	data := []byte("calibration baseline")
	root := BlockID(data)

	db := memdb.New()
	if err := db.Put(root[:], data); err != nil {
		return nil, err
	}

	return &TestVector{
		ID:       "baseline/noop",
		CARRoot:  root,
		Post:     PostConditions{StateRoot: root},
		Snapshot: db,
	}, nil
}
