// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package machinetest

import (
	"github.com/ava-labs/avalanchego/database/memdb"

	"github.com/ava-labs/replayvm/corpus"
)

// NewVector authors a vector the reference machine replays to PASS: a
// one-block snapshot derived from [id], the given messages, and
// postconditions computed from the machine's own cost schedule.
func NewVector(id string, selectors map[string]string, msgs [][]byte) (*corpus.TestVector, error) {
	genesis := []byte("genesis-" + id)
	root := corpus.BlockID(genesis)

	db := memdb.New()
	if err := db.Put(root[:], genesis); err != nil {
		return nil, err
	}

	receipts := make([]corpus.Receipt, len(msgs))
	for i, msg := range msgs {
		receipts[i] = ExpectedReceipt(msg)
	}

	return &corpus.TestVector{
		ID:        id,
		Selectors: selectors,
		CARRoot:   root,
		Messages:  msgs,
		Post: corpus.PostConditions{
			StateRoot: ExpectedRoot(root, msgs),
			Receipts:  receipts,
		},
		Snapshot: db,
	}, nil
}
