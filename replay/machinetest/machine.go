// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package machinetest provides a deterministic reference machine used by
// the harness's own tests and by the default binary wiring. It is not a
// real virtual machine: each message is appended to the state as a fresh
// block, the state root is chained over message content, and gas is
// charged per byte.
package machinetest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"

	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay"
)

const (
	// GasFlat and GasPerByte define the reference machine's cost
	// schedule. Declared work for a message of n bytes is
	// GasFlat + n*GasPerByte.
	GasFlat    uint64 = 100
	GasPerByte uint64 = 10

	// FaultOpcode at the head of a message makes Apply return a fault.
	FaultOpcode byte = 0xff
)

var (
	errFaultOpcode = errors.New("machine fault requested by message")

	_ replay.Machine        = &Machine{}
	_ replay.MachineFactory = &Factory{}
)

// Factory builds reference machines. The zero value is ready to use.
type Factory struct {
	// ApplyHook, when set, runs at the start of every Apply. Tests use it
	// to inject latency or block on a context.
	ApplyHook func(ctx context.Context, msg []byte) error
}

func (f *Factory) New(bs replay.Blockstore, initialRoot ids.ID) (replay.Machine, error) {
	// The initial root must be materialized in the snapshot, otherwise
	// the machine has no state to start from.
	if _, err := bs.Get(initialRoot); err != nil {
		return nil, fmt.Errorf("initial state root %s unavailable: %w", initialRoot, err)
	}
	return &Machine{
		bs:   bs,
		root: initialRoot,
		hook: f.ApplyHook,
	}, nil
}

// Machine is one reference machine instance. It is exclusively owned by
// one replay and carries no state beyond it.
type Machine struct {
	bs   replay.Blockstore
	root ids.ID
	hook func(ctx context.Context, msg []byte) error
}

// Apply stores [msg] as a block and advances the state root to
// hash(prevRoot || msg). The receipt returns the new block's content
// identifier and charges the flat plus per-byte gas.
func (m *Machine) Apply(ctx context.Context, msg []byte) (corpus.Receipt, error) {
	if m.hook != nil {
		if err := m.hook(ctx, msg); err != nil {
			return corpus.Receipt{}, err
		}
	}
	if len(msg) > 0 && msg[0] == FaultOpcode {
		return corpus.Receipt{}, errFaultOpcode
	}

	blockID := corpus.BlockID(msg)
	if err := m.bs.Put(blockID, msg); err != nil {
		return corpus.Receipt{}, err
	}

	preimage := make([]byte, 0, len(m.root)+len(msg))
	preimage = append(preimage, m.root[:]...)
	preimage = append(preimage, msg...)
	m.root = ids.ID(hashing.ComputeHash256Array(preimage))

	return corpus.Receipt{
		ExitCode:   0,
		ReturnData: blockID[:],
		GasUsed:    GasFlat + uint64(len(msg))*GasPerByte,
	}, nil
}

func (m *Machine) StateRoot() (ids.ID, error) {
	return m.root, nil
}

// ExpectedReceipt returns the receipt the reference machine produces for
// [msg]; tests use it to author vector postconditions.
func ExpectedReceipt(msg []byte) corpus.Receipt {
	blockID := corpus.BlockID(msg)
	return corpus.Receipt{
		ExitCode:   0,
		ReturnData: blockID[:],
		GasUsed:    GasFlat + uint64(len(msg))*GasPerByte,
	}
}

// ExpectedRoot returns the state root the reference machine reaches after
// applying [msgs] in order from [initialRoot].
func ExpectedRoot(initialRoot ids.ID, msgs [][]byte) ids.ID {
	root := initialRoot
	for _, msg := range msgs {
		preimage := make([]byte, 0, len(root)+len(msg))
		preimage = append(preimage, root[:]...)
		preimage = append(preimage, msg...)
		root = ids.ID(hashing.ComputeHash256Array(preimage))
	}
	return root
}
