// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replay

import (
	"context"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/replayvm/corpus"
)

// Machine is the virtual machine under test. A machine instance is bound
// to one blockstore and one initial state root for the duration of a
// single vector's replay, and is discarded afterwards. Implementations do
// not need to be safe for concurrent use: each worker owns its machine
// exclusively.
type Machine interface {
	// Apply executes one message and returns its receipt. An error
	// indicates a fault: the machine could not apply the message per its
	// own semantics (as opposed to applying it with a non-zero exit
	// code, which is an ordinary receipt).
	Apply(ctx context.Context, msg []byte) (corpus.Receipt, error)

	// StateRoot flushes any pending state and returns the content
	// identifier summarizing the machine's current state.
	StateRoot() (ids.ID, error)
}

// MachineFactory instantiates a fresh machine per replay. Factories are
// passed explicitly into the engine, never looked up from process-wide
// state, so that independently constructed machines stay isolated.
type MachineFactory interface {
	// New binds a machine to [bs] seeded at [initialRoot]. An error
	// indicates the machine could not start (for example, the block for
	// the initial root is missing).
	New(bs Blockstore, initialRoot ids.ID) (Machine, error)
}

// FactoryFunc adapts a function to the MachineFactory interface.
type FactoryFunc func(bs Blockstore, initialRoot ids.ID) (Machine, error)

func (f FactoryFunc) New(bs Blockstore, initialRoot ids.ID) (Machine, error) {
	return f(bs, initialRoot)
}
