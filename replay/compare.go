// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replay

import (
	"bytes"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/replayvm/corpus"
)

// checkPostConditions compares the actual outcome against the vector's
// postconditions and returns a mismatch description, or "" on a match.
//
// Exact mode ([tol] == nil) compares state root and every receipt field
// byte-for-byte. Relaxed mode still requires exact exit codes, return
// data, and state root, but allows the gas drift [tol] describes.
func checkPostConditions(vec *corpus.TestVector, root ids.ID, receipts []corpus.Receipt, tol *corpus.GasTolerance) string {
	if root != vec.Post.StateRoot {
		return fmt.Sprintf("state root mismatch: expected %s, got %s", vec.Post.StateRoot, root)
	}

	if len(receipts) != len(vec.Post.Receipts) {
		return fmt.Sprintf("receipt count mismatch: expected %d, got %d", len(vec.Post.Receipts), len(receipts))
	}

	for i, expected := range vec.Post.Receipts {
		actual := receipts[i]
		if actual.ExitCode != expected.ExitCode {
			return fmt.Sprintf("receipt %d: exit code mismatch: expected %d, got %d", i, expected.ExitCode, actual.ExitCode)
		}
		if !bytes.Equal(actual.ReturnData, expected.ReturnData) {
			return fmt.Sprintf("receipt %d: return data mismatch", i)
		}
		if !tol.Allows(expected.GasUsed, actual.GasUsed) {
			return fmt.Sprintf("receipt %d: gas mismatch: expected %d, got %d", i, expected.GasUsed, actual.GasUsed)
		}
	}
	return ""
}
