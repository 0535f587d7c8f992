// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replay

import (
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/ids"

	"github.com/ava-labs/replayvm/corpus"
)

// Outcome classifies one vector's replay.
type Outcome uint8

const (
	// Pass: execution completed and postconditions matched.
	Pass Outcome = iota
	// Fail: execution completed but postconditions did not match. A
	// genuine conformance defect in the machine under test.
	Fail
	// Error: execution could not complete, so no verdict was obtained.
	Error
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("unknown outcome %d", uint8(o))
	}
}

// ErrorKind distinguishes why a replay ended in Error. It is reported
// alongside the outcome but does not split Error into finer outcome
// categories.
type ErrorKind uint8

const (
	ErrNone ErrorKind = iota
	// ErrInstantiation: the machine could not start.
	ErrInstantiation
	// ErrFault: a message application raised a non-recoverable fault.
	ErrFault
	// ErrTimeout: the vector exceeded its per-vector deadline.
	ErrTimeout
	// ErrPanic: the machine panicked; converted at the worker boundary.
	ErrPanic
	// ErrCancelled: the run was cancelled before the vector was replayed.
	ErrCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrInstantiation:
		return "instantiation"
	case ErrFault:
		return "fault"
	case ErrTimeout:
		return "timeout"
	case ErrPanic:
		return "panic"
	case ErrCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown error kind %d", uint8(k))
	}
}

// Result is the record of one vector's replay. Results are owned by the
// worker that produced them until they are moved into the aggregator.
type Result struct {
	VectorID string
	Outcome  Outcome

	// Reason is empty for Pass, a mismatch description for Fail, and the
	// recorded fault for Error.
	Reason string
	// Kind is ErrNone unless Outcome is Error.
	Kind ErrorKind

	// ActualStateRoot and ActualReceipts are only trusted for Pass and
	// Fail; a faulted replay records neither.
	ActualStateRoot ids.ID
	ActualReceipts  []corpus.Receipt

	ElapsedRaw time.Duration
	// ElapsedCalibrated is populated on the benchmarking path only, after
	// the overhead calibrator has subtracted the baseline offset.
	ElapsedCalibrated time.Duration
	Calibrated        bool
}
