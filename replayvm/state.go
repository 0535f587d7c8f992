// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"errors"
	"math"

	"github.com/ava-labs/avalanchego/cache"
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/hashing"

	"github.com/ava-labs/replayvm/bench"
	"github.com/ava-labs/replayvm/replay"
)

const resultCacheSize = 8192

var (
	// These are prefixes for db keys.
	// It's important to set different prefixes for each separate database objects.
	resultStatePrefix = []byte("result")
	runStatePrefix    = []byte("run")

	lastRunKey = []byte{0}

	errResultWrongVersion = errors.New("wrong version")

	_ State = &state{}
)

// StoredReceipt mirrors corpus.Receipt for codec storage.
type StoredReceipt struct {
	ExitCode   int64  `serialize:"true"`
	ReturnData []byte `serialize:"true"`
	GasUsed    uint64 `serialize:"true"`
}

// StoredResult is the persisted record of one vector's latest outcome.
type StoredResult struct {
	VectorID            string          `serialize:"true"`
	Outcome             uint8           `serialize:"true"`
	Kind                uint8           `serialize:"true"`
	Reason              string          `serialize:"true"`
	StateRoot           ids.ID          `serialize:"true"`
	Receipts            []StoredReceipt `serialize:"true"`
	ElapsedRawNS        uint64          `serialize:"true"`
	ElapsedCalibratedNS uint64          `serialize:"true"`
	Calibrated          bool            `serialize:"true"`
}

// StoredRun is the persisted summary of the most recent run. The model
// coefficients are stored as IEEE 754 bits: the linear codec has no
// float support.
type StoredRun struct {
	UnixTimestamp uint64   `serialize:"true"`
	Pass          uint64   `serialize:"true"`
	Fail          uint64   `serialize:"true"`
	Error         uint64   `serialize:"true"`
	Skipped       uint64   `serialize:"true"`
	VectorIDs     []string `serialize:"true"`

	HasModel             bool   `serialize:"true"`
	SlopeBits            uint64 `serialize:"true"`
	InterceptBits        uint64 `serialize:"true"`
	ResidualVarianceBits uint64 `serialize:"true"`
	R2Bits               uint64 `serialize:"true"`
	ModelSamples         uint64 `serialize:"true"`
	ModelNote            string `serialize:"true"`
}

// Model reconstructs the stored cost model, or nil.
func (r *StoredRun) Model() *bench.CostModel {
	if !r.HasModel {
		return nil
	}
	return &bench.CostModel{
		Slope:            math.Float64frombits(r.SlopeBits),
		Intercept:        math.Float64frombits(r.InterceptBits),
		ResidualVariance: math.Float64frombits(r.ResidualVarianceBits),
		R2:               math.Float64frombits(r.R2Bits),
		Samples:          int(r.ModelSamples),
	}
}

// ResultState stores the latest outcome per vector, keyed by the hash of
// the vector ID, with an LRU cache in front of the database.
type ResultState interface {
	GetResult(vectorID string) (*StoredResult, error)
	PutResult(result *StoredResult) error
}

// RunState stores the singleton last-run summary.
type RunState interface {
	GetLastRun() (*StoredRun, error)
	SetLastRun(run *StoredRun) error
}

// State is a wrapper around ResultState and RunState.
// State also exposes a few methods needed for managing database commits and close.
type State interface {
	ResultState
	RunState

	Commit() error
	Close() error
}

type state struct {
	resultCache cache.Cacher
	resultDB    database.Database
	runDB       database.Database

	baseDB *versiondb.Database
}

func NewState(db database.Database) State {
	// create a new baseDB
	baseDB := versiondb.New(db)

	return &state{
		resultCache: &cache.LRU{Size: resultCacheSize},
		resultDB:    prefixdb.New(resultStatePrefix, baseDB),
		runDB:       prefixdb.New(runStatePrefix, baseDB),
		baseDB:      baseDB,
	}
}

func resultKey(vectorID string) ids.ID {
	return ids.ID(hashing.ComputeHash256Array([]byte(vectorID)))
}

func (s *state) GetResult(vectorID string) (*StoredResult, error) {
	key := resultKey(vectorID)
	if resultIntf, ok := s.resultCache.Get(key); ok {
		return resultIntf.(*StoredResult), nil
	}

	bytes, err := s.resultDB.Get(key[:])
	if err != nil {
		return nil, err
	}

	result := &StoredResult{}
	parsedVersion, err := Codec.Unmarshal(bytes, result)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errResultWrongVersion
	}

	s.resultCache.Put(key, result)
	return result, nil
}

func (s *state) PutResult(result *StoredResult) error {
	bytes, err := Codec.Marshal(CodecVersion, result)
	if err != nil {
		return err
	}

	key := resultKey(result.VectorID)
	s.resultCache.Put(key, result)
	return s.resultDB.Put(key[:], bytes)
}

func (s *state) GetLastRun() (*StoredRun, error) {
	bytes, err := s.runDB.Get(lastRunKey)
	if err != nil {
		return nil, err
	}

	run := &StoredRun{}
	parsedVersion, err := Codec.Unmarshal(bytes, run)
	if err != nil {
		return nil, err
	}
	if parsedVersion != CodecVersion {
		return nil, errResultWrongVersion
	}
	return run, nil
}

func (s *state) SetLastRun(run *StoredRun) error {
	bytes, err := Codec.Marshal(CodecVersion, run)
	if err != nil {
		return err
	}
	return s.runDB.Put(lastRunKey, bytes)
}

// Commit commits pending operations to baseDB
func (s *state) Commit() error {
	return s.baseDB.Commit()
}

// Close closes the underlying base database
func (s *state) Close() error {
	return s.baseDB.Close()
}

// SaveReport persists [report] into [s]: one StoredResult per vector and
// the singleton run summary.
func SaveReport(s State, report *Report) error {
	vectorIDs := make([]string, 0, len(report.Results))
	for i := range report.Results {
		result := &report.Results[i]
		vectorIDs = append(vectorIDs, result.VectorID)
		if err := s.PutResult(storedFromResult(result)); err != nil {
			return err
		}
	}

	run := &StoredRun{
		UnixTimestamp: uint64(report.Timestamp.Unix()),
		Pass:          uint64(report.Totals.Pass),
		Fail:          uint64(report.Totals.Fail),
		Error:         uint64(report.Totals.Error),
		Skipped:       uint64(report.Totals.Skipped),
		VectorIDs:     vectorIDs,
		ModelNote:     report.ModelNote,
	}
	if report.Model != nil {
		run.HasModel = true
		run.SlopeBits = math.Float64bits(report.Model.Slope)
		run.InterceptBits = math.Float64bits(report.Model.Intercept)
		run.ResidualVarianceBits = math.Float64bits(report.Model.ResidualVariance)
		run.R2Bits = math.Float64bits(report.Model.R2)
		run.ModelSamples = uint64(report.Model.Samples)
	}
	if err := s.SetLastRun(run); err != nil {
		return err
	}
	return s.Commit()
}

func storedFromResult(result *replay.Result) *StoredResult {
	receipts := make([]StoredReceipt, len(result.ActualReceipts))
	for i, r := range result.ActualReceipts {
		receipts[i] = StoredReceipt{
			ExitCode:   r.ExitCode,
			ReturnData: r.ReturnData,
			GasUsed:    r.GasUsed,
		}
	}
	return &StoredResult{
		VectorID:            result.VectorID,
		Outcome:             uint8(result.Outcome),
		Kind:                uint8(result.Kind),
		Reason:              result.Reason,
		StateRoot:           result.ActualStateRoot,
		Receipts:            receipts,
		ElapsedRawNS:        uint64(result.ElapsedRaw),
		ElapsedCalibratedNS: uint64(result.ElapsedCalibrated),
		Calibrated:          result.Calibrated,
	}
}
