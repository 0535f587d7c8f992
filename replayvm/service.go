// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2"

	"github.com/ava-labs/avalanchego/utils/formatting"

	cjson "github.com/ava-labs/avalanchego/utils/json"

	"github.com/ava-labs/replayvm/replay"
)

func outcomeString(o uint8) string { return replay.Outcome(o).String() }
func kindString(k uint8) string    { return replay.ErrorKind(k).String() }

// Service exposes the persisted run results over JSON-RPC.
type Service struct {
	state State
}

// NewHandler returns an HTTP handler serving [state] under the service
// name "replayvm".
func NewHandler(state State) (http.Handler, error) {
	newServer := rpc.NewServer()
	codec := cjson.NewCodec()
	newServer.RegisterCodec(codec, "application/json")
	newServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	return newServer, newServer.RegisterService(&Service{state: state}, Name)
}

// ModelReply describes the fitted cost model of the last run.
type ModelReply struct {
	Fitted           bool    `json:"fitted"`
	Slope            float64 `json:"slope"`
	Intercept        float64 `json:"intercept"`
	ResidualVariance float64 `json:"residualVariance"`
	R2               float64 `json:"r2"`
	Samples          uint64  `json:"samples"`
	Note             string  `json:"note,omitempty"`
}

func modelReply(run *StoredRun) ModelReply {
	reply := ModelReply{Note: run.ModelNote}
	if model := run.Model(); model != nil {
		reply.Fitted = true
		reply.Slope = model.Slope
		reply.Intercept = model.Intercept
		reply.ResidualVariance = model.ResidualVariance
		reply.R2 = model.R2
		reply.Samples = uint64(model.Samples)
	}
	return reply
}

// LastRunReply summarizes the most recent persisted run.
type LastRunReply struct {
	UnixTimestamp uint64     `json:"unixTimestamp"`
	Pass          uint64     `json:"pass"`
	Fail          uint64     `json:"fail"`
	Error         uint64     `json:"error"`
	Skipped       uint64     `json:"skipped"`
	VectorIDs     []string   `json:"vectorIDs"`
	Model         ModelReply `json:"model"`
}

// LastRun returns the summary of the most recent run.
func (s *Service) LastRun(_ *http.Request, _ *struct{}, reply *LastRunReply) error {
	run, err := s.state.GetLastRun()
	if err != nil {
		return fmt.Errorf("couldn't get last run: %w", err)
	}

	reply.UnixTimestamp = run.UnixTimestamp
	reply.Pass = run.Pass
	reply.Fail = run.Fail
	reply.Error = run.Error
	reply.Skipped = run.Skipped
	reply.VectorIDs = run.VectorIDs
	reply.Model = modelReply(run)
	return nil
}

// CostModel returns the cost model fitted by the most recent run.
func (s *Service) CostModel(_ *http.Request, _ *struct{}, reply *ModelReply) error {
	run, err := s.state.GetLastRun()
	if err != nil {
		return fmt.Errorf("couldn't get last run: %w", err)
	}

	*reply = modelReply(run)
	return nil
}

// GetResultArgs are arguments for GetResult
type GetResultArgs struct {
	VectorID string `json:"vectorID"`
}

// GetResultReply is the reply from GetResult
type GetResultReply struct {
	VectorID            string `json:"vectorID"`
	Outcome             string `json:"outcome"`
	Kind                string `json:"kind"`
	Reason              string `json:"reason,omitempty"`
	StateRoot           string `json:"stateRoot"`
	ElapsedRawNS        uint64 `json:"elapsedRawNS"`
	ElapsedCalibratedNS uint64 `json:"elapsedCalibratedNS"`
	Calibrated          bool   `json:"calibrated"`
}

// GetResult returns the persisted outcome of one vector.
func (s *Service) GetResult(_ *http.Request, args *GetResultArgs, reply *GetResultReply) error {
	result, err := s.state.GetResult(args.VectorID)
	if err != nil {
		return fmt.Errorf("couldn't get result for %q: %w", args.VectorID, err)
	}

	root, err := formatting.EncodeWithChecksum(formatting.Hex, result.StateRoot[:])
	if err != nil {
		return fmt.Errorf("couldn't encode state root: %w", err)
	}

	reply.VectorID = result.VectorID
	reply.Outcome = outcomeString(result.Outcome)
	reply.Kind = kindString(result.Kind)
	reply.Reason = result.Reason
	reply.StateRoot = root
	reply.ElapsedRawNS = result.ElapsedRawNS
	reply.ElapsedCalibratedNS = result.ElapsedCalibratedNS
	reply.Calibrated = result.Calibrated
	return nil
}
