// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/replayvm/bench"
	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replayvm"
)

const (
	versionKey = "version"

	corpusDirKey        = "corpus-dir"
	workersKey          = "workers"
	vectorTimeoutKey    = "vector-timeout"
	networkVersionKey   = "network-version"
	variantsKey         = "variants"
	includeKey          = "include"
	excludeKey          = "exclude"
	relaxedGasKey       = "relaxed-gas"
	calibrationItersKey = "calibration-iterations"
	profileKey          = "profile"
	logLevelKey         = "log-level"
)

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(replayvm.Name+"-bench", flag.ContinueOnError)

	fs.Bool(versionKey, false, "If true, prints version and quit")

	fs.String(corpusDirKey, "", "Directory tree of test-vector files")
	fs.Int(workersKey, 0, "Worker pool size (0 = available processor count)")
	fs.Duration(vectorTimeoutKey, replayvm.DefaultVectorTimeout, "Per-vector replay timeout")
	fs.Uint64(networkVersionKey, 0, "Network version of the machine under test")
	fs.String(variantsKey, "", "Comma-separated enabled variant classes")
	fs.String(includeKey, "", "Comma-separated vector ID include globs")
	fs.String(excludeKey, "", "Comma-separated vector ID exclude globs")
	fs.Bool(relaxedGasKey, false, "Allow vectors tagged relaxed-gas to run with gas tolerance")
	fs.Int(calibrationItersKey, bench.DefaultCalibrationIterations, "No-op baseline iterations for overhead calibration")
	fs.Bool(profileKey, false, "Log per-vector timings")
	fs.String(logLevelKey, "info", "Log level (debug|info|warn|error)")

	return fs
}

// getViper returns the viper environment for the benchmark binary
func getViper() (*viper.Viper, error) {
	v := viper.New()

	fs := buildFlagSet()
	pflag.CommandLine.AddGoFlagSet(fs)
	pflag.Parse()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	return v, nil
}

func buildConfig(v *viper.Viper) (replayvm.Config, error) {
	if v.GetString(corpusDirKey) == "" {
		return replayvm.Config{}, fmt.Errorf("--%s is required", corpusDirKey)
	}

	return replayvm.Config{
		CorpusDir:     v.GetString(corpusDirKey),
		Workers:       v.GetInt(workersKey),
		VectorTimeout: v.GetDuration(vectorTimeoutKey),
		Selection: corpus.RunConfig{
			NetworkVersion:  v.GetUint64(networkVersionKey),
			Variants:        splitList(v.GetString(variantsKey)),
			Include:         splitList(v.GetString(includeKey)),
			Exclude:         splitList(v.GetString(excludeKey)),
			AllowRelaxedGas: v.GetBool(relaxedGasKey),
		},
		CalibrationIterations: v.GetInt(calibrationItersKey),
		ProfileVectors:        v.GetBool(profileKey),
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
