// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replayvm"
)

const (
	versionKey = "version"

	corpusDirKey       = "corpus-dir"
	workersKey         = "workers"
	vectorTimeoutKey   = "vector-timeout"
	retriesKey         = "retries"
	networkVersionKey  = "network-version"
	variantsKey        = "variants"
	includeKey         = "include"
	excludeKey         = "exclude"
	relaxedGasKey      = "relaxed-gas"
	gasToleranceAbsKey = "gas-tolerance-abs"
	gasToleranceRelKey = "gas-tolerance-rel"
	profileKey         = "profile"
	serveAddrKey       = "serve-addr"
	dbDirKey           = "db-dir"
	logLevelKey        = "log-level"
)

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(replayvm.Name, flag.ContinueOnError)

	fs.Bool(versionKey, false, "If true, prints version and quit")

	fs.String(corpusDirKey, "", "Directory tree of test-vector files")
	fs.Int(workersKey, 0, "Worker pool size (0 = available processor count)")
	fs.Duration(vectorTimeoutKey, replayvm.DefaultVectorTimeout, "Per-vector replay timeout")
	fs.Int(retriesKey, 0, "Retries for timed-out vectors")
	fs.Uint64(networkVersionKey, 0, "Network version of the machine under test")
	fs.String(variantsKey, "", "Comma-separated enabled variant classes")
	fs.String(includeKey, "", "Comma-separated vector ID include globs")
	fs.String(excludeKey, "", "Comma-separated vector ID exclude globs")
	fs.Bool(relaxedGasKey, false, "Allow vectors tagged relaxed-gas to run with gas tolerance")
	fs.Uint64(gasToleranceAbsKey, 0, "Absolute gas tolerance override for relaxed vectors")
	fs.Float64(gasToleranceRelKey, 0, "Relative gas tolerance override for relaxed vectors (0.02 = 2%)")
	fs.Bool(profileKey, false, "Log per-vector timings")
	fs.String(serveAddrKey, "", "If set, serve run results over JSON-RPC on this address after the run")
	fs.String(dbDirKey, "", "If set, persist run results in a leveldb database under this directory (in-memory otherwise)")
	fs.String(logLevelKey, "info", "Log level (debug|info|warn|error)")

	return fs
}

// getViper returns the viper environment for the binary
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

	cfg := replayvm.Config{
		CorpusDir:     v.GetString(corpusDirKey),
		Workers:       v.GetInt(workersKey),
		VectorTimeout: v.GetDuration(vectorTimeoutKey),
		Retries:       v.GetInt(retriesKey),
		Selection: corpus.RunConfig{
			NetworkVersion:  v.GetUint64(networkVersionKey),
			Variants:        splitList(v.GetString(variantsKey)),
			Include:         splitList(v.GetString(includeKey)),
			Exclude:         splitList(v.GetString(excludeKey)),
			AllowRelaxedGas: v.GetBool(relaxedGasKey),
		},
		ProfileVectors: v.GetBool(profileKey),
	}

	abs := v.GetUint64(gasToleranceAbsKey)
	rel := v.GetFloat64(gasToleranceRelKey)
	if abs > 0 || rel > 0 {
		cfg.ToleranceOverride = &corpus.GasTolerance{
			AbsoluteDelta: abs,
			RelativeDelta: rel,
		}
	}
	return cfg, nil
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
