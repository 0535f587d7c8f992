// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay/machinetest"
	"github.com/ava-labs/replayvm/replayvm"
)

func main() {
	v, err := getViper()
	if err != nil {
		fmt.Printf("couldn't get config: %s\n", err)
		os.Exit(1)
	}
	// Print version and exit
	if v.GetBool(versionKey) {
		fmt.Printf("%s-bench@%s\n", replayvm.Name, replayvm.Version)
		os.Exit(0)
	}

	if err := setLogLevel(v.GetString(logLevelKey)); err != nil {
		fmt.Printf("couldn't set log level: %s\n", err)
		os.Exit(1)
	}

	cfg, err := buildConfig(v)
	if err != nil {
		fmt.Printf("couldn't build config: %s\n", err)
		os.Exit(1)
	}

	vectors, err := corpus.LoadDir(cfg.CorpusDir)
	if err != nil {
		log.Error("couldn't load corpus", "err", err)
		os.Exit(1)
	}

	runner := replayvm.NewRunner(cfg, &machinetest.Factory{})
	report, err := runner.RunBenchmark(context.Background(), vectors)
	if err != nil {
		log.Error("benchmark run failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("pass=%d fail=%d error=%d skipped=%d\n",
		report.Totals.Pass,
		report.Totals.Fail,
		report.Totals.Error,
		report.Totals.Skipped,
	)
	for _, failure := range report.Failures() {
		fmt.Printf("%s %s: %s\n", failure.Outcome, failure.VectorID, failure.Reason)
	}

	switch {
	case report.Model != nil:
		fmt.Printf("cost model: %s\n", report.Model)
		fmt.Printf("residual variance: %.3e\n", report.Model.ResidualVariance)
	default:
		fmt.Printf("cost model omitted: %s\n", report.ModelNote)
	}

	if !report.Conformant() {
		os.Exit(1)
	}
}

func setLogLevel(level string) error {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return err
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))
	return nil
}
