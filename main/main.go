// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/leveldb"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/utils/logging"

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
		fmt.Printf("%s@%s\n", replayvm.Name, replayvm.Version)
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
	report := runner.Run(context.Background(), vectors)
	printReport(report)

	db, err := openDatabase(v.GetString(dbDirKey))
	if err != nil {
		log.Error("couldn't open results database", "err", err)
		os.Exit(1)
	}
	state := replayvm.NewState(db)
	if err := replayvm.SaveReport(state, report); err != nil {
		log.Error("couldn't persist report", "err", err)
		os.Exit(1)
	}

	if addr := v.GetString(serveAddrKey); addr != "" {
		handler, err := replayvm.NewHandler(state)
		if err != nil {
			log.Error("couldn't create results service", "err", err)
			os.Exit(1)
		}
		log.Info("serving run results", "addr", addr)
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Error("results service stopped", "err", err)
			os.Exit(1)
		}
	}

	if !report.Conformant() {
		os.Exit(1)
	}
}

// openDatabase returns the results database: leveldb under [dir] when
// set, in-memory otherwise.
func openDatabase(dir string) (database.Database, error) {
	if dir == "" {
		return memdb.New(), nil
	}
	return leveldb.New(dir, nil, logging.NoLog{})
}

func setLogLevel(level string) error {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return err
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))
	return nil
}

func printReport(report *replayvm.Report) {
	fmt.Printf("pass=%d fail=%d error=%d skipped=%d\n",
		report.Totals.Pass,
		report.Totals.Fail,
		report.Totals.Error,
		report.Totals.Skipped,
	)

	categories := make([]string, 0, len(report.ByCategory))
	for category := range report.ByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		counts := report.ByCategory[category]
		fmt.Printf("  [%s] pass=%d fail=%d error=%d\n", category, counts.Pass, counts.Fail, counts.Error)
	}

	for _, failure := range report.Failures() {
		fmt.Printf("%s %s: %s\n", failure.Outcome, failure.VectorID, failure.Reason)
	}
	for _, skipped := range report.Skipped {
		fmt.Printf("SKIP %s: %s\n", skipped.ID, skipped.Reason)
	}
}
