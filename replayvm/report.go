// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"sort"
	"time"

	"github.com/ava-labs/replayvm/bench"
	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay"
)

// defaultCategory groups vectors that declare no variant selector.
const defaultCategory = "default"

// Counts tallies outcomes. Every vector that entered the run appears in
// exactly one column; nothing is silently dropped.
type Counts struct {
	Pass    int
	Fail    int
	Error   int
	Skipped int
}

// SkippedVector records a vector excluded before execution, either by the
// selector evaluator or because it failed to decode.
type SkippedVector struct {
	ID     string
	Reason string
}

// Regression is a vector whose outcome changed between two runs.
type Regression struct {
	VectorID string
	Previous replay.Outcome
	Current  replay.Outcome
}

// Report is the canonical aggregate of one run. It is identical for the
// same filtered vector set regardless of worker count.
type Report struct {
	Timestamp time.Time

	Totals     Counts
	ByCategory map[string]Counts

	// Results is ordered by vector ID ascending.
	Results []replay.Result
	Skipped []SkippedVector

	// Model carries the fitted cost model on the benchmarking path.
	// ModelNote carries the non-fatal annotation when fitting was
	// skipped or failed (for example, insufficient data).
	Model     *bench.CostModel
	ModelNote string
}

// BuildReport aggregates sorted pool [results] with the [skipped] set.
// [categories] maps vector ID to its variant class for the per-category
// tally.
func BuildReport(results []replay.Result, skipped []SkippedVector, categories map[string]string) *Report {
	report := &Report{
		Timestamp:  time.Now(),
		Results:    results,
		Skipped:    skipped,
		ByCategory: make(map[string]Counts),
	}

	sort.Slice(report.Skipped, func(i, j int) bool {
		return report.Skipped[i].ID < report.Skipped[j].ID
	})

	for _, result := range results {
		category := categories[result.VectorID]
		if category == "" {
			category = defaultCategory
		}
		counts := report.ByCategory[category]
		switch result.Outcome {
		case replay.Pass:
			report.Totals.Pass++
			counts.Pass++
		case replay.Fail:
			report.Totals.Fail++
			counts.Fail++
		case replay.Error:
			report.Totals.Error++
			counts.Error++
		}
		report.ByCategory[category] = counts
	}

	report.Totals.Skipped = len(skipped)
	return report
}

// Conformant reports whether the run saw no failures and no errors.
func (r *Report) Conformant() bool {
	return r.Totals.Fail == 0 && r.Totals.Error == 0
}

// Failures returns every FAIL and ERROR result, in canonical order.
func (r *Report) Failures() []replay.Result {
	failures := make([]replay.Result, 0, r.Totals.Fail+r.Totals.Error)
	for _, result := range r.Results {
		if result.Outcome != replay.Pass {
			failures = append(failures, result)
		}
	}
	return failures
}

// Compare flags vectors whose outcome differs from [previous]. Vectors
// absent from either run are not flagged; only changed verdicts are
// regressions (or fixes).
func (r *Report) Compare(previous *Report) []Regression {
	if previous == nil {
		return nil
	}
	prior := make(map[string]replay.Outcome, len(previous.Results))
	for _, result := range previous.Results {
		prior[result.VectorID] = result.Outcome
	}

	var regressions []Regression
	for _, result := range r.Results {
		before, ok := prior[result.VectorID]
		if ok && before != result.Outcome {
			regressions = append(regressions, Regression{
				VectorID: result.VectorID,
				Previous: before,
				Current:  result.Outcome,
			})
		}
	}
	return regressions
}

// Samples extracts the calibrated (work units, elapsed) pairs for the
// cost-model fitter. Only passing, calibrated results contribute: a
// failed or errored replay's timing does not reflect the declared work.
func Samples(results []replay.Result, workUnits map[string]uint64) []bench.CalibrationSample {
	samples := make([]bench.CalibrationSample, 0, len(results))
	for _, result := range results {
		if result.Outcome != replay.Pass || !result.Calibrated {
			continue
		}
		samples = append(samples, bench.CalibrationSample{
			WorkUnits: workUnits[result.VectorID],
			Elapsed:   result.ElapsedCalibrated,
		})
	}
	return samples
}

// Categories builds the vector-ID to variant-class map BuildReport and
// Samples consume.
func Categories(vectors []*corpus.TestVector) map[string]string {
	categories := make(map[string]string, len(vectors))
	for _, vec := range vectors {
		categories[vec.ID] = vec.Selectors[corpus.SelectorVariant]
	}
	return categories
}
