// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"context"
	"errors"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/avalanchego/version"

	"github.com/ava-labs/replayvm/bench"
	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay"
)

const Name = "replayvm"

// Version of the harness, reported by the binaries and the RPC service.
var Version = version.NewDefaultVersion(1, 0, 0)

// Runner ties the pipeline together: selector filtering, pooled replay,
// aggregation, and (on the benchmark path) calibration and model fitting.
type Runner struct {
	cfg       Config
	factory   replay.MachineFactory
	evaluator *corpus.Evaluator
	pool      *Pool
}

// NewRunner builds a runner around [factory]. The factory is passed in
// explicitly per run; the harness keeps no machine registry.
func NewRunner(cfg Config, factory replay.MachineFactory) *Runner {
	cfg = cfg.WithDefaults()

	profiler := NoopProfiler()
	if cfg.ProfileVectors {
		profiler = LogProfiler()
	}

	return &Runner{
		cfg:       cfg,
		factory:   factory,
		evaluator: corpus.NewEvaluator(cfg.Selection),
		pool:      NewPool(cfg.Workers, cfg.VectorTimeout, cfg.Retries, factory, profiler),
	}
}

// Filter evaluates every vector's selectors and splits the corpus into
// runnable jobs and skipped vectors.
func (r *Runner) Filter(vectors []*corpus.TestVector) ([]Job, []SkippedVector) {
	jobs := make([]Job, 0, len(vectors))
	var skipped []SkippedVector

	for _, vec := range vectors {
		decision, reason := r.evaluator.Evaluate(vec)
		switch decision {
		case corpus.Run:
			jobs = append(jobs, Job{Vector: vec})
		case corpus.RunRelaxed:
			jobs = append(jobs, Job{Vector: vec, Tolerance: r.relaxedTolerance(vec)})
		default:
			skipped = append(skipped, SkippedVector{ID: vec.ID, Reason: reason})
		}
	}
	return jobs, skipped
}

// relaxedTolerance resolves the tolerance for a relaxed run: the config
// override wins, then the vector's own declared tolerance.
func (r *Runner) relaxedTolerance(vec *corpus.TestVector) *corpus.GasTolerance {
	if r.cfg.ToleranceOverride != nil {
		return r.cfg.ToleranceOverride
	}
	return vec.Post.Tolerance
}

// Run executes the conformance path over [c] and returns the canonical
// report.
func (r *Runner) Run(ctx context.Context, c *corpus.Corpus) *Report {
	jobs, skipped := r.Filter(c.Vectors)
	skipped = append(skipped, rejectedAsSkipped(c)...)

	log.Info("starting conformance run",
		"vectors", len(jobs),
		"skipped", len(skipped),
		"workers", r.cfg.Workers,
	)

	results := r.pool.RunAll(ctx, jobs)
	report := BuildReport(results, skipped, Categories(c.Vectors))

	log.Info("conformance run finished",
		"pass", report.Totals.Pass,
		"fail", report.Totals.Fail,
		"error", report.Totals.Error,
		"skipped", report.Totals.Skipped,
	)
	return report
}

// RunBenchmark executes the benchmarking path: calibrate harness
// overhead, replay the filtered corpus, annotate calibrated timings, and
// fit the cost model. A fit that cannot be computed annotates the report
// instead of failing the run.
func (r *Runner) RunBenchmark(ctx context.Context, c *corpus.Corpus) (*Report, error) {
	calibrator, err := bench.Calibrate(ctx, r.factory, r.cfg.CalibrationIterations)
	if err != nil {
		return nil, err
	}

	jobs, skipped := r.Filter(c.Vectors)
	skipped = append(skipped, rejectedAsSkipped(c)...)

	log.Info("starting benchmark run",
		"vectors", len(jobs),
		"skipped", len(skipped),
		"workers", r.cfg.Workers,
		"baselineOffset", calibrator.Offset(),
	)

	results := r.pool.RunAll(ctx, jobs)
	for i := range results {
		calibrator.Annotate(&results[i])
	}

	report := BuildReport(results, skipped, Categories(c.Vectors))

	workUnits := make(map[string]uint64, len(jobs))
	for _, job := range jobs {
		workUnits[job.Vector.ID] = job.Vector.WorkUnits()
	}

	model, err := bench.Fit(Samples(results, workUnits))
	switch {
	case errors.Is(err, bench.ErrInsufficientData):
		report.ModelNote = err.Error()
		log.Warn("cost model omitted", "reason", err)
	case err != nil:
		return nil, err
	default:
		report.Model = model
		log.Info("fitted cost model", "model", model)
	}
	return report, nil
}

func rejectedAsSkipped(c *corpus.Corpus) []SkippedVector {
	skipped := make([]SkippedVector, 0, len(c.Rejected))
	for _, rejected := range c.Rejected {
		skipped = append(skipped, SkippedVector{
			ID:     rejected.Path,
			Reason: rejected.Reason,
		})
	}
	return skipped
}
