// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replayvm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/replayvm/corpus"
	"github.com/ava-labs/replayvm/replay"
)

// Job pairs a runnable vector with the tolerance the selector evaluator
// assigned it (nil for exact matching).
type Job struct {
	Vector    *corpus.TestVector
	Tolerance *corpus.GasTolerance
}

// ProfilerHook observes vector execution. The default hook is a no-op;
// an instrumented hook is injected only when profiling is explicitly
// enabled, never toggled through process-wide state.
type ProfilerHook interface {
	VectorStart(vectorID string)
	VectorDone(vectorID string, elapsed time.Duration)
}

type noopProfiler struct{}

func (noopProfiler) VectorStart(string)               {}
func (noopProfiler) VectorDone(string, time.Duration) {}

// NoopProfiler returns the default do-nothing hook.
func NoopProfiler() ProfilerHook { return noopProfiler{} }

// logProfiler reports per-vector wall time through the logger.
type logProfiler struct{}

func (logProfiler) VectorStart(vectorID string) {
	log.Debug("vector start", "vector", vectorID)
}

func (logProfiler) VectorDone(vectorID string, elapsed time.Duration) {
	log.Info("vector done", "vector", vectorID, "elapsed", elapsed)
}

// LogProfiler returns a hook that logs per-vector timings.
func LogProfiler() ProfilerHook { return logProfiler{} }

// Pool fans independent vector replays out across a fixed set of workers.
// Vectors race freely during execution; ordering is re-established at
// aggregation by sorting on vector ID, so the result list is identical
// regardless of worker count or scheduling.
type Pool struct {
	workers  int
	timeout  time.Duration
	retries  int
	factory  replay.MachineFactory
	profiler ProfilerHook
}

func NewPool(workers int, timeout time.Duration, retries int, factory replay.MachineFactory, profiler ProfilerHook) *Pool {
	if profiler == nil {
		profiler = NoopProfiler()
	}
	return &Pool{
		workers:  workers,
		timeout:  timeout,
		retries:  retries,
		factory:  factory,
		profiler: profiler,
	}
}

// RunAll replays every job and returns one result per job, sorted by
// vector ID ascending. A single vector's failure, error, or panic never
// aborts its siblings.
func (p *Pool) RunAll(ctx context.Context, jobs []Job) []replay.Result {
	jobCh := make(chan Job)
	resultCh := make(chan replay.Result)

	var workers sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range jobCh {
				resultCh <- p.runOne(ctx, job)
			}
		}()
	}

	unfed := make(chan []Job, 1)
	go func() {
		defer close(jobCh)
		for i, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				unfed <- jobs[i:]
				return
			}
		}
		unfed <- nil
	}()

	go func() {
		workers.Wait()
		close(resultCh)
	}()

	// The aggregator is the single mutation point for the shared result
	// collection.
	results := make([]replay.Result, 0, len(jobs))
	for result := range resultCh {
		results = append(results, result)
	}

	// A cancelled run still accounts for every vector: jobs the feeder
	// never handed out are recorded as cancelled errors.
	for _, job := range <-unfed {
		results = append(results, replay.Result{
			VectorID: job.Vector.ID,
			Outcome:  replay.Error,
			Kind:     replay.ErrCancelled,
			Reason:   "run cancelled before replay",
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].VectorID < results[j].VectorID
	})
	return results
}

// runOne replays one vector, retrying timeouts up to the configured
// retry count. If every attempt times out, the timeout result stands.
func (p *Pool) runOne(ctx context.Context, job Job) replay.Result {
	result := p.attempt(ctx, job)
	for retry := 0; retry < p.retries && result.Outcome == replay.Error && result.Kind == replay.ErrTimeout; retry++ {
		log.Warn("retrying timed-out vector", "vector", job.Vector.ID, "attempt", retry+2)
		result = p.attempt(ctx, job)
	}
	return result
}

// attempt is the per-vector fault boundary: machine panics are converted
// into ERROR outcomes here instead of propagating into the pool.
func (p *Pool) attempt(ctx context.Context, job Job) (result replay.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = replay.Result{
				VectorID: job.Vector.ID,
				Outcome:  replay.Error,
				Kind:     replay.ErrPanic,
				Reason:   fmt.Sprintf("machine panic: %v", r),
			}
		}
	}()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.profiler.VectorStart(job.Vector.ID)
	result = replay.Replay(runCtx, job.Vector, p.factory, job.Tolerance)
	p.profiler.VectorDone(job.Vector.ID, result.ElapsedRaw)
	return result
}
