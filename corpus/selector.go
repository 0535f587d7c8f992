// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package corpus

import (
	"fmt"
	"path"
	"strconv"
)

// Selector keys recognized by the evaluator. A vector carrying any other
// key is skipped: applicability that cannot be determined is treated as
// not applicable.
const (
	SelectorNetworkVersion    = "network-version"
	SelectorMinNetworkVersion = "min-network-version"
	SelectorVariant           = "variant"
	SelectorRelaxedGas        = "relaxed-gas"
)

// Decision is the evaluator's verdict for one vector.
type Decision uint8

const (
	// Skip excludes the vector from the run.
	Skip Decision = iota
	// Run executes the vector with exact postcondition matching.
	Run
	// RunRelaxed executes the vector with relaxed gas tolerance.
	RunRelaxed
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Run:
		return "run"
	case RunRelaxed:
		return "run-relaxed"
	default:
		return fmt.Sprintf("unknown decision %d", uint8(d))
	}
}

// RunConfig is the slice of the run configuration the evaluator needs.
type RunConfig struct {
	// NetworkVersion is the network version the machine under test
	// implements.
	NetworkVersion uint64
	// Variants are the enabled variant classes.
	Variants []string
	// Include and Exclude are path.Match globs over vector IDs. An
	// exclude match always wins; an include match bypasses selector tag
	// evaluation.
	Include []string
	Exclude []string
	// AllowRelaxedGas permits vectors tagged relaxed-gas to run with a
	// gas tolerance instead of being skipped.
	AllowRelaxedGas bool
}

// Evaluator decides whether a vector applies to the active configuration.
type Evaluator struct {
	cfg      RunConfig
	variants map[string]bool
}

func NewEvaluator(cfg RunConfig) *Evaluator {
	variants := make(map[string]bool, len(cfg.Variants))
	for _, v := range cfg.Variants {
		variants[v] = true
	}
	return &Evaluator{
		cfg:      cfg,
		variants: variants,
	}
}

// Evaluate returns the decision for [vec] and, for Skip, a reason.
//
// Precedence: explicit exclude > explicit include > selector tags. Tags
// are evaluated fail-closed: every declared tag must be recognized and
// must match, otherwise the vector is skipped.
func (e *Evaluator) Evaluate(vec *TestVector) (Decision, string) {
	if pattern, ok := matchAny(e.cfg.Exclude, vec.ID); ok {
		return Skip, fmt.Sprintf("excluded by pattern %q", pattern)
	}
	if _, ok := matchAny(e.cfg.Include, vec.ID); ok {
		return Run, ""
	}

	relaxed := false
	for key, value := range vec.Selectors {
		switch key {
		case SelectorNetworkVersion:
			v, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return Skip, fmt.Sprintf("malformed %s selector %q", key, value)
			}
			if v != e.cfg.NetworkVersion {
				return Skip, fmt.Sprintf("requires network version %d, running %d", v, e.cfg.NetworkVersion)
			}
		case SelectorMinNetworkVersion:
			v, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return Skip, fmt.Sprintf("malformed %s selector %q", key, value)
			}
			if e.cfg.NetworkVersion < v {
				return Skip, fmt.Sprintf("requires network version >= %d, running %d", v, e.cfg.NetworkVersion)
			}
		case SelectorVariant:
			if !e.variants[value] {
				return Skip, fmt.Sprintf("variant %q not enabled", value)
			}
		case SelectorRelaxedGas:
			if value != "true" {
				return Skip, fmt.Sprintf("malformed %s selector %q", key, value)
			}
			if !e.cfg.AllowRelaxedGas {
				return Skip, "relaxed gas matching not allowed"
			}
			relaxed = true
		default:
			// Fail closed on selectors this harness does not understand.
			return Skip, fmt.Sprintf("unrecognized selector %q", key)
		}
	}

	if relaxed {
		return RunRelaxed, ""
	}
	return Run, ""
}

func matchAny(patterns []string, id string) (string, bool) {
	for _, pattern := range patterns {
		// Bad patterns are treated as non-matching.
		if ok, err := path.Match(pattern, id); err == nil && ok {
			return pattern, true
		}
	}
	return "", false
}
