// Package audit implements the regression-detection engine: policy
// resolution, head/tail split, sigma threshold, and minimum-relative-
// deviation gating over a retrieved measurement sequence (§4.7).
package audit

import (
	"context"
	"fmt"
	"math"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/gpconfig"
	"github.com/kaihowl/gitperf/pkg/gpstats"
	"github.com/kaihowl/gitperf/pkg/measurement"
	"github.com/kaihowl/gitperf/pkg/retrieval"
)

// Verdict is the three-way outcome of auditing one measurement name.
type Verdict int

const (
	// Pass means the head value is within tolerance of the tail.
	Pass Verdict = iota
	// Fail means the head value is a statistically significant
	// regression against the tail that the noise gate did not absorb.
	Fail
	// SkippedInsufficientData means there was no head, or too short a
	// tail, to make a call.
	SkippedInsufficientData
)

// String renders the verdict the way the CLI's textual report does.
func (v Verdict) String() string {
	switch v {
	case Pass:
		return "Pass"
	case Fail:
		return "Fail"
	case SkippedInsufficientData:
		return "SkippedInsufficientData"
	default:
		return "Unknown"
	}
}

// Policy is the resolved per-measurement audit configuration (§4.7).
type Policy struct {
	Sigma                 float64
	MinMeasurements       uint16
	AggregateBy           gpconfig.AggregateBy
	DispersionMethod      gpconfig.DispersionMethod
	MinRelativeDeviation  float64
	HasMinRelativeDevGate bool
}

// ResolvePolicy resolves name's audit policy from cfg, falling back to the
// built-in defaults for anything unset.
func ResolvePolicy(cfg *gpconfig.Config, name string) (Policy, error) {
	p := Policy{
		Sigma:            gpconfig.DefaultSigma,
		MinMeasurements:  gpconfig.DefaultMinMeasurements,
		AggregateBy:      gpconfig.DefaultAggregateBy,
		DispersionMethod: gpconfig.DefaultDispersion,
	}

	if sigma, ok, err := cfg.Sigma(name); err != nil {
		return Policy{}, err
	} else if ok {
		p.Sigma = sigma
	}

	if minM, ok, err := cfg.MinMeasurements(name); err != nil {
		return Policy{}, err
	} else if ok {
		p.MinMeasurements = minM
	}

	if agg, ok, err := cfg.AggregateByFor(name); err != nil {
		return Policy{}, err
	} else if ok {
		p.AggregateBy = agg
	}

	if disp, ok, err := cfg.DispersionMethodFor(name); err != nil {
		return Policy{}, err
	} else if ok {
		p.DispersionMethod = disp
	}

	if rel, ok, err := cfg.MinRelativeDeviation(name); err != nil {
		return Policy{}, err
	} else if ok {
		p.MinRelativeDeviation = rel
		p.HasMinRelativeDevGate = true
	}

	return p, nil
}

func (p Policy) dispersion() gpstats.DispersionMethod {
	if p.DispersionMethod == gpconfig.DispersionMAD {
		return gpstats.MAD
	}

	return gpstats.Stddev
}

// Result is the outcome of auditing one measurement name (§4.7).
type Result struct {
	Name                  string
	Verdict               Verdict
	HeadValue             float64
	HeadSHA               string
	HeadStats             gpstats.Stats
	TailStats             gpstats.Stats
	TailMin               float64
	TailMax               float64
	ZScore                float64
	RelativeDeviationPct  float64
	Policy                Policy
	Series                []measurement.CommitSummary // newest first, head included
}

// Run executes the retrieval pipeline for name under policy and produces
// its Result.
func Run(ctx context.Context, driver *gitdriver.Driver, notesRef, start string, maxCount int, name string, policy Policy, selectors map[string]string) (Result, error) {
	res := Result{Name: name, Policy: policy}

	agg, ok := retrieval.Aggregators[policy.AggregateBy]
	if !ok {
		agg = retrieval.Aggregators[gpconfig.AggregateMin]
	}

	opts := retrieval.Options{
		MaxCount:  maxCount,
		Names:     []string{name},
		Selectors: selectors,
		Aggregate: agg,
	}

	var series []measurement.CommitSummary

	err := retrieval.Run(ctx, driver, notesRef, start, opts, func(r retrieval.CommitRecord) bool {
		if s, ok := r.Summaries[name]; ok {
			series = append(series, s)
		}

		return true
	})
	if err != nil {
		return Result{}, fmt.Errorf("audit %s: %w", name, err)
	}

	res.Series = series

	if len(series) == 0 {
		res.Verdict = SkippedInsufficientData

		return res, nil
	}

	head := series[0]
	tail := series[1:]

	minMeasurements := int(policy.MinMeasurements)
	if len(tail) < minMeasurements-1 {
		res.Verdict = SkippedInsufficientData
		res.HeadValue = head.Value
		res.HeadSHA = head.SHA

		return res, nil
	}

	tailValues := make([]float64, len(tail))
	for i, s := range tail {
		tailValues[i] = s.Value
	}

	tailStats := gpstats.Compute(tailValues)
	headStats := gpstats.Compute([]float64{head.Value})

	z := gpstats.ZScore(head.Value, tailStats, policy.dispersion())

	res.HeadValue = head.Value
	res.HeadSHA = head.SHA
	res.HeadStats = headStats
	res.TailStats = tailStats
	res.ZScore = z
	res.RelativeDeviationPct = relativeDeviation(head.Value, tailStats.Mean)
	res.TailMin, res.TailMax = minMax(tailValues)

	if math.Abs(z) <= policy.Sigma {
		res.Verdict = Pass

		return res, nil
	}

	if policy.HasMinRelativeDevGate && res.RelativeDeviationPct < policy.MinRelativeDeviation {
		res.Verdict = Pass

		return res, nil
	}

	res.Verdict = Fail

	return res, nil
}

func relativeDeviation(head, tailMean float64) float64 {
	if tailMean == 0 {
		if head == tailMean {
			return 0
		}

		return math.Inf(1)
	}

	return math.Abs(head-tailMean) / math.Abs(tailMean) * 100
}

func minMax(xs []float64) (float64, float64) {
	min, max := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}

		if x > max {
			max = x
		}
	}

	return min, max
}

// ExitCode returns 1 if any result Failed, 0 otherwise (§4.7: Pass and
// SkippedInsufficientData are both a clean exit).
func ExitCode(results []Result) int {
	for _, r := range results {
		if r.Verdict == Fail {
			return 1
		}
	}

	return 0
}
