// Package retrieval implements the streaming walk → decode → filter →
// aggregate → epoch-cutoff pipeline that both the audit engine and the
// reporting interface consume (§4.5).
package retrieval

import (
	"context"

	"github.com/kaihowl/gitperf/pkg/filter"
	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/gpconfig"
	"github.com/kaihowl/gitperf/pkg/gpstats"
	"github.com/kaihowl/gitperf/pkg/measurement"
)

// Aggregate collapses the values of same-commit, same-name measurements
// into the one CommitSummary.Value the audit engine and reports consume.
type Aggregate func(values []float64) float64

// Aggregators maps the config-level aggregation names to Aggregate
// implementations.
var Aggregators = map[gpconfig.AggregateBy]Aggregate{
	gpconfig.AggregateMin:    minOf,
	gpconfig.AggregateMax:    maxOf,
	gpconfig.AggregateMedian: medianOf,
	gpconfig.AggregateMean:   meanOf,
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}

	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}

	return m
}

func medianOf(values []float64) float64 {
	return gpstats.Median(values)
}

func meanOf(values []float64) float64 {
	return gpstats.Mean(values)
}

// Options configures a retrieval run.
type Options struct {
	// MaxCount bounds how many commits the walk visits.
	MaxCount int
	// Names, if non-empty, is the exact-match allow-list a measurement's
	// name must belong to.
	Names []string
	// Filter, if non-empty, is the OR'd regex allow-list a measurement's
	// name must match.
	Filter filter.Filter
	// Selectors, if non-empty, must be a subset of a measurement's
	// key_values for it to be retained.
	Selectors map[string]string
	// Aggregate collapses one commit's same-name measurement values.
	Aggregate Aggregate
}

// CommitRecord is one row of a retrieval run: the commit's identity plus
// the CommitSummary for every measurement name still active (not yet past
// its own epoch cutoff) that had at least one retained measurement on this
// commit. An empty Summaries map is the defined "no data" row (§4.5).
type CommitRecord struct {
	Commit    measurement.CommitInfo
	Summaries map[string]measurement.CommitSummary
}

// nameState tracks one measurement name's epoch anchor across the walk.
type nameState struct {
	anchorSet bool
	anchor    uint32
	cutOff    bool
}

// Run walks start over driver's notesRef, applying opts, and calls yield
// once per CommitRecord in strict reverse-chronological order. Returning
// false from yield stops the walk early, same as the underlying
// gitdriver.LogWalk it is built on.
func Run(ctx context.Context, driver *gitdriver.Driver, notesRef, start string, opts Options, yield func(CommitRecord) bool) error {
	agg := opts.Aggregate
	if agg == nil {
		agg = minOf
	}

	names := make(map[string]*nameState, len(opts.Names))
	for _, n := range opts.Names {
		names[n] = &nameState{}
	}

	openEnded := len(opts.Names) == 0

	dynamicStates := map[string]*nameState{}
	stateFor := func(name string) *nameState {
		if s, ok := names[name]; ok {
			return s
		}

		if !openEnded {
			return nil
		}

		s, ok := dynamicStates[name]
		if !ok {
			s = &nameState{}
			dynamicStates[name] = s
		}

		return s
	}

	allCutOff := func() bool {
		if openEnded {
			return false
		}

		for _, s := range names {
			if !s.cutOff {
				return false
			}
		}

		return true
	}

	return driver.LogWalk(ctx, start, opts.MaxCount, notesRef, func(entry gitdriver.CommitEntry) bool {
		ms := measurement.DeserializeNote(entry.NoteLines)

		byName := map[string][]measurement.Measurement{}
		for _, m := range ms {
			if !matches(m, opts) {
				continue
			}

			byName[m.Name] = append(byName[m.Name], m)
		}

		record := CommitRecord{
			Commit: measurement.CommitInfo{SHA: entry.SHA, Title: entry.Title, Author: entry.Author},
			Summaries: map[string]measurement.CommitSummary{},
		}

		for name, group := range byName {
			state := stateFor(name)
			if state == nil || state.cutOff {
				continue
			}

			epoch := group[0].Epoch

			if !state.anchorSet {
				state.anchor = epoch
				state.anchorSet = true
			} else if epoch != state.anchor {
				state.cutOff = true

				continue
			}

			values := make([]float64, len(group))
			for i, m := range group {
				values[i] = m.Value
			}

			record.Summaries[name] = measurement.CommitSummary{
				SHA:   entry.SHA,
				Value: agg(values),
				Epoch: epoch,
				N:     len(group),
			}
		}

		if allCutOff() {
			return false
		}

		return yield(record)
	})
}

func matches(m measurement.Measurement, opts Options) bool {
	if len(opts.Names) > 0 {
		found := false

		for _, n := range opts.Names {
			if n == m.Name {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	if !opts.Filter.Empty() && !opts.Filter.MatchesAny(m.Name) {
		return false
	}

	for k, v := range opts.Selectors {
		if m.KeyValues[k] != v {
			return false
		}
	}

	return true
}
