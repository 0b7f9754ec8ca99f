// Package report implements the reporting interface contract: a consumer
// of the retrieval pipeline's output that emits opaque bytes to a sink,
// tolerating an empty series as a legal "no data" input (§4.9).
package report

import "github.com/kaihowl/gitperf/pkg/measurement"

// Series is one measurement name's retrieved, pre-filtered,
// pre-aggregated sequence in reverse-chronological order (newest first),
// as the retrieval pipeline produces it. A reporter may reverse it for
// display.
type Series struct {
	Name    string
	Commits []measurement.CommitInfo
	Points  []measurement.CommitSummary
}

// Group partitions a report by an optional separate_by key value; Key is
// empty when no separate_by was requested.
type Group struct {
	Key    string
	Series []Series
}

// Writer renders one or more Groups to opaque bytes. Every implementation
// must accept a Group with an empty Series slice (or a Series with no
// Points) and still produce a valid artifact, never an error.
type Writer interface {
	Write(groups []Group) ([]byte, error)
}
