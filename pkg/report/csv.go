package report

import (
	"bytes"

	"github.com/jedib0t/go-pretty/v6/table"
)

// CSVWriter renders Groups as CSV, one row per (group, series, point), with
// the fixed columns group, sha, title, author, name, value, epoch, n.
type CSVWriter struct{}

// Write implements Writer. An empty groups slice produces a header-only
// CSV, never an error (§4.9).
func (c CSVWriter) Write(groups []Group) ([]byte, error) {
	tbl := table.NewWriter()
	tbl.AppendHeader(table.Row{"group", "sha", "title", "author", "name", "value", "epoch", "n"})

	for _, g := range groups {
		for _, s := range g.Series {
			for i, p := range s.Points {
				commit := measurementCommit(s, i)
				tbl.AppendRow(table.Row{g.Key, p.SHA, commit.Title, commit.Author, s.Name, p.Value, p.Epoch, p.N})
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(tbl.RenderCSV())
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

func measurementCommit(s Series, i int) commitMeta {
	if i < len(s.Commits) {
		return commitMeta{Title: s.Commits[i].Title, Author: s.Commits[i].Author}
	}

	return commitMeta{}
}

type commitMeta struct {
	Title  string
	Author string
}
