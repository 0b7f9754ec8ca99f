package report

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTMLWriter renders Groups as a self-contained HTML page with one line
// chart per group, using echarts.
type HTMLWriter struct {
	// Title is the page title; "gitperf report" if empty.
	Title string
}

// Write implements Writer. An empty groups slice, or a group with no
// series at all, still produces a valid HTML page with a placeholder
// "no data" chart rather than failing (§4.9).
func (h HTMLWriter) Write(groups []Group) ([]byte, error) {
	title := h.Title
	if title == "" {
		title = "gitperf report"
	}

	page := components.NewPage()
	page.PageTitle = title

	if len(groups) == 0 {
		page.AddCharts(lineChart(title, nil))
	}

	for _, g := range groups {
		page.AddCharts(lineChart(groupTitle(title, g.Key), g.Series))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}

	return buf.Bytes(), nil
}

func groupTitle(base, key string) string {
	if key == "" {
		return base
	}

	return base + " / " + key
}

// lineChart builds one echarts line chart for a group's series. A group
// with no series (or all-empty series) renders a single "no data" line,
// matching the reporting contract's "empty series is legal input" clause.
func lineChart(title string, series []Series) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "commit"}),
	)

	longest := longestSeries(series)
	if longest == nil {
		line.SetXAxis([]string{"no data"}).AddSeries("no data", []opts.LineData{{Value: 0}})

		return line
	}

	xAxis := make([]string, len(longest.Points))
	for i, p := range longest.Points {
		xAxis[i] = shortSHA(p.SHA)
	}

	line.SetXAxis(xAxis)

	for _, s := range series {
		data := make([]opts.LineData, len(s.Points))
		for i, p := range s.Points {
			data[i] = opts.LineData{Value: p.Value}
		}

		line.AddSeries(s.Name, data)
	}

	return line
}

func longestSeries(series []Series) *Series {
	var longest *Series

	for i := range series {
		if len(series[i].Points) == 0 {
			continue
		}

		if longest == nil || len(series[i].Points) > len(longest.Points) {
			longest = &series[i]
		}
	}

	return longest
}

func shortSHA(sha string) string {
	if len(sha) >= 8 {
		return sha[:8]
	}

	return sha
}
