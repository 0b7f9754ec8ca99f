package audit

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// sparkTicks are the block characters a series is quantized into, lowest
// to highest.
var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// sparkline renders values (oldest to newest, as the audit series is
// newest-first so callers pass a reversed copy) as a single line of block
// characters scaled between the series' own min and max.
func sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}

		if v > max {
			max = v
		}
	}

	span := max - min

	var b strings.Builder

	for _, v := range values {
		if span == 0 {
			b.WriteRune(sparkTicks[0])

			continue
		}

		idx := int((v - min) / span * float64(len(sparkTicks)-1))
		b.WriteRune(sparkTicks[idx])
	}

	return b.String()
}

// directionArrow renders z's sign as the arrow the audit report prefixes
// a verdict with: ↑ for a value that rose, ↓ for one that fell, → for no
// meaningful movement (NaN or exactly zero).
func directionArrow(z float64) string {
	switch {
	case math.IsNaN(z) || z == 0:
		return "→"
	case z > 0:
		return "↑"
	default:
		return "↓"
	}
}

// formatFloat renders f, appending unit if non-empty, using go-humanize
// for a compact large-magnitude form and plain fixed-point otherwise.
func formatFloat(f float64, unit string) string {
	var s string

	switch {
	case math.IsInf(f, 1):
		s = "+Inf"
	case math.IsInf(f, -1):
		s = "-Inf"
	case math.IsNaN(f):
		s = "NaN"
	case math.Abs(f) >= 1000:
		s = humanize.CommafWithDigits(f, 2)
	default:
		s = humanize.FormatFloat("#,###.####", f)
	}

	if unit != "" {
		return s + " " + unit
	}

	return s
}

// verdictColor returns the *color.Color the CLI renders a verdict with.
func verdictColor(v Verdict) *color.Color {
	switch v {
	case Pass:
		return color.New(color.FgGreen)
	case Fail:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgYellow)
	}
}

// WriteReport renders one section per result to w: verdict, z-score with
// direction arrow, head/tail stats, tail min/max range, and a sparkline
// over the retrieved series (§4.7).
func WriteReport(w io.Writer, results []Result, units map[string]string) {
	for _, r := range results {
		unit := units[r.Name]

		verdictColor(r.Verdict).Fprintf(w, "%s %s %s\n", r.Name, directionArrow(r.ZScore), r.Verdict)

		if r.Verdict == SkippedInsufficientData {
			fmt.Fprintf(w, "  insufficient data (head present: %v, tail len: %d)\n",
				r.HeadSHA != "", len(r.Series)-1)

			continue
		}

		tbl := table.NewWriter()
		tbl.SetOutputMirror(w)
		tbl.AppendHeader(table.Row{"", "value"})
		tbl.AppendRow(table.Row{"head", formatFloat(r.HeadValue, unit)})
		tbl.AppendRow(table.Row{"z-score", formatFloat(r.ZScore, "")})
		tbl.AppendRow(table.Row{"tail mean", formatFloat(r.TailStats.Mean, unit)})
		tbl.AppendRow(table.Row{"tail stddev", formatFloat(r.TailStats.Stddev, unit)})
		tbl.AppendRow(table.Row{"tail mad", formatFloat(r.TailStats.MAD, unit)})
		tbl.AppendRow(table.Row{"tail n", fmt.Sprintf("%d", r.TailStats.Len)})
		tbl.AppendRow(table.Row{"tail range", fmt.Sprintf("%s .. %s", formatFloat(r.TailMin, unit), formatFloat(r.TailMax, unit))})
		tbl.AppendRow(table.Row{"relative deviation", formatFloat(r.RelativeDeviationPct, "%")})
		tbl.Render()

		values := make([]float64, len(r.Series))
		for i, s := range r.Series {
			values[len(r.Series)-1-i] = s.Value
		}

		fmt.Fprintf(w, "  %s\n\n", sparkline(values))
	}
}
