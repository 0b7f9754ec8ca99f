package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/filter"
	"github.com/kaihowl/gitperf/pkg/report"
	"github.com/kaihowl/gitperf/pkg/retrieval"
)

// ReportCommand holds the flags for the report command.
type ReportCommand struct {
	deps        Deps
	names       []string
	patterns    []string
	keyValues   []string
	maxCount    int
	startCommit string
	format      string
	output      string
	title       string
	separateBy  string
}

const defaultReportMaxCount = 1000

// NewReportCommand creates and configures the report command.
func NewReportCommand(deps Deps) *cobra.Command {
	rc := &ReportCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "report",
		Short: "Render a retrieved series as HTML or CSV",
		RunE:  rc.Run,
	}

	cobraCmd.Flags().StringSliceVarP(&rc.names, "name", "n", nil, "exact measurement name to report, repeatable")
	cobraCmd.Flags().StringSliceVar(&rc.patterns, "filter", nil, "regex pattern a measurement name must match, repeatable")
	cobraCmd.Flags().StringSliceVarP(&rc.keyValues, "key", "k", nil, "key=value selector, repeatable")
	cobraCmd.Flags().IntVar(&rc.maxCount, "max-count", defaultReportMaxCount, "maximum commits to walk")
	cobraCmd.Flags().StringVar(&rc.startCommit, "start", "HEAD", "commit to start the walk from")
	cobraCmd.Flags().StringVarP(&rc.format, "format", "f", "html", "output format: html or csv")
	cobraCmd.Flags().StringVarP(&rc.output, "output", "o", "", "output file (default: stdout)")
	cobraCmd.Flags().StringVar(&rc.title, "title", "gitperf report", "HTML report title")
	cobraCmd.Flags().StringVar(&rc.separateBy, "separate-by", "", "key to split the report into groups by")

	return cobraCmd
}

// Run executes the report command.
func (rc *ReportCommand) Run(cmd *cobra.Command, _ []string) error {
	selectors, err := parseKeyValues(rc.keyValues)
	if err != nil {
		return err
	}

	f, err := filter.Compile(rc.patterns)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	groups, err := rc.retrieve(cmd, e, f, selectors)
	if err != nil {
		return err
	}

	var writer report.Writer

	switch rc.format {
	case "csv":
		writer = report.CSVWriter{}
	default:
		writer = report.HTMLWriter{Title: rc.title}
	}

	out, err := writer.Write(groups)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	rc.deps.Logger.Debug("rendered report", "format", rc.format, "groups", len(groups))

	return rc.writeOutput(out)
}

func (rc *ReportCommand) writeOutput(out []byte) error {
	if rc.output == "" {
		_, err := os.Stdout.Write(out)

		return err
	}

	return os.WriteFile(rc.output, out, 0o644)
}

// retrieve runs the retrieval pipeline once and reshapes the result into
// report.Group, partitioned by --separate-by if set.
func (rc *ReportCommand) retrieve(cmd *cobra.Command, e *env, f filter.Filter, selectors map[string]string) ([]report.Group, error) {
	opts := retrieval.Options{
		MaxCount:  rc.maxCount,
		Names:     rc.names,
		Filter:    f,
		Selectors: selectors,
		Aggregate: retrieval.Aggregators["min"],
	}

	byGroup := map[string]map[string]*report.Series{}

	err := e.protocol.ReadSnapshot(cmd.Context(), func(snapshotRef string) error {
		return retrieval.Run(cmd.Context(), e.driver, snapshotRef, rc.startCommit, opts, func(r retrieval.CommitRecord) bool {
			for name, summary := range r.Summaries {
				key := groupKey(rc.separateBy, selectors)

				series := byGroup[key]
				if series == nil {
					series = map[string]*report.Series{}
					byGroup[key] = series
				}

				s, ok := series[name]
				if !ok {
					s = &report.Series{Name: name}
					series[name] = s
				}

				s.Commits = append(s.Commits, r.Commit)
				s.Points = append(s.Points, summary)
			}

			return true
		})
	})
	if err != nil {
		return nil, err
	}

	return buildGroups(byGroup), nil
}

func groupKey(separateBy string, selectors map[string]string) string {
	if separateBy == "" {
		return ""
	}

	return selectors[separateBy]
}

func buildGroups(byGroup map[string]map[string]*report.Series) []report.Group {
	groups := make([]report.Group, 0, len(byGroup))

	for key, seriesByName := range byGroup {
		g := report.Group{Key: key}
		for _, s := range seriesByName {
			g.Series = append(g.Series, *s)
		}

		groups = append(groups, g)
	}

	return groups
}
