package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/audit"
	"github.com/kaihowl/gitperf/pkg/filter"
	"github.com/kaihowl/gitperf/pkg/retrieval"
)

// AuditCommand holds the flags for the audit command.
type AuditCommand struct {
	deps        Deps
	names       []string
	patterns    []string
	keyValues   []string
	maxCount    int
	startCommit string
}

const defaultAuditMaxCount = 100

// NewAuditCommand creates and configures the audit command.
func NewAuditCommand(deps Deps) *cobra.Command {
	ac := &AuditCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare HEAD against recent history and report regressions",
		RunE:  ac.Run,
	}

	cobraCmd.Flags().StringSliceVarP(&ac.names, "name", "n", nil, "exact measurement name to audit, repeatable")
	cobraCmd.Flags().StringSliceVar(&ac.patterns, "filter", nil, "regex pattern a measurement name must match, repeatable")
	cobraCmd.Flags().StringSliceVarP(&ac.keyValues, "key", "k", nil, "key=value selector, repeatable")
	cobraCmd.Flags().IntVar(&ac.maxCount, "max-count", defaultAuditMaxCount, "maximum commits to walk")
	cobraCmd.Flags().StringVar(&ac.startCommit, "start", "HEAD", "commit to start the walk from")

	return cobraCmd
}

// Run executes the audit command.
func (ac *AuditCommand) Run(cmd *cobra.Command, _ []string) error {
	selectors, err := parseKeyValues(ac.keyValues)
	if err != nil {
		return err
	}

	f, err := filter.Compile(ac.patterns)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	names, err := ac.resolveNames(cmd, e, f, selectors)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "no measurements matched")

		return nil
	}

	var results []audit.Result

	units := map[string]string{}

	err = e.protocol.ReadSnapshot(cmd.Context(), func(snapshotRef string) error {
		for _, name := range names {
			policy, err := audit.ResolvePolicy(e.cfg, name)
			if err != nil {
				return fmt.Errorf("resolve policy for %q: %w", name, err)
			}

			if unit, ok, uerr := e.cfg.Unit(name); uerr == nil && ok {
				units[name] = unit
			}

			result, err := audit.Run(cmd.Context(), e.driver, snapshotRef, ac.startCommit, ac.maxCount, name, policy, selectors)
			if err != nil {
				return err
			}

			results = append(results, result)
		}

		return nil
	})
	if err != nil {
		return err
	}

	audit.WriteReport(cmd.OutOrStdout(), results, units)

	if code := audit.ExitCode(results); code != 0 {
		ac.deps.Logger.Warn("audit found a regression", "names", names)
		os.Exit(code)
	}

	return nil
}

// resolveNames returns the explicit --name list if given, otherwise
// discovers every distinct measurement name within the --max-count commits
// of the audit walk that matches --filter/--key.
func (ac *AuditCommand) resolveNames(cmd *cobra.Command, e *env, f filter.Filter, selectors map[string]string) ([]string, error) {
	if len(ac.names) > 0 {
		return ac.names, nil
	}

	seen := map[string]bool{}

	opts := retrieval.Options{
		MaxCount:  ac.maxCount,
		Filter:    f,
		Selectors: selectors,
		Aggregate: retrieval.Aggregators["min"],
	}

	err := e.protocol.ReadSnapshot(cmd.Context(), func(snapshotRef string) error {
		return retrieval.Run(cmd.Context(), e.driver, snapshotRef, ac.startCommit, opts, func(r retrieval.CommitRecord) bool {
			for name := range r.Summaries {
				seen[name] = true
			}

			return true
		})
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}

	return names, nil
}
