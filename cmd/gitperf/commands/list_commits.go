package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/measurement"
)

// ListCommitsCommand holds the flags for the list-commits command.
type ListCommitsCommand struct {
	deps        Deps
	maxCount    int
	startCommit string
}

const defaultListCommitsMaxCount = 50

// NewListCommitsCommand creates and configures the list-commits command.
func NewListCommitsCommand(deps Deps) *cobra.Command {
	lc := &ListCommitsCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "list-commits",
		Short: "List recent commits with their measurement counts",
		RunE:  lc.Run,
	}

	cobraCmd.Flags().IntVar(&lc.maxCount, "max-count", defaultListCommitsMaxCount, "maximum commits to list")
	cobraCmd.Flags().StringVar(&lc.startCommit, "start", "HEAD", "commit to start the walk from")

	return cobraCmd
}

// Run executes the list-commits command.
func (lc *ListCommitsCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	var listed int

	err = e.protocol.ReadSnapshot(cmd.Context(), func(snapshotRef string) error {
		return e.driver.LogWalk(cmd.Context(), lc.startCommit, lc.maxCount, snapshotRef, func(entry gitdriver.CommitEntry) bool {
			n := len(measurement.DeserializeNote(entry.NoteLines))
			listed++

			short := entry.SHA
			if len(short) > 12 {
				short = short[:12]
			}

			fmt.Fprintf(out, "%s  %-4d  %s\n", short, n, entry.Title)

			return true
		})
	})
	if err != nil {
		return err
	}

	lc.deps.Logger.Debug("listed commits", "count", listed)

	return nil
}
