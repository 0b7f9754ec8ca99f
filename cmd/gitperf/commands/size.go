package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/measurement"
)

// SizeCommand holds the flags for the size command.
type SizeCommand struct {
	deps        Deps
	startCommit string
}

// NewSizeCommand creates and configures the size command.
func NewSizeCommand(deps Deps) *cobra.Command {
	sc := &SizeCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "size",
		Short: "Count stored measurements",
		RunE:  sc.Run,
	}

	cobraCmd.Flags().StringVar(&sc.startCommit, "start", "HEAD", "commit to start the walk from")

	return cobraCmd
}

// Run executes the size command.
func (sc *SizeCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	var commits, lines int

	err = e.protocol.ReadSnapshot(cmd.Context(), func(snapshotRef string) error {
		return e.driver.LogWalk(cmd.Context(), sc.startCommit, 0, snapshotRef, func(entry gitdriver.CommitEntry) bool {
			if entry.NoteLines == "" {
				return true
			}

			commits++
			lines += len(measurement.DeserializeNote(entry.NoteLines))

			return true
		})
	})
	if err != nil {
		return fmt.Errorf("walk commits: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d measurements across %d commits\n", lines, commits)
	sc.deps.Logger.Debug("size", "measurements", lines, "commits", commits)

	return nil
}
