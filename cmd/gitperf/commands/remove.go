package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/measurement"
)

// RemoveCommand holds the flags for the remove command.
type RemoveCommand struct {
	deps Deps
	name string
}

// NewRemoveCommand creates and configures the remove command.
func NewRemoveCommand(deps Deps) *cobra.Command {
	rc := &RemoveCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "remove",
		Short: "Drop all stored measurements for a name",
		RunE:  rc.Run,
	}

	cobraCmd.Flags().StringVarP(&rc.name, "name", "n", "", "measurement name to remove (required)")
	_ = cobraCmd.MarkFlagRequired("name")

	return cobraCmd
}

// Run executes the remove command.
func (rc *RemoveCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	// Pending local write-refs are invisible to RemoveMeasurements, which
	// only rewrites the canonical read-ref: without folding them in first,
	// an un-pushed measurement under rc.name would survive the rewrite and
	// resurrect the name on the next push.
	if err := e.protocol.Sync(cmd.Context()); err != nil {
		return fmt.Errorf("sync before remove: %w", err)
	}

	keep := func(lines []string) []string {
		out := make([]string, 0, len(lines))

		for _, line := range lines {
			m, err := measurement.Deserialize(line)
			if err == nil && m.Name == rc.name {
				continue
			}

			out = append(out, line)
		}

		return out
	}

	if err := e.protocol.RemoveMeasurements(cmd.Context(), keep); err != nil {
		return fmt.Errorf("remove %q: %w", rc.name, err)
	}

	rc.deps.Logger.Info("removed measurements", "name", rc.name)

	return nil
}
