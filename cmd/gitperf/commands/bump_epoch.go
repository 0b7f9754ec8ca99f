package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/gpconfig"
)

// BumpEpochCommand holds the flags for the bump-epoch command.
type BumpEpochCommand struct {
	deps Deps
	name string
}

// NewBumpEpochCommand creates and configures the bump-epoch command.
func NewBumpEpochCommand(deps Deps) *cobra.Command {
	bc := &BumpEpochCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "bump-epoch",
		Short: "Start a new baseline for a measurement name",
		RunE:  bc.Run,
	}

	cobraCmd.Flags().StringVarP(&bc.name, "name", "n", "", "measurement name (required)")
	_ = cobraCmd.MarkFlagRequired("name")

	return cobraCmd
}

// Run executes the bump-epoch command.
func (bc *BumpEpochCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	repoRoot, err := e.repoRoot(cmd.Context())
	if err != nil {
		return err
	}

	epoch, err := gpconfig.BumpEpoch(gpconfig.RepoPath(repoRoot), bc.name)
	if err != nil {
		return fmt.Errorf("bump epoch for %q: %w", bc.name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: new epoch %s\n", bc.name, epoch)
	bc.deps.Logger.Info("bumped epoch", "name", bc.name, "epoch", epoch)

	return nil
}
