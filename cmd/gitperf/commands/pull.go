package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PullCommand holds the flags for the pull command.
type PullCommand struct {
	deps   Deps
	remote string
}

// NewPullCommand creates and configures the pull command.
func NewPullCommand(deps Deps) *cobra.Command {
	pc := &PullCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch recorded measurements from a remote",
		RunE:  pc.Run,
	}

	cobraCmd.Flags().StringVarP(&pc.remote, "remote", "r", "origin", "remote name")

	return cobraCmd
}

// Run executes the pull command.
func (pc *PullCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	if err := e.protocol.Pull(cmd.Context(), pc.remote); err != nil {
		return fmt.Errorf("pull from %s: %w", pc.remote, err)
	}

	pc.deps.Logger.Info("fetched measurements", "remote", pc.remote)

	return nil
}
