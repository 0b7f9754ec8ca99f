package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PushCommand holds the flags for the push command.
type PushCommand struct {
	deps   Deps
	remote string
}

// NewPushCommand creates and configures the push command.
func NewPushCommand(deps Deps) *cobra.Command {
	pc := &PushCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "push",
		Short: "Publish locally recorded measurements to a remote",
		RunE:  pc.Run,
	}

	cobraCmd.Flags().StringVarP(&pc.remote, "remote", "r", "origin", "remote name")

	return cobraCmd
}

// Run executes the push command.
func (pc *PushCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	if err := e.protocol.Push(cmd.Context(), pc.remote); err != nil {
		return fmt.Errorf("push to %s: %w", pc.remote, err)
	}

	pc.deps.Logger.Info("published measurements", "remote", pc.remote)

	return nil
}
