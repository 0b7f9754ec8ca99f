package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ResetCommand holds the flags for the reset command.
type ResetCommand struct {
	deps Deps
}

// NewResetCommand creates and configures the reset command.
func NewResetCommand(deps Deps) *cobra.Command {
	rc := &ResetCommand{deps: deps}

	return &cobra.Command{
		Use:   "reset",
		Short: "Discard local, unpublished measurements",
		RunE:  rc.Run,
	}
}

// Run executes the reset command.
func (rc *ResetCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	if err := e.protocol.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	rc.deps.Logger.Info("discarded local measurements")

	return nil
}
