package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/refs"
)

// StatusCommand holds the flags for the status command.
type StatusCommand struct {
	deps Deps
}

// NewStatusCommand creates and configures the status command.
func NewStatusCommand(deps Deps) *cobra.Command {
	sc := &StatusCommand{deps: deps}

	return &cobra.Command{
		Use:   "status",
		Short: "Show local write-ref/read-ref state",
		RunE:  sc.Run,
	}
}

// Run executes the status command.
func (sc *StatusCommand) Run(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	readOID, err := e.driver.RevParse(cmd.Context(), refs.ReadRef)
	switch {
	case errors.Is(err, gitdriver.ErrNotFound):
		fmt.Fprintf(out, "read ref:  %s (not yet materialized)\n", refs.ReadRef)
	case err != nil:
		return fmt.Errorf("resolve %s: %w", refs.ReadRef, err)
	default:
		fmt.Fprintf(out, "read ref:  %s @ %s\n", refs.ReadRef, readOID)
	}

	writeRefs, err := e.protocol.ListWriteRefs(cmd.Context())
	if err != nil {
		return err
	}

	if len(writeRefs) == 0 {
		fmt.Fprintln(out, "write refs: none pending")

		return nil
	}

	fmt.Fprintf(out, "write refs: %d pending\n", len(writeRefs))
	sc.deps.Logger.Debug("status", "pending_write_refs", len(writeRefs))

	for _, ref := range writeRefs {
		oid, err := e.driver.RevParse(cmd.Context(), ref)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", ref, err)
		}

		fmt.Fprintf(out, "  %s @ %s\n", ref, oid)
	}

	return nil
}
