package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kaihowl/gitperf/pkg/store"
)

// AddCommand holds the flags for the add command.
type AddCommand struct {
	deps      Deps
	name      string
	value     string
	keyValues []string
}

// NewAddCommand creates and configures the add command.
func NewAddCommand(deps Deps) *cobra.Command {
	ac := &AddCommand{deps: deps}

	cobraCmd := &cobra.Command{
		Use:   "add",
		Short: "Record a measurement against HEAD",
		RunE:  ac.Run,
	}

	cobraCmd.Flags().StringVarP(&ac.name, "name", "n", "", "measurement name (required)")
	// No shorthand: -v is reserved for the root command's --verbose.
	cobraCmd.Flags().StringVar(&ac.value, "value", "", "measurement value (required)")
	cobraCmd.Flags().StringSliceVarP(&ac.keyValues, "key", "k", nil, "key=value metadata, repeatable")

	_ = cobraCmd.MarkFlagRequired("name")
	_ = cobraCmd.MarkFlagRequired("value")

	return cobraCmd
}

// Run executes the add command.
func (ac *AddCommand) Run(cmd *cobra.Command, _ []string) error {
	value, err := strconv.ParseFloat(ac.value, 64)
	if err != nil {
		return fmt.Errorf("parse --value %q: %w", ac.value, err)
	}

	kv, err := parseKeyValues(ac.keyValues)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}

	writer := store.New(e.driver, e.protocol, e.cfg)

	if err := writer.Add(cmd.Context(), ac.name, value, kv); err != nil {
		return fmt.Errorf("add measurement: %w", err)
	}

	ac.deps.Logger.Debug("recorded measurement", "name", ac.name, "value", value)

	return nil
}
