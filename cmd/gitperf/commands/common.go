// Package commands provides CLI command implementations for gitperf.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/gpconfig"
	"github.com/kaihowl/gitperf/pkg/refs"
)

// Deps holds process-wide collaborators every command needs.
type Deps struct {
	Logger *slog.Logger
}

// env bundles the driver, protocol, and config every subcommand resolves
// from the current working directory before doing its own work.
type env struct {
	driver   *gitdriver.Driver
	protocol *refs.Protocol
	cfg      *gpconfig.Config
}

func openEnv(ctx context.Context) (*env, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	driver := gitdriver.New(cwd)

	repoRoot, err := driver.Toplevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve repository root: %w", err)
	}

	cfg, err := gpconfig.Load(gpconfig.SystemPath(), gpconfig.RepoPath(repoRoot))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	protocol := refs.New(driver, cfg.BackoffMaxElapsed())

	return &env{driver: driver, protocol: protocol, cfg: cfg}, nil
}

func (e *env) repoRoot(ctx context.Context) (string, error) {
	return e.driver.Toplevel(ctx)
}

// parseKeyValues parses "k=v" pairs from --key flags into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))

	for _, p := range pairs {
		idx := strings.IndexByte(p, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid key-value %q: expected key=value", p)
		}

		out[p[:idx]] = p[idx+1:]
	}

	return out, nil
}
