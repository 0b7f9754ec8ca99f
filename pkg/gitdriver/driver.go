// Package gitdriver is a thin wrapper around the `git` subprocess: it
// invokes git with a controlled environment (no pager, no auto-maintenance,
// no color, no optional locks), captures stdout, classifies failures into a
// small closed set of error kinds, and retries the retryable ones with
// backoff (§4.2, §7).
package gitdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Sentinel error kinds. Every failure path surfaces as one of these,
// wrapped with the offending git command's stderr for diagnostics.
var (
	// ErrNotFound is returned when a ref or object does not exist.
	ErrNotFound = errors.New("git: not found")
	// ErrConcurrent is returned when an atomic ref CAS lost a race.
	ErrConcurrent = errors.New("git: concurrent ref update")
	// ErrTransient marks a failure the caller may retry (non-fast-forward,
	// transient network, "bad object").
	ErrTransient = errors.New("git: transient failure")
	// ErrFatal marks a failure that must not be retried (auth, malformed
	// refspec, shallow history without --ignore-missing).
	ErrFatal = errors.New("git: fatal failure")
)

// MinVersion is the minimum git version this driver's ref protocol relies
// on, for the stable symbolic-ref creation semantics it depends on (§4.2).
const MinVersion = "2.46"

// Driver invokes `git` subprocesses rooted at Dir.
type Driver struct {
	// Dir is the working directory git commands run in (a repository
	// worktree or bare repository path).
	Dir string
}

// New returns a Driver rooted at dir.
func New(dir string) *Driver {
	return &Driver{Dir: dir}
}

// baseArgs returns the global flags every invocation uses to disable the
// pager, auto-maintenance, color, and optional locks (§4.2).
func baseArgs() []string {
	return []string{
		"--no-pager",
		"-c", "color.ui=false",
		"-c", "maintenance.auto=false",
		"--no-optional-locks",
	}
}

// run executes `git <baseArgs> <args>`, capturing stdout and stderr.
// Stderr is also teed to the process's stderr for diagnostics, matching
// the "inherit stderr for diagnostics but capture stdout" requirement.
func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	full := append(baseArgs(), args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = d.Dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if stderr.Len() > 0 {
		fmt.Fprint(os.Stderr, stderr.String())
	}

	if runErr != nil {
		return stdout.String(), classify(strings.TrimSpace(stderr.String()), runErr)
	}

	return stdout.String(), nil
}

// runStdin executes `git <baseArgs> <args>` feeding stdin as the process's
// standard input, for subcommands that read a message or blob body that way
// (notes add -F -).
func (d *Driver) runStdin(ctx context.Context, stdin string, args ...string) error {
	full := append(baseArgs(), args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = d.Dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Stdin = strings.NewReader(stdin)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if stderr.Len() > 0 {
		fmt.Fprint(os.Stderr, stderr.String())
	}

	if runErr != nil {
		return classify(strings.TrimSpace(stderr.String()), runErr)
	}

	return nil
}

// classify maps git's stderr text and exit status to one of the closed
// error kinds (§7). Classification is necessarily heuristic: git does not
// expose a machine-readable failure taxonomy over the CLI.
func classify(stderrText string, cause error) error {
	lower := strings.ToLower(stderrText)

	var exitErr *exec.ExitError
	if stderrText == "" && errors.As(cause, &exitErr) && exitErr.ExitCode() == 1 {
		// rev-parse --verify --quiet and symbolic-ref --quiet report a
		// missing ref by exiting 1 without printing anything.
		return fmt.Errorf("%w: %w", ErrNotFound, cause)
	}

	switch {
	case (strings.Contains(lower, "could not find") || strings.Contains(lower, "couldn't find")) &&
		strings.Contains(lower, "remote ref"):
		return fmt.Errorf("%w: %s", ErrNotFound, stderrText)
	case strings.Contains(lower, "unknown revision"), strings.Contains(lower, "bad revision"),
		strings.Contains(lower, "no such ref"), strings.Contains(lower, "does not exist"):
		return fmt.Errorf("%w: %s", ErrNotFound, stderrText)
	case strings.Contains(lower, "authentication"), strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "could not read username"), strings.Contains(lower, "invalid refspec"),
		strings.Contains(lower, "fatal: bad object") && strings.Contains(lower, "shallow"):
		return fmt.Errorf("%w: %s", ErrFatal, stderrText)
	case strings.Contains(lower, "cannot lock ref"), strings.Contains(lower, "compare-and-swap"),
		strings.Contains(lower, "failed to lock"):
		return fmt.Errorf("%w: %s", ErrConcurrent, stderrText)
	case strings.Contains(lower, "non-fast-forward"), strings.Contains(lower, "fetch first"),
		strings.Contains(lower, "bad object"), strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "connection"), strings.Contains(lower, "timed out"),
		strings.Contains(lower, "the remote end hung up"):
		return fmt.Errorf("%w: %s", ErrTransient, stderrText)
	default:
		return fmt.Errorf("%w: %s: %w", ErrFatal, stderrText, cause)
	}
}

// RevParse resolves ref to a full object id, or ErrNotFound.
func (d *Driver) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := d.run(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// Toplevel returns the absolute path to the repository's working tree root,
// for locating the repo-local config file (§4.4).
func (d *Driver) Toplevel(ctx context.Context) (string, error) {
	out, err := d.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// ZeroOID is the empty old value passed to update-ref to assert a ref must
// not exist.
const ZeroOID = ""

// UpdateRef atomically sets refname to newOID, requiring its current value
// to equal expectedOldOID (ZeroOID meaning "must not exist"). Returns
// ErrConcurrent if the CAS fails.
func (d *Driver) UpdateRef(ctx context.Context, refname, newOID, expectedOldOID string) error {
	args := []string{"update-ref", refname, newOID, expectedOldOID}

	_, err := d.run(ctx, args...)

	return err
}

// DeleteRef removes refname unconditionally.
func (d *Driver) DeleteRef(ctx context.Context, refname string) error {
	_, err := d.run(ctx, "update-ref", "--no-deref", "-d", refname)

	return err
}

// SymbolicRefCreate points the symbolic ref name at target, creating or
// overwriting it.
func (d *Driver) SymbolicRefCreate(ctx context.Context, name, target string) error {
	_, err := d.run(ctx, "symbolic-ref", name, target)

	return err
}

// SymbolicRefResolve returns the ref name a symbolic ref points at (not
// the object it resolves to), or ErrNotFound.
func (d *Driver) SymbolicRefResolve(ctx context.Context, name string) (string, error) {
	out, err := d.run(ctx, "symbolic-ref", "--quiet", name)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// ListRefs lists full ref names matching pattern (a glob passed to
// for-each-ref, e.g. "refs/notes/perf-write-*").
func (d *Driver) ListRefs(ctx context.Context, pattern string) ([]string, error) {
	out, err := d.run(ctx, "for-each-ref", "--format=%(refname)", pattern)
	if err != nil {
		return nil, err
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	return strings.Split(out, "\n"), nil
}
