package commands_test

import (
	"io"
	"log/slog"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaihowl/gitperf/cmd/gitperf/commands"
)

func testDeps() commands.Deps {
	return commands.Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// initRepo creates a repo at a fresh temp dir, chdirs the test into it (so
// openEnv's os.Getwd()-based resolution finds it), and returns its path.
func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "--quiet", "-b", "main")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "root")

	t.Chdir(dir)

	return dir
}

func headSHA(t *testing.T, dir string) string {
	t.Helper()

	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir

	out, err := cmd.Output()
	require.NoError(t, err)

	return string(out[:40])
}

func listRefs(t *testing.T, dir, pattern string) []string {
	t.Helper()

	cmd := exec.Command("git", "for-each-ref", "--format=%(refname)", pattern)
	cmd.Dir = dir

	out, err := cmd.Output()
	require.NoError(t, err)

	if len(out) == 0 {
		return nil
	}

	var refs []string
	for _, line := range splitLines(string(out)) {
		if line != "" {
			refs = append(refs, line)
		}
	}

	return refs
}

func splitLines(s string) []string {
	var lines []string

	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}

	if start < len(s) {
		lines = append(lines, s[start:])
	}

	return lines
}
