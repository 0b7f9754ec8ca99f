package gitdriver_test

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
)

func initRepo(t *testing.T) *gitdriver.Driver {
	t.Helper()

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "--quiet", "-b", "main")
	run("-c", "user.email=test@example.com", "-c", "user.name=test", "commit", "--allow-empty", "-m", "root")

	return gitdriver.New(dir)
}

func TestRevParse_HEAD(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)
	require.Len(t, sha, 40)
}

func TestRevParse_NotFound(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	_, err := d.RevParse(ctx, "refs/heads/does-not-exist")
	require.Error(t, err)
	require.ErrorIs(t, err, gitdriver.ErrNotFound)
}

func TestUpdateRef_CreateThenCAS(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	const ref = "refs/notes/perf-write-test1"

	require.NoError(t, d.UpdateRef(ctx, ref, sha, gitdriver.ZeroOID))

	got, err := d.RevParse(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, sha, got)

	err = d.UpdateRef(ctx, ref, sha, gitdriver.ZeroOID)
	require.Error(t, err)
	require.ErrorIs(t, err, gitdriver.ErrConcurrent)
}

func TestSymbolicRef_CreateAndResolve(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	const (
		sym    = "refs/notes/perf-write"
		target = "refs/notes/perf-write-abc123"
	)

	require.NoError(t, d.SymbolicRefCreate(ctx, sym, target))

	got, err := d.SymbolicRefResolve(ctx, sym)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestDeleteRef(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	const ref = "refs/notes/perf-write-gone"
	require.NoError(t, d.UpdateRef(ctx, ref, sha, gitdriver.ZeroOID))
	require.NoError(t, d.DeleteRef(ctx, ref))

	_, err = d.RevParse(ctx, ref)
	require.ErrorIs(t, err, gitdriver.ErrNotFound)
}

func TestListRefs_Pattern(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	require.NoError(t, d.UpdateRef(ctx, "refs/notes/perf-write-a1", sha, gitdriver.ZeroOID))
	require.NoError(t, d.UpdateRef(ctx, "refs/notes/perf-write-a2", sha, gitdriver.ZeroOID))
	require.NoError(t, d.UpdateRef(ctx, "refs/notes/perf-v3", sha, gitdriver.ZeroOID))

	refs, err := d.ListRefs(ctx, "refs/notes/perf-write-*")
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestNotesAppend_AccumulatesLines(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	const notesRef = "refs/notes/perf-write-notes1"

	require.NoError(t, d.NotesAppend(ctx, notesRef, sha, "1 build_time 100 1.5 os=linux"))
	require.NoError(t, d.NotesAppend(ctx, notesRef, sha, "1 build_time 200 1.7 os=linux"))

	body, err := d.NotesShow(ctx, notesRef, sha)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	require.Len(t, lines, 2)
}

func TestNotesShow_NotFound(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	_, err = d.NotesShow(ctx, "refs/notes/perf-write-empty", sha)
	require.Error(t, err)
	require.ErrorIs(t, err, gitdriver.ErrNotFound)
}

func TestLogWalk_FirstParentOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "--quiet", "-b", "main")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "first")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "second")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "third")

	d := gitdriver.New(dir)
	ctx := context.Background()

	var titles []string
	err := d.LogWalk(ctx, "HEAD", 10, "refs/notes/perf-v3", func(e gitdriver.CommitEntry) bool {
		titles = append(titles, e.Title)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"third", "second", "first"}, titles)
}

func TestLogWalk_StopsEarly(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	count := 0
	err := d.LogWalk(ctx, "HEAD", 10, "refs/notes/perf-v3", func(gitdriver.CommitEntry) bool {
		count++
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNotesSet_OverwritesRatherThanAppends(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	const notesRef = "refs/notes/perf-write-set1"

	require.NoError(t, d.NotesAppend(ctx, notesRef, sha, "1 build_time 100 1.5 os=linux"))
	require.NoError(t, d.NotesSet(ctx, notesRef, sha, "1 build_time 999 1.5 os=linux\n"))

	body, err := d.NotesShow(ctx, notesRef, sha)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	require.Equal(t, []string{"1 build_time 999 1.5 os=linux"}, lines)
}

func TestNotesSet_EmptyBodyRemovesNote(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	const notesRef = "refs/notes/perf-write-set2"

	require.NoError(t, d.NotesAppend(ctx, notesRef, sha, "1 build_time 100 1.5 os=linux"))
	require.NoError(t, d.NotesSet(ctx, notesRef, sha, ""))

	_, err = d.NotesShow(ctx, notesRef, sha)
	require.ErrorIs(t, err, gitdriver.ErrNotFound)
}

func TestToplevel_ReturnsWorkingTreeRoot(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	top, err := d.Toplevel(ctx)
	require.NoError(t, err)
	require.Equal(t, d.Dir, top)
}

func TestLogWalk_UnlimitedWhenMaxCountNotPositive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "--quiet", "-b", "main")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "first")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "second")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "third")

	d := gitdriver.New(dir)
	ctx := context.Background()

	var count int
	err := d.LogWalk(ctx, "HEAD", 0, "refs/notes/perf-v3", func(gitdriver.CommitEntry) bool {
		count++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestFetch_NonexistentRemoteFails(t *testing.T) {
	t.Parallel()

	d := initRepo(t)
	ctx := context.Background()

	err := d.Fetch(ctx, "/nonexistent/remote/path", "refs/heads/main", 50*time.Millisecond)
	require.Error(t, err)
}
