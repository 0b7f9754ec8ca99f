package refs_test

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
	"github.com/kaihowl/gitperf/pkg/refs"
)

func initRepo(t *testing.T, dir string) *gitdriver.Driver {
	t.Helper()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "--quiet", "-b", "main")
	run("-c", "user.email=t@e.com", "-c", "user.name=t", "commit", "--allow-empty", "-m", "root")

	return gitdriver.New(dir)
}

func TestOwnWriteRef_CreatesAndPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	first, err := p.OwnWriteRef(ctx)
	require.NoError(t, err)
	require.Contains(t, first, "refs/notes/perf-write-")

	second, err := p.OwnWriteRef(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAppendMeasurement_ThenSync(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 build_time 100 1.5 os=linux"))
	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 build_time 200 1.7 os=linux"))

	require.NoError(t, p.Sync(ctx))

	body, err := d.NotesShow(ctx, refs.ReadRef, sha)
	require.NoError(t, err)
	require.Contains(t, body, "build_time 100")
	require.Contains(t, body, "build_time 200")

	tmpRefs, err := d.ListRefs(ctx, "refs/notes/perf-read-*")
	require.NoError(t, err)
	require.Empty(t, tmpRefs, "consolidation temp ref must not survive a successful Sync")
}

func TestPush_PublishesAndCleansUpWriteRefs(t *testing.T) {
	t.Parallel()

	remoteDir := t.TempDir()
	cmd := exec.Command("git", "init", "--quiet", "--bare", "-b", "main")
	cmd.Dir = remoteDir
	require.NoError(t, cmd.Run())

	localDir := t.TempDir()
	cloneCmd := exec.Command("git", "clone", "--quiet", remoteDir, localDir)
	require.NoError(t, cloneCmd.Run())

	local := gitdriver.New(localDir)
	ctx := context.Background()

	commitCmd := exec.Command("git", "-c", "user.email=t@e.com", "-c", "user.name=t",
		"commit", "--allow-empty", "-m", "root")
	commitCmd.Dir = localDir
	require.NoError(t, commitCmd.Run())

	pushHead := exec.Command("git", "push", "--quiet", "origin", "main")
	pushHead.Dir = localDir
	require.NoError(t, pushHead.Run())

	sha, err := local.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	p := refs.New(local, 5*time.Second)
	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 build_time 100 1.5 os=linux"))

	require.NoError(t, p.Push(ctx, "origin"))

	writeRefs, err := local.ListRefs(ctx, "refs/notes/perf-write-*")
	require.NoError(t, err)
	require.Empty(t, writeRefs)

	_, err = local.SymbolicRefResolve(ctx, refs.SymbolicWriteRef)
	require.ErrorIs(t, err, gitdriver.ErrNotFound)
}

func TestReadSnapshot_SeesPendingLocalWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 build_time 100 1.5 os=linux"))

	var seenBody string

	err = p.ReadSnapshot(ctx, func(snapshotRef string) error {
		body, showErr := d.NotesShow(ctx, snapshotRef, sha)
		seenBody = body

		return showErr
	})
	require.NoError(t, err)
	require.Contains(t, seenBody, "build_time 100")

	tmpRefs, err := d.ListRefs(ctx, "refs/notes/perf-read-*")
	require.NoError(t, err)
	require.Empty(t, tmpRefs, "ReadSnapshot's temp ref must not survive scope exit")

	_, err = d.RevParse(ctx, refs.ReadRef)
	require.ErrorIs(t, err, gitdriver.ErrNotFound, "ReadSnapshot must not persist into the canonical read ref")
}

func TestListWriteRefs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	empty, err := p.ListWriteRefs(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 build_time 100 1.5 os=linux"))

	writeRefs, err := p.ListWriteRefs(ctx)
	require.NoError(t, err)
	require.Len(t, writeRefs, 1)
}

func TestReset_DiscardsLocalState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 build_time 100 1.5 os=linux"))
	require.NoError(t, p.Sync(ctx))

	require.NoError(t, p.Reset(ctx))

	_, err = d.RevParse(ctx, refs.ReadRef)
	require.ErrorIs(t, err, gitdriver.ErrNotFound)

	writeRefs, err := p.ListWriteRefs(ctx)
	require.NoError(t, err)
	require.Empty(t, writeRefs)
}

func TestReset_NoopOnFreshRepo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, p.Reset(ctx))
}

func TestRemoveMeasurements_DropsMatchingLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	sha, err := d.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 build_time 100 1.5 os=linux"))
	require.NoError(t, p.AppendMeasurement(ctx, sha, "1 test_time 50 1.5 os=linux"))
	require.NoError(t, p.Sync(ctx))

	keep := func(lines []string) []string {
		out := make([]string, 0, len(lines))

		for _, line := range lines {
			if strings.Contains(line, "build_time") {
				continue
			}

			out = append(out, line)
		}

		return out
	}

	require.NoError(t, p.RemoveMeasurements(ctx, keep))

	body, err := d.NotesShow(ctx, refs.ReadRef, sha)
	require.NoError(t, err)
	require.NotContains(t, body, "build_time")
	require.Contains(t, body, "test_time")
}

func TestRemoveMeasurements_NoopWhenReadRefMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := initRepo(t, dir)
	p := refs.New(d, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, p.RemoveMeasurements(ctx, func(lines []string) []string { return lines }))
}

func TestPull_FastForwardsLocalReadRef(t *testing.T) {
	t.Parallel()

	remoteDir := t.TempDir()
	cmd := exec.Command("git", "init", "--quiet", "--bare", "-b", "main")
	cmd.Dir = remoteDir
	require.NoError(t, cmd.Run())

	writerDir := t.TempDir()
	cloneCmd := exec.Command("git", "clone", "--quiet", remoteDir, writerDir)
	require.NoError(t, cloneCmd.Run())

	writer := gitdriver.New(writerDir)
	ctx := context.Background()

	commitCmd := exec.Command("git", "-c", "user.email=t@e.com", "-c", "user.name=t",
		"commit", "--allow-empty", "-m", "root")
	commitCmd.Dir = writerDir
	require.NoError(t, commitCmd.Run())

	pushHead := exec.Command("git", "push", "--quiet", "origin", "main")
	pushHead.Dir = writerDir
	require.NoError(t, pushHead.Run())

	sha, err := writer.RevParse(ctx, "HEAD")
	require.NoError(t, err)

	wp := refs.New(writer, 5*time.Second)
	require.NoError(t, wp.AppendMeasurement(ctx, sha, "1 build_time 100 1.5 os=linux"))
	require.NoError(t, wp.Push(ctx, "origin"))

	readerDir := t.TempDir()
	cloneReader := exec.Command("git", "clone", "--quiet", remoteDir, readerDir)
	require.NoError(t, cloneReader.Run())

	reader := gitdriver.New(readerDir)
	rp := refs.New(reader, 5*time.Second)
	require.NoError(t, rp.Pull(ctx, "origin"))

	body, err := reader.NotesShow(ctx, refs.ReadRef, sha)
	require.NoError(t, err)
	require.Contains(t, body, "build_time 100")
}
