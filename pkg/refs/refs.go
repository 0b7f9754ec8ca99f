// Package refs implements the write-ref/symbolic-ref/read-ref protocol that
// lets concurrent processes append measurements without a shared lock,
// using git's atomic ref compare-and-swap as the only synchronization
// primitive (§4.3).
package refs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaihowl/gitperf/pkg/gitdriver"
)

// ReadRef is the canonical, consolidated ref every reader walks.
const ReadRef = "refs/notes/perf-v3"

// SymbolicWriteRef is the symbolic ref each process resolves once at
// startup to discover (or create) its own write-ref.
const SymbolicWriteRef = "refs/notes/perf-write"

// writeRefPrefix namespaces every process-owned write-ref.
const writeRefPrefix = "refs/notes/perf-write-"

// readRefTmpPrefix namespaces ephemeral merge refs materialized during
// Push and during read-side consolidation.
const readRefTmpPrefix = "refs/notes/perf-read-"

// Protocol wraps a gitdriver.Driver with the write-ref/read-ref operations.
type Protocol struct {
	driver     *gitdriver.Driver
	maxElapsed time.Duration
}

// New returns a Protocol over driver, retrying ref races under maxElapsed.
func New(driver *gitdriver.Driver, maxElapsed time.Duration) *Protocol {
	return &Protocol{driver: driver, maxElapsed: maxElapsed}
}

// OwnWriteRef resolves this process's write-ref, creating a fresh one (and
// pointing SymbolicWriteRef at it) if none exists yet. The ref is private
// to this process for its whole lifetime: a fresh UUID suffix makes
// collisions with any other process's write-ref unreachable in practice.
func (p *Protocol) OwnWriteRef(ctx context.Context) (string, error) {
	existing, err := p.driver.SymbolicRefResolve(ctx, SymbolicWriteRef)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, gitdriver.ErrNotFound) {
		return "", fmt.Errorf("resolve write-ref symlink: %w", err)
	}

	ref := writeRefPrefix + uuid.NewString()
	if err := p.driver.SymbolicRefCreate(ctx, SymbolicWriteRef, ref); err != nil {
		return "", fmt.Errorf("create write-ref symlink: %w", err)
	}

	return ref, nil
}

// AppendMeasurement appends line to commit's note under this process's
// write-ref, creating the write-ref's first note if needed. NotesAppend is
// itself a read-modify-write CAS over the write-ref's notes tree, so it
// retries under the same backoff as Fetch/Push (§4.3 step 3, §4.10 step 5).
func (p *Protocol) AppendMeasurement(ctx context.Context, commit, line string) error {
	ref, err := p.OwnWriteRef(ctx)
	if err != nil {
		return err
	}

	return gitdriver.Retry(ctx, p.maxElapsed, func() error {
		return p.driver.NotesAppend(ctx, ref, commit, line)
	})
}

// consolidate materializes a temp ref at base (or an empty tree if base
// doesn't exist) and merges every write-ref plus extra into it with
// cat_sort_uniq, returning the temp ref name. The caller must delete it.
func (p *Protocol) consolidate(ctx context.Context, base string, extra ...string) (string, error) {
	tmp := readRefTmpPrefix + uuid.NewString()

	baseOID, err := p.driver.RevParse(ctx, base)
	if errors.Is(err, gitdriver.ErrNotFound) {
		baseOID = ""
	} else if err != nil {
		return "", fmt.Errorf("resolve %s: %w", base, err)
	}

	if baseOID != "" {
		if err := p.driver.UpdateRef(ctx, tmp, baseOID, gitdriver.ZeroOID); err != nil {
			return "", fmt.Errorf("seed consolidation ref: %w", err)
		}
	}

	writeRefs, err := p.driver.ListRefs(ctx, writeRefPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("list write-refs: %w", err)
	}

	sources := append(append([]string(nil), writeRefs...), extra...)

	for _, src := range sources {
		if baseOID == "" {
			oid, err := p.driver.RevParse(ctx, src)
			if errors.Is(err, gitdriver.ErrNotFound) {
				continue
			}
			if err != nil {
				return "", fmt.Errorf("resolve %s: %w", src, err)
			}

			if err := p.driver.UpdateRef(ctx, tmp, oid, gitdriver.ZeroOID); err != nil {
				return "", fmt.Errorf("seed consolidation ref from %s: %w", src, err)
			}

			baseOID = oid

			continue
		}

		if err := p.driver.NotesMerge(ctx, tmp, src); err != nil {
			_ = p.driver.DeleteRef(ctx, tmp)

			return "", fmt.Errorf("merge %s into consolidation ref: %w", src, err)
		}
	}

	return tmp, nil
}

// Sync materializes ReadRef locally as the union of all local write-refs
// merged into whatever ReadRef already held, deleting the temp ref on
// every exit path (success, error, or panic) so no stray perf-read-*
// ref survives a crash mid-merge.
func (p *Protocol) Sync(ctx context.Context) (err error) {
	tmp, err := p.consolidate(ctx, ReadRef)
	if err != nil {
		return err
	}

	defer func() {
		if delErr := p.driver.DeleteRef(ctx, tmp); delErr != nil && err == nil {
			err = fmt.Errorf("cleanup consolidation ref: %w", delErr)
		}
	}()

	oid, rpErr := p.driver.RevParse(ctx, tmp)
	if rpErr != nil {
		return fmt.Errorf("resolve consolidation ref: %w", rpErr)
	}

	old, oldErr := p.driver.RevParse(ctx, ReadRef)
	if errors.Is(oldErr, gitdriver.ErrNotFound) {
		old = gitdriver.ZeroOID
	} else if oldErr != nil {
		return fmt.Errorf("resolve %s: %w", ReadRef, oldErr)
	}

	if err := p.driver.UpdateRef(ctx, ReadRef, oid, old); err != nil {
		return fmt.Errorf("advance %s: %w", ReadRef, err)
	}

	return nil
}

// Push publishes all local write-refs to remote's ReadRef: it merges them
// into a temp ref seeded from the remote's current ReadRef and pushes the
// result. A non-fast-forward rejection means a competing writer landed
// first, so the whole fetch-merge-push cycle (not just the push) retries
// under backoff until it lands or p.maxElapsed is exhausted (§4.3 step 4).
// On success it points the local ReadRef at the pushed result, then deletes
// the local write-refs and the symbolic write-ref, so the next
// AppendMeasurement starts a fresh one.
func (p *Protocol) Push(ctx context.Context, remote string) error {
	remoteReadLocal := readRefTmpPrefix + "remote-base"

	return gitdriver.Retry(ctx, p.maxElapsed, func() error {
		fetchErr := p.driver.Fetch(ctx, remote, ReadRef+":"+remoteReadLocal, p.maxElapsed)
		if fetchErr != nil && !errors.Is(fetchErr, gitdriver.ErrNotFound) {
			return fmt.Errorf("fetch remote read ref: %w", fetchErr)
		}

		tmp, consErr := p.consolidate(ctx, remoteReadLocal)

		_ = p.driver.DeleteRef(ctx, remoteReadLocal)

		if consErr != nil {
			return consErr
		}

		pushed, rpErr := p.driver.RevParse(ctx, tmp)
		pushErr := p.driver.Push(ctx, remote, tmp+":"+ReadRef)

		_ = p.driver.DeleteRef(ctx, tmp)

		if err := errors.Join(rpErr, pushErr); err != nil {
			return fmt.Errorf("push %s: %w", ReadRef, err)
		}

		old, oldErr := p.driver.RevParse(ctx, ReadRef)
		if oldErr != nil && !errors.Is(oldErr, gitdriver.ErrNotFound) {
			return fmt.Errorf("resolve %s: %w", ReadRef, oldErr)
		}

		if err := p.driver.UpdateRef(ctx, ReadRef, pushed, old); err != nil {
			return fmt.Errorf("advance %s: %w", ReadRef, err)
		}

		return p.cleanupWriteRefs(ctx)
	})
}

// cleanupWriteRefs deletes every local write-ref and the symbolic ref
// pointing at them, run once a push has landed successfully.
func (p *Protocol) cleanupWriteRefs(ctx context.Context) error {
	writeRefs, err := p.driver.ListRefs(ctx, writeRefPrefix+"*")
	if err != nil {
		return fmt.Errorf("list write-refs for cleanup: %w", err)
	}

	for _, ref := range writeRefs {
		if err := p.driver.DeleteRef(ctx, ref); err != nil {
			return fmt.Errorf("delete write-ref %s: %w", ref, err)
		}
	}

	return p.driver.DeleteRef(ctx, SymbolicWriteRef)
}

// Pull fast-forwards (or force-updates, mirroring the remote exactly) the
// local ReadRef from remote's ReadRef.
func (p *Protocol) Pull(ctx context.Context, remote string) error {
	return p.driver.Fetch(ctx, remote, "+"+ReadRef+":"+ReadRef, p.maxElapsed)
}

// ReadSnapshot materializes a disposable consolidated ref combining the
// local ReadRef with every pending local write-ref, passes its name to fn,
// and deletes it on every exit path. This is the ref a single read
// operation (audit, report, list-commits, size) walks, so in-flight local
// adds are visible before they are ever pushed (§4.3 "Read").
func (p *Protocol) ReadSnapshot(ctx context.Context, fn func(snapshotRef string) error) (err error) {
	tmp, err := p.consolidate(ctx, ReadRef)
	if err != nil {
		return err
	}

	defer func() {
		if delErr := p.driver.DeleteRef(ctx, tmp); delErr != nil && err == nil {
			err = fmt.Errorf("cleanup read snapshot: %w", delErr)
		}
	}()

	return fn(tmp)
}

// ListWriteRefs returns every local per-process write-ref currently
// pending consolidation, for the status command (§ thin CLI wrappers).
func (p *Protocol) ListWriteRefs(ctx context.Context) ([]string, error) {
	refs, err := p.driver.ListRefs(ctx, writeRefPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list write-refs: %w", err)
	}

	return refs, nil
}

// Reset deletes the local ReadRef, every local write-ref, and the symbolic
// write-ref, discarding all measurements that have not been pushed to a
// remote. It never touches a remote.
func (p *Protocol) Reset(ctx context.Context) error {
	if err := p.cleanupWriteRefs(ctx); err != nil && !errors.Is(err, gitdriver.ErrNotFound) {
		return err
	}

	if err := p.driver.DeleteRef(ctx, ReadRef); err != nil && !errors.Is(err, gitdriver.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", ReadRef, err)
	}

	return nil
}

// RemoveMeasurements rewrites ReadRef so that, on every first-parent commit
// reachable from HEAD, only the note lines that keep retains survive,
// CAS-updating ReadRef to the rewritten tree. keep is given the raw note
// lines for a commit and returns the lines to retain.
func (p *Protocol) RemoveMeasurements(ctx context.Context, keep func(lines []string) []string) error {
	old, err := p.driver.RevParse(ctx, ReadRef)
	if errors.Is(err, gitdriver.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("resolve %s: %w", ReadRef, err)
	}

	tmp := readRefTmpPrefix + uuid.NewString()
	if err := p.driver.UpdateRef(ctx, tmp, old, gitdriver.ZeroOID); err != nil {
		return fmt.Errorf("seed rewrite ref: %w", err)
	}

	defer func() { _ = p.driver.DeleteRef(ctx, tmp) }()

	rewriteErr := p.driver.LogWalk(ctx, "HEAD", 0, tmp, func(entry gitdriver.CommitEntry) bool {
		if entry.NoteLines == "" {
			return true
		}

		lines := strings.Split(strings.TrimRight(entry.NoteLines, "\n"), "\n")

		kept := keep(lines)
		if len(kept) == len(lines) {
			return true
		}

		body := strings.Join(kept, "\n")
		if body != "" {
			body += "\n"
		}

		if setErr := p.driver.NotesSet(ctx, tmp, entry.SHA, body); setErr != nil {
			err = setErr

			return false
		}

		return true
	})
	if rewriteErr != nil {
		return fmt.Errorf("walk commits for rewrite: %w", rewriteErr)
	}

	if err != nil {
		return fmt.Errorf("rewrite note: %w", err)
	}

	newOID, err := p.driver.RevParse(ctx, tmp)
	if err != nil {
		return fmt.Errorf("resolve rewritten tree: %w", err)
	}

	if err := p.driver.UpdateRef(ctx, ReadRef, newOID, old); err != nil {
		return fmt.Errorf("advance %s: %w", ReadRef, err)
	}

	return nil
}
