package gitdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry runs op under exponential backoff with jitter, giving up once
// maxElapsed has passed or op returns ErrFatal or ErrNotFound. Transient and
// concurrent failures are retried; fatal and not-found failures are returned
// immediately (§4.2,
// §7: "retries the entire operation... capped at max_elapsed_seconds").
// op should wrap everything a retry attempt needs to redo, not just the
// final step: a caller that only retries its last subprocess call on top
// of stale state from an earlier one (e.g. a push built from a merge that
// predates a competing write) will keep retrying a doomed attempt.
func Retry(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	wrapped := func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}

		if errors.Is(err, ErrFatal) || errors.Is(err, ErrNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}

		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
	)

	return err
}

// Fetch fetches refspec from remote, retrying transient/concurrent
// failures under maxElapsed.
func (d *Driver) Fetch(ctx context.Context, remote, refspec string, maxElapsed time.Duration) error {
	err := Retry(ctx, maxElapsed, func() error {
		_, err := d.run(ctx, "fetch", remote, refspec)

		return err
	})
	if err != nil {
		return fmt.Errorf("fetch %s %s: %w", remote, refspec, err)
	}

	return nil
}

// Push pushes refspec to remote once. A non-fast-forward rejection means
// the remote moved since refspec's source was built, so retrying this exact
// push can never succeed on its own: only a fresh fetch and re-merge can
// produce a refspec worth pushing again. Push therefore makes a single
// attempt; the caller's merge-and-retry loop owns retrying the whole
// fetch-merge-push cycle under backoff (§4.3 step 4).
func (d *Driver) Push(ctx context.Context, remote, refspec string) error {
	_, err := d.run(ctx, "push", remote, refspec)
	if err != nil {
		return fmt.Errorf("push %s %s: %w", remote, refspec, err)
	}

	return nil
}
