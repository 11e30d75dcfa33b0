package collection

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// failedEntry records a block's failure history: the error, the attempt
// count, and when it was last attempted. The backoff window for the n-th
// consecutive failure is min(base*2^(n-1), cap); rather than hand-rolling
// that arithmetic, each entry owns a cenkalti/backoff/v4 ExponentialBackOff
// configured with zero jitter so its deterministic doubling sequence
// matches that formula exactly.
type failedEntry struct {
	err         error
	attempts    int
	lastAttempt time.Time
	nextRetryAt time.Time
	backoff     *backoff.ExponentialBackOff
}

// newBackoff constructs the deterministic exponential backoff policy used
// for every block: no jitter, doubling multiplier, clamped to cap, never
// gives up on its own (the Collection decides when to stop retrying).
func newBackoff(base, cap time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = cap
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// recordFailure advances (or creates) the failure entry for a block,
// computing the next permitted retry time.
func (c *Collection[T]) recordFailure(blockID int, err error) *failedEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.failed[blockID]
	if !ok {
		entry = &failedEntry{backoff: newBackoff(c.backoffBase, c.backoffCap)}
		c.failed[blockID] = entry
	}
	now := c.now()
	entry.err = err
	entry.attempts++
	entry.lastAttempt = now
	entry.nextRetryAt = now.Add(entry.backoff.NextBackOff())
	return entry
}

// backoffActive reports whether a block's retry window has not yet
// elapsed, returning a snapshot of the failure's error and attempt count.
func (c *Collection[T]) backoffActive(blockID int) (lastErr error, attempts int, active bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.failed[blockID]
	if !ok {
		return nil, 0, false
	}
	return entry.err, entry.attempts, c.now().Before(entry.nextRetryAt)
}

// clearFailure removes a block's failure record, bypassing its backoff
// window (used by RetryFailed).
func (c *Collection[T]) clearFailure(blockID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failed, blockID)
}

func (c *Collection[T]) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now()
}
