package collection

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"git.sr.ht/~gioverse/vlist/errs"
	"git.sr.ht/~gioverse/vlist/event"
)

// RangeIter is the finite, not-restartable sequence of loaded items
// LoadRange produces. It is not lazy: LoadRange performs every block load
// before returning it, and Next only steps over the collected items. Call
// Next until ok is false; a non-nil err means the
// underlying block failed and iteration stops there, yielding whatever came
// before it.
type RangeIter[T Identifiable] struct {
	items []T
	err   error
	pos   int
	done  bool
}

// Next advances the iterator. ok is false once the range is exhausted or a
// block failed; check Err() to distinguish the two.
func (it *RangeIter[T]) Next() (item T, ok bool) {
	if it.done || it.pos >= len(it.items) {
		it.done = true
		return item, false
	}
	item = it.items[it.pos]
	it.pos++
	return item, true
}

// Err returns the error that stopped iteration, if any.
func (it *RangeIter[T]) Err() error {
	return it.err
}

// All drains the iterator into a slice, stopping at the first error.
func (it *RangeIter[T]) All() ([]T, error) {
	out := make([]T, 0, len(it.items))
	for {
		item, ok := it.Next()
		if !ok {
			return out, it.Err()
		}
		out = append(out, item)
	}
}

// LoadRange aligns r onto one or more blocks and loads each in turn,
// yielding cached items immediately, awaiting any already in-flight
// request, respecting a block's backoff window, or calling the adapter.
// Blocks are visited start-to-end; a failure on one block stops the
// sequence there without touching later blocks' cached/pending state (a
// subsequent LoadRange call will pick up where this one stopped).
func (c *Collection[T]) LoadRange(ctx context.Context, r Range) *RangeIter[T] {
	it := &RangeIter[T]{}
	if err := c.destroyedErr(); err != nil {
		it.err = err
		it.done = true
		return it
	}
	for _, blockID := range alignedBlocks(r, c.blockSize) {
		block := blockRange(blockID, c.blockSize)
		if _, err := c.loadBlock(ctx, blockID); err != nil {
			it.err = err
			break
		}
		want := clampBlockToRange(block, r, c.totalPtr())
		it.items = append(it.items, c.itemsInRange(want)...)
	}
	return it
}

// LoadRangeUntyped drains LoadRange for side effects only, discarding the
// items themselves. This is the capability loader.Loader uses to dispatch
// a promoted request without needing to know T.
func (c *Collection[T]) LoadRangeUntyped(ctx context.Context, r Range) error {
	_, err := c.LoadRange(ctx, r).All()
	return err
}

func (c *Collection[T]) totalPtr() *int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// loadBlock resolves the current state of a block id and, if necessary,
// performs the adapter call, deduplicating concurrent callers via
// singleflight so at most one adapter call is in flight per block id at
// any time.
func (c *Collection[T]) loadBlock(ctx context.Context, blockID int) ([]T, error) {
	if c.IsLoaded(blockID) {
		return c.cachedBlock(blockID), nil
	}
	if lastErr, attempts, active := c.backoffActive(blockID); active {
		block := blockRange(blockID, c.blockSize)
		return nil, errs.NewAdapterError(block.Start, block.End, attempts, "", lastErr)
	}

	key := strconv.Itoa(blockID)
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.fetchBlock(ctx, blockID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// cachedBlock returns the items already stored for a loaded block, skipping
// any sparse holes a filtering transform left behind.
func (c *Collection[T]) cachedBlock(blockID int) []T {
	block := blockRange(blockID, c.blockSize)
	end := block.End
	if total, ok := c.GetTotal(); ok && end > total-1 {
		end = total - 1
	}
	return c.itemsInRange(Range{Start: block.Start, End: end})
}

// itemsInRange collects whatever is currently stored for each absolute
// index in r, in index order, skipping holes. Indices are never
// reinterpreted as positions in the returned slice — callers must address
// by the index they asked for, not by position.
func (c *Collection[T]) itemsInRange(r Range) []T {
	if r.Len() <= 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, r.Len())
	for idx := r.Start; idx <= r.End; idx++ {
		if item, ok := c.items[idx]; ok {
			out = append(out, item)
		}
	}
	return out
}

// fetchBlock performs the actual adapter.Read call and applies the
// pipeline, block state transitions, and events around it. It runs inside
// a singleflight.Group.Do closure, so at most one goroutine per block id
// executes this at a time.
func (c *Collection[T]) fetchBlock(ctx context.Context, blockID int) ([]T, error) {
	block := blockRange(blockID, c.blockSize)
	c.markPending(blockID)
	defer c.unmarkPending(blockID)
	c.bus.Publish(event.LoadingStart{Start: block.Start, End: block.End})
	defer c.bus.Publish(event.LoadingEnd{Start: block.Start, End: block.End})

	resp, err := c.adapter.Read(ctx, c.buildParams(block))
	if err == nil && resp.Err != nil {
		err = errs.NewAdapterError(block.Start, block.End, 0, resp.Err.Code, simpleError(resp.Err.Message))
	}
	if err != nil {
		entry := c.recordFailure(blockID, err)
		wrapped := errs.NewAdapterError(block.Start, block.End, entry.attempts, "", err)
		c.bus.Publish(event.RangeFailed{Start: block.Start, End: block.End, Err: wrapped, Attempts: entry.attempts})
		c.logger.Error("range load failed",
			zap.Int("block", blockID), zap.Int("start", block.Start), zap.Int("end", block.End),
			zap.Int("attempts", entry.attempts), zap.Error(err))
		return nil, wrapped
	}

	c.setTotalFromMeta(resp.Meta)
	c.storeCursor(block.End+1, resp.Meta.Cursor)
	survivors := c.pipeline.apply(resp.Items)
	c.storeItems(blockID, block, survivors)
	c.bus.Publish(event.RangeLoaded{Start: block.Start, End: block.End, Count: len(survivors)})
	return c.cachedBlock(blockID), nil
}

type simpleError string

func (e simpleError) Error() string { return string(e) }
