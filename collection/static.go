package collection

import "git.sr.ht/~gioverse/vlist/event"

// This file implements the static-data operations: SetItems, AddItems,
// UpdateItems, RemoveItems, and Clear. These never call the adapter and
// operate on the dense prefix [0, len), marking its blocks loaded (Clear
// drops all block state) — they exist for
// already-fully-loaded, locally-held data, not remotely paged collections,
// which only ever go through LoadRange/Refresh.

// SetItems replaces storage wholesale with items laid out contiguously
// from index 0. Resets block/pending/failed sets and fires ItemsSet.
func (c *Collection[T]) SetItems(items []T) {
	c.mu.Lock()
	c.items = make(map[int]T, len(items))
	c.idToIndex = make(map[string]int, len(items))
	for i, item := range items {
		c.items[i] = item
		c.idToIndex[item.ID()] = i
	}
	c.loaded = make(map[int]bool)
	c.pending = make(map[int]bool)
	c.failed = make(map[int]*failedEntry)
	total := len(items)
	c.total = &total
	c.markDensePrefixLoaded()
	c.mu.Unlock()
	c.bus.Publish(event.ItemsSet{})
}

// markDensePrefixLoaded flags every block touching the current dense
// prefix as loaded, so static-data collections read as fully loaded
// without special-casing every read path. Caller must hold c.mu.
func (c *Collection[T]) markDensePrefixLoaded() {
	if c.total == nil || *c.total == 0 {
		return
	}
	last := blockIDFor(*c.total-1, c.blockSize)
	for id := 0; id <= last; id++ {
		c.loaded[id] = true
	}
}

// orderedDense returns the current dense prefix in index order. Caller
// must hold c.mu (read or write).
func (c *Collection[T]) orderedDense() []T {
	if c.total == nil {
		return nil
	}
	out := make([]T, 0, *c.total)
	for i := 0; i < *c.total; i++ {
		if item, ok := c.items[i]; ok {
			out = append(out, item)
		}
	}
	return out
}

// AddItems appends items to the end of the dense prefix, or prepends them
// at the start (shifting existing indices up).
func (c *Collection[T]) AddItems(items []T, atStart bool) {
	c.mu.Lock()
	dense := c.orderedDense()
	if atStart {
		dense = append(append([]T{}, items...), dense...)
	} else {
		dense = append(dense, items...)
	}
	c.rebuildDense(dense)
	c.mu.Unlock()
	c.bus.Publish(event.ItemsSet{})
}

// UpdateItems replaces existing items matched by id, leaving the dense
// ordering and any unmatched ids untouched.
func (c *Collection[T]) UpdateItems(partials []T) {
	c.mu.Lock()
	for _, p := range partials {
		if idx, ok := c.idToIndex[p.ID()]; ok {
			c.items[idx] = p
		}
	}
	c.mu.Unlock()
	c.bus.Publish(event.ItemsSet{})
}

// RemoveItems deletes items matched by id from the dense prefix,
// compacting indices so the prefix stays contiguous.
func (c *Collection[T]) RemoveItems(ids []string) {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	c.mu.Lock()
	dense := c.orderedDense()
	kept := dense[:0:0]
	for _, item := range dense {
		if !remove[item.ID()] {
			kept = append(kept, item)
		}
	}
	c.rebuildDense(kept)
	c.mu.Unlock()
	c.bus.Publish(event.ItemsSet{})
}

// Clear empties the collection entirely.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	c.items = make(map[int]T)
	c.idToIndex = make(map[string]int)
	c.loaded = make(map[int]bool)
	c.pending = make(map[int]bool)
	c.failed = make(map[int]*failedEntry)
	c.cursors = make(map[int]string)
	c.total = nil
	c.mu.Unlock()
	c.bus.Publish(event.ItemsSet{})
}

// rebuildDense replaces storage with the given ordered slice as the new
// dense prefix. Caller must hold c.mu for writing.
func (c *Collection[T]) rebuildDense(dense []T) {
	c.items = make(map[int]T, len(dense))
	c.idToIndex = make(map[string]int, len(dense))
	for i, item := range dense {
		c.items[i] = item
		c.idToIndex[item.ID()] = i
	}
	c.loaded = make(map[int]bool)
	total := len(dense)
	c.total = &total
	c.markDensePrefixLoaded()
}
