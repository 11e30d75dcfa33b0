// Package collection implements item storage indexed by absolute
// position, range-block load tracking, adapter-backed fetching with
// duplicate suppression and exponential backoff, and the
// normalize/transform/validate pipeline.
package collection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"git.sr.ht/~gioverse/vlist/errs"
	"git.sr.ht/~gioverse/vlist/event"
)

// DefaultBlockSize is the default page_size / block size B.
const DefaultBlockSize = 20

// DefaultBackoffBase and DefaultBackoffCap are the defaults for the
// per-block retry backoff.
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 30 * time.Second
)

// Collection holds item storage and all block bookkeeping for one paged
// sequence. It exclusively owns this state: Viewport and Loader only
// ever call its exported methods.
type Collection[T Identifiable] struct {
	mu sync.RWMutex

	items     map[int]T
	idToIndex map[string]int
	total     *int

	blockSize int
	strategy  Strategy

	loaded  map[int]bool
	pending map[int]bool
	failed  map[int]*failedEntry
	cursors map[int]string // cursor needed to fetch the block starting at a given index

	backoffBase, backoffCap time.Duration

	adapter  Adapter[T]
	pipeline Pipeline[T]
	bus      *event.Bus
	logger   *zap.Logger
	sf       singleflight.Group

	clock func() time.Time // overridable for tests

	destroyed bool
}

// Option configures a Collection at construction.
type Option[T Identifiable] func(*Collection[T])

// WithBlockSize sets B, the page_size/block size (default 20).
func WithBlockSize[T Identifiable](size int) Option[T] {
	return func(c *Collection[T]) { c.blockSize = size }
}

// WithStrategy selects the pagination scheme.
func WithStrategy[T Identifiable](s Strategy) Option[T] {
	return func(c *Collection[T]) { c.strategy = s }
}

// WithPipeline installs the normalize/transform/validate hooks.
func WithPipeline[T Identifiable](p Pipeline[T]) Option[T] {
	return func(c *Collection[T]) { c.pipeline = p }
}

// WithBackoff overrides the default backoff base/cap.
func WithBackoff[T Identifiable](base, cap time.Duration) Option[T] {
	return func(c *Collection[T]) { c.backoffBase, c.backoffCap = base, cap }
}

// WithBus attaches the shared event bus.
func WithBus[T Identifiable](b *event.Bus) Option[T] {
	return func(c *Collection[T]) { c.bus = b }
}

// WithLogger attaches a structured logger; defaults to zap.NewNop().
func WithLogger[T Identifiable](l *zap.Logger) Option[T] {
	return func(c *Collection[T]) { c.logger = l }
}

// withClock overrides time.Now for deterministic backoff tests.
func withClock[T Identifiable](clock func() time.Time) Option[T] {
	return func(c *Collection[T]) { c.clock = clock }
}

// New constructs a Collection backed by adapter.
func New[T Identifiable](adapter Adapter[T], opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{
		items:       make(map[int]T),
		idToIndex:   make(map[string]int),
		loaded:      make(map[int]bool),
		pending:     make(map[int]bool),
		failed:      make(map[int]*failedEntry),
		cursors:     make(map[int]string),
		blockSize:   DefaultBlockSize,
		backoffBase: DefaultBackoffBase,
		backoffCap:  DefaultBackoffCap,
		adapter:     adapter,
		bus:         event.New(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a callback on the collection's event bus.
func (c *Collection[T]) Subscribe(sub event.Subscriber) (unsubscribe func()) {
	return c.bus.Subscribe(sub)
}

// BlockSize returns B, the configured block size.
func (c *Collection[T]) BlockSize() int {
	return c.blockSize
}

// GetItem performs an O(1) lookup; returns ok=false for unloaded or
// out-of-bounds indices.
func (c *Collection[T]) GetItem(index int) (item T, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok = c.items[index]
	return item, ok
}

// GetItemByID resolves id against loaded items.
func (c *Collection[T]) GetItemByID(id string) (item T, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.idToIndex[id]
	if !ok {
		return item, false
	}
	item, ok = c.items[idx]
	return item, ok
}

// IndexOf resolves id to its current absolute index, if loaded. This is
// the narrow capability viewport.Viewport uses to implement ScrollToItem
// without holding a back-reference to the full Collection.
func (c *Collection[T]) IndexOf(id string) (index int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index, ok = c.idToIndex[id]
	return index, ok
}

// GetTotal returns the known total, if any.
func (c *Collection[T]) GetTotal() (total int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.total == nil {
		return 0, false
	}
	return *c.total, true
}

// HasMore reports whether more data remains to be loaded: total is
// unknown, or the loaded blocks do not yet cover [0, total-1].
func (c *Collection[T]) HasMore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.total == nil {
		return true
	}
	if *c.total == 0 {
		return false
	}
	lastBlock := blockIDFor(*c.total-1, c.blockSize)
	for id := 0; id <= lastBlock; id++ {
		if !c.loaded[id] {
			return true
		}
	}
	return false
}

// destroyedErr returns errs.ErrDestroyed if the collection has been torn
// down.
func (c *Collection[T]) destroyedErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.destroyed {
		return errs.ErrDestroyed
	}
	return nil
}

// Destroy marks the collection destroyed; LoadRange and RetryFailed then
// return errs.ErrDestroyed. The Collection is destroyed last in the three
// components' reverse-order teardown (Viewport -> Loader -> Collection),
// since it is the innermost dependency.
func (c *Collection[T]) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

// setTotalFromMeta updates total from adapter response metadata. Per spec
// Total only grows unless refresh resets it.
func (c *Collection[T]) setTotalFromMeta(m Meta) {
	if m.Total == nil {
		return
	}
	t := int(*m.Total)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total == nil || t > *c.total {
		c.total = &t
	}
}

func (c *Collection[T]) storeCursor(blockStart int, cursor *string) {
	if cursor == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[blockStart] = *cursor
}

// storeItems places the pipeline-processed items at their absolute indices
// — block.Start plus each survivor's original offset, so an item a
// Transform/Validate hook dropped leaves a hole rather than shifting later
// items down — and marks the block loaded.
func (c *Collection[T]) storeItems(blockID int, block Range, items []indexedItem[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range items {
		idx := block.Start + entry.offset
		c.items[idx] = entry.item
		c.idToIndex[entry.item.ID()] = idx
	}
	c.loaded[blockID] = true
	delete(c.failed, blockID)
}

func (c *Collection[T]) markPending(blockID int) {
	c.mu.Lock()
	c.pending[blockID] = true
	c.mu.Unlock()
}

func (c *Collection[T]) unmarkPending(blockID int) {
	c.mu.Lock()
	delete(c.pending, blockID)
	c.mu.Unlock()
}

// IsLoaded reports whether the block with id blockID is loaded.
func (c *Collection[T]) IsLoaded(blockID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded[blockID]
}

// IsPending reports whether the block has an in-flight adapter call.
func (c *Collection[T]) IsPending(blockID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending[blockID]
}

// RetryFailed clears the failure entry for a block and re-enters
// load_range for it, bypassing the backoff window.
func (c *Collection[T]) RetryFailed(ctx context.Context, blockID int) ([]T, error) {
	if err := c.destroyedErr(); err != nil {
		return nil, err
	}
	c.clearFailure(blockID)
	return c.loadBlock(ctx, blockID)
}

// Refresh clears all block state and items; the next LoadRange hits the
// adapter for every block.
func (c *Collection[T]) Refresh() {
	c.mu.Lock()
	c.items = make(map[int]T)
	c.idToIndex = make(map[string]int)
	c.loaded = make(map[int]bool)
	c.pending = make(map[int]bool)
	c.failed = make(map[int]*failedEntry)
	c.cursors = make(map[int]string)
	c.total = nil
	c.mu.Unlock()
}
