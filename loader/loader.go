// Package loader implements the velocity-aware scheduler that queues and
// admits range-load requests from Viewport to Collection, coalescing,
// deferring, or dropping work based on current scroll velocity, and
// enforcing a concurrency cap.
package loader

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"git.sr.ht/~gioverse/vlist/collection"
	"git.sr.ht/~gioverse/vlist/event"
)

// Priority distinguishes a range that intersects the strictly visible
// window (High) from one only needed for overscan padding (Normal).
type Priority int

const (
	Normal Priority = iota
	High
)

// DefaultMaxConcurrent, DefaultQueueCapacity, and DefaultCancelThreshold
// are the loader's defaults.
const (
	DefaultMaxConcurrent    = 1
	DefaultQueueCapacity    = 50
	DefaultCancelThreshold  = 1.0 // px/ms
)

// Loadable is the narrow capability the Loader uses to actually fetch a
// range; collection.Collection satisfies it for any item type.
type Loadable interface {
	LoadRangeUntyped(ctx context.Context, r collection.Range) error
}

type queueEntry struct {
	id       int
	r        collection.Range
	priority Priority
}

// Loader is the velocity-aware scheduler.
type Loader struct {
	mu sync.Mutex

	maxConcurrent   int
	queueCapacity   int
	cancelThreshold float64

	active map[int]collection.Range
	queue  []queueEntry

	blockSize int

	velocity  float64
	direction event.Direction

	cancelledCount int
	droppedCount   int

	collection Loadable
	bus        *event.Bus
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Loader at construction.
type Option func(*Loader)

func WithMaxConcurrent(n int) Option    { return func(l *Loader) { l.maxConcurrent = n } }
func WithQueueCapacity(n int) Option    { return func(l *Loader) { l.queueCapacity = n } }
func WithCancelThreshold(v float64) Option {
	return func(l *Loader) { l.cancelThreshold = v }
}
func WithBus(b *event.Bus) Option    { return func(l *Loader) { l.bus = b } }
func WithLogger(lg *zap.Logger) Option { return func(l *Loader) { l.logger = lg } }

// New constructs a Loader bound to a collection's block-size granularity
// and its load capability.
func New(blockSize int, col Loadable, opts ...Option) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		maxConcurrent:   DefaultMaxConcurrent,
		queueCapacity:   DefaultQueueCapacity,
		cancelThreshold: DefaultCancelThreshold,
		active:          make(map[int]collection.Range),
		blockSize:       blockSize,
		collection:      col,
		bus:             event.New(),
		logger:          zap.NewNop(),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers a callback on the loader's event bus.
func (l *Loader) Subscribe(sub event.Subscriber) (unsubscribe func()) {
	return l.bus.Subscribe(sub)
}

// Destroy cancels all pending work. The Loader is destroyed after the
// Viewport and before the Collection.
func (l *Loader) Destroy() {
	l.cancel()
	l.mu.Lock()
	l.queue = nil
	l.mu.Unlock()
}

func (l *Loader) blockID(r collection.Range) int {
	return r.Start / l.blockSize
}

// Stats exposes counters useful for tests and instrumentation.
type Stats struct {
	Active, Queued, Cancelled, Dropped int
}

func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Active:    len(l.active),
		Queued:    len(l.queue),
		Cancelled: l.cancelledCount,
		Dropped:   l.droppedCount,
	}
}

// Request is the admission control:
//  1. the identical range already active for its block: no-op (priority is
//     not compared; a different range in an active block is not a no-op)
//  2. velocity above cancel_threshold: drop silently, count it
//  3. a concurrency slot free: promote immediately
//  4. otherwise enqueue, dropping the oldest entry on overflow
func (l *Loader) Request(r collection.Range, priority Priority) {
	if r.Len() <= 0 {
		return
	}
	id := l.blockID(r)

	l.mu.Lock()
	if existing, ok := l.active[id]; ok && existing == r {
		l.mu.Unlock()
		return
	}
	if l.velocity > l.cancelThreshold {
		l.cancelledCount++
		l.mu.Unlock()
		return
	}
	if len(l.active) < l.maxConcurrent {
		l.active[id] = r
		l.mu.Unlock()
		l.dispatch(id, r)
		return
	}
	l.enqueue(id, r, priority)
	l.mu.Unlock()
}

// enqueue appends a request to the bounded FIFO, dropping the oldest entry
// on overflow. Caller must hold l.mu.
func (l *Loader) enqueue(id int, r collection.Range, priority Priority) {
	for _, e := range l.queue {
		if e.id == id {
			return
		}
	}
	if len(l.queue) >= l.queueCapacity {
		l.queue = l.queue[1:]
		l.droppedCount++
	}
	l.queue = append(l.queue, queueEntry{id: id, r: r, priority: priority})
}

// dispatch performs the actual load in a goroutine — the only asynchronous
// edge in the engine — and drains the next queued request on
// completion.
func (l *Loader) dispatch(id int, r collection.Range) {
	go func() {
		err := l.collection.LoadRangeUntyped(l.ctx, r)
		if err != nil {
			l.logger.Debug("loader: range load returned error", zap.Int("block", id), zap.Error(err))
		}
		l.complete(id)
	}()
}

// complete releases an active slot and drains the next eligible request.
func (l *Loader) complete(id int) {
	l.mu.Lock()
	delete(l.active, id)
	l.drainLocked()
	l.mu.Unlock()
}

// drainLocked promotes queued requests into active slots, highest
// priority first and FIFO among equal priority, until the concurrency cap
// is reached or the queue is empty. It does nothing while velocity remains
// above cancel_threshold — queued work only resumes on the downward
// crossing UpdateVelocity reports. Caller must hold l.mu.
func (l *Loader) drainLocked() {
	if l.velocity > l.cancelThreshold {
		return
	}
	for len(l.active) < l.maxConcurrent && len(l.queue) > 0 {
		idx := l.nextDrainIndexLocked()
		entry := l.queue[idx]
		l.queue = append(l.queue[:idx], l.queue[idx+1:]...)
		l.active[entry.id] = entry.r
		r, id := entry.r, entry.id
		go l.dispatch(id, r)
	}
}

// nextDrainIndexLocked finds the index of the highest-priority, oldest
// queued entry. Caller must hold l.mu.
func (l *Loader) nextDrainIndexLocked() int {
	best := 0
	for i := 1; i < len(l.queue); i++ {
		if l.queue[i].priority > l.queue[best].priority {
			best = i
		}
	}
	return best
}

// UpdateVelocity is called by Viewport on every speed:changed sample.
// Crossing from above to at-or-below cancel_threshold drains the queue
// into active slots.
func (l *Loader) UpdateVelocity(v float64, direction event.Direction) {
	l.mu.Lock()
	wasAbove := l.velocity > l.cancelThreshold
	l.velocity = v
	l.direction = direction
	nowAbove := l.velocity > l.cancelThreshold
	if wasAbove && !nowAbove {
		l.drainLocked()
	}
	l.mu.Unlock()
}

// CancelAll clears the queue. Active requests continue to completion;
// there is no per-request cancellation token.
func (l *Loader) CancelAll() {
	l.mu.Lock()
	l.droppedCount += len(l.queue)
	l.queue = nil
	l.mu.Unlock()
}
