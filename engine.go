// Package vlist ties together collection, loader, and viewport into a
// single engine: a Collection owns item storage and adapter-backed paging,
// a Loader schedules range requests by priority and scroll velocity, and a
// Viewport maps scroll position to visible indices and drives both. The
// three communicate only through narrow capability interfaces and a
// shared event bus.
package vlist

import (
	"context"
	"time"

	"git.sr.ht/~gioverse/vlist/collection"
	"git.sr.ht/~gioverse/vlist/errs"
	"git.sr.ht/~gioverse/vlist/event"
	"git.sr.ht/~gioverse/vlist/loader"
	"git.sr.ht/~gioverse/vlist/viewport"
)

// Engine is the public facade: construct one per list, call SetContainerSize
// and SetScrollPosition as the host reports layout/scroll events, Subscribe
// to observe render plans and loading state, and Destroy when the list is
// torn down.
type Engine[T collection.Identifiable] struct {
	Collection *collection.Collection[T]
	Loader     *loader.Loader
	Viewport   *viewport.Viewport[T]

	bus *event.Bus

	unsubscribeVelocity func()
}

// New validates cfg, then constructs and wires a Collection, Loader, and
// Viewport sharing one event bus. adapter is the single external I/O
// capability; pipeline may be the zero value for no
// normalize/transform/validate hooks.
func New[T collection.Identifiable](adapter collection.Adapter[T], cfg Config, pipeline collection.Pipeline[T]) (*Engine[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bus := event.New()

	col := collection.New[T](
		adapter,
		collection.WithBlockSize[T](int(cfg.PageSize)),
		collection.WithStrategy[T](cfg.Strategy),
		collection.WithPipeline[T](pipeline),
		collection.WithBackoff[T](cfg.backoffBase(), cfg.backoffCap()),
		collection.WithBus[T](bus),
	)

	ld := loader.New(int(cfg.PageSize), col,
		loader.WithMaxConcurrent(int(cfg.MaxConcurrent)),
		loader.WithQueueCapacity(int(cfg.QueueCapacity)),
		loader.WithCancelThreshold(float64(cfg.CancelThreshold)),
		loader.WithBus(bus),
	)

	vp := viewport.New[T](col, col, ld,
		viewport.WithEstimatedItemSize[T](float64(cfg.EstimatedItemSize)),
		viewport.WithOverscan[T](int(cfg.Overscan)),
		viewport.WithMeasurementCacheCap[T](int(cfg.MeasurementCacheCap)),
		viewport.WithBus[T](bus),
	)

	e := &Engine[T]{Collection: col, Loader: ld, Viewport: vp, bus: bus}

	// The loader's velocity gate is driven by the viewport's own
	// speed:changed emissions; wiring this at the facade keeps Loader and
	// Viewport from holding references to each other directly.
	e.unsubscribeVelocity = bus.Subscribe(func(ev event.Event) {
		if sc, ok := ev.(event.SpeedChanged); ok {
			ld.UpdateVelocity(sc.Velocity, sc.Direction)
		}
	})

	return e, nil
}

// Subscribe registers a callback for every event the engine emits
// (range:loaded, range:failed, items:set, loading:start/end,
// viewport:changed, scroll:position-changed, speed:changed, error).
func (e *Engine[T]) Subscribe(sub event.Subscriber) (unsubscribe func()) {
	return e.bus.Subscribe(sub)
}

// SetContainerSize reports the primary-axis extent of the rendering
// surface; a zero size pauses viewport:changed emissions and load requests.
func (e *Engine[T]) SetContainerSize(size float64) {
	e.Viewport.SetContainerSize(size)
}

// SetScrollPosition reports a new scroll offset, sampled at time at.
func (e *Engine[T]) SetScrollPosition(position float64, at time.Time) {
	e.Viewport.SetScrollPosition(position, at)
}

// ScrollToIndex, ScrollToPage, and ScrollToItem delegate to the viewport;
// see viewport.Viewport for semantics.
func (e *Engine[T]) ScrollToIndex(i int, align viewport.Alignment, animated bool, at time.Time) {
	e.Viewport.ScrollToIndex(i, align, animated, at)
}

func (e *Engine[T]) ScrollToPage(page, pageSize int, align viewport.Alignment, animated bool, at time.Time) {
	e.Viewport.ScrollToPage(page, pageSize, align, animated, at)
}

func (e *Engine[T]) ScrollToItem(id string, align viewport.Alignment, animated bool, at time.Time) error {
	return e.Viewport.ScrollToItem(id, align, animated, at)
}

// Measure records an observed size for a rendered index.
func (e *Engine[T]) Measure(i int, size float64) {
	e.Viewport.Measure(i, size)
}

// Refresh clears all loaded/pending/failed block state and item storage,
// cancels queued loader work, and re-requests the current visible range
// from scratch.
func (e *Engine[T]) Refresh() {
	e.Loader.CancelAll()
	e.Collection.Refresh()
	e.Viewport.Recompute()
}

// RetryFailed re-attempts a single failed block, bypassing its backoff
// window.
func (e *Engine[T]) RetryFailed(blockID int) ([]T, error) {
	if blockID < 0 {
		return nil, errs.ErrOutOfBounds
	}
	return e.Collection.RetryFailed(context.Background(), blockID)
}

// Destroy tears the engine down in reverse dependency order: Viewport
// first, then Loader, then Collection.
func (e *Engine[T]) Destroy() {
	if e.unsubscribeVelocity != nil {
		e.unsubscribeVelocity()
	}
	e.Viewport.Destroy()
	e.Loader.Destroy()
	e.Collection.Destroy()
}
