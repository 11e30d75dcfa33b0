// Package viewport maps scroll position to an index range using measured
// and estimated item sizes, decides which indices are visible (with
// overscan), requests missing data from the loader, and emits render plans
// and scroll-position events.
package viewport

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"git.sr.ht/~gioverse/vlist/collection"
	"git.sr.ht/~gioverse/vlist/errs"
	"git.sr.ht/~gioverse/vlist/event"
	"git.sr.ht/~gioverse/vlist/loader"
	"git.sr.ht/~gioverse/vlist/sizeindex"
)

// Alignment controls where a target index lands within the container on a
// ScrollToIndex call.
type Alignment int

const (
	Start Alignment = iota
	Center
	End
)

// DefaultEstimatedItemSize, DefaultOverscan, and DefaultMaxVirtualSize are
// the viewport's defaults.
const (
	DefaultEstimatedItemSize = 50.0
	DefaultOverscan          = 5
	DefaultMeasurementCacheCap = 500
	// DefaultMaxVirtualSize is the platform maximum total_virtual_size is
	// clamped to, beyond which scroll mapping switches to a ratio.
	DefaultMaxVirtualSize = 1e7
)

// TotalProvider is the narrow read capability Viewport needs from the
// Collection: just the known total, never item storage or block state. No
// component holds a mutable back-reference to another; coordination is by
// explicit calls on well-defined capabilities like this one.
type TotalProvider interface {
	GetTotal() (total int, ok bool)
}

// IndexResolver resolves an id to its current absolute index, backing
// ScrollToItem without handing Viewport a back-reference to the full
// Collection.
type IndexResolver interface {
	IndexOf(id string) (index int, ok bool)
}

// Requester is the narrow capability Viewport uses to ask for data; the
// loader.Loader satisfies it.
type Requester interface {
	Request(r collection.Range, priority loader.Priority)
}

// Viewport owns scroll position, container size, and all size
// measurements.
type Viewport[T collection.Identifiable] struct {
	total    TotalProvider
	byID     IndexResolver
	requests Requester
	bus      *event.Bus

	sizeIdx *sizeindex.Index
	cache   *lru.Cache[int, float64]

	scrollPosition float64
	containerSize  float64
	overscan       int
	maxVirtualSize float64

	velocity velocityTracker

	destroyed bool
}

// Option configures a Viewport at construction.
type Option[T collection.Identifiable] func(*Viewport[T])

func WithEstimatedItemSize[T collection.Identifiable](size float64) Option[T] {
	return func(v *Viewport[T]) { v.sizeIdx.SetDefault(size) }
}

func WithOverscan[T collection.Identifiable](overscan int) Option[T] {
	return func(v *Viewport[T]) { v.overscan = overscan }
}

func WithMeasurementCacheCap[T collection.Identifiable](cap int) Option[T] {
	return func(v *Viewport[T]) {
		c, _ := lru.NewWithEvict[int, float64](cap, func(idx int, _ float64) {
			v.sizeIdx.Forget(idx)
		})
		v.cache = c
	}
}

func WithMaxVirtualSize[T collection.Identifiable](max float64) Option[T] {
	return func(v *Viewport[T]) { v.maxVirtualSize = max }
}

func WithBus[T collection.Identifiable](b *event.Bus) Option[T] {
	return func(v *Viewport[T]) { v.bus = b }
}

// New constructs a Viewport. total supplies the known item count, byID
// resolves ScrollToItem lookups, and requests is the Loader capability
// used by the missing-data policy.
func New[T collection.Identifiable](total TotalProvider, byID IndexResolver, requests Requester, opts ...Option[T]) *Viewport[T] {
	v := &Viewport[T]{
		total:          total,
		byID:           byID,
		requests:       requests,
		bus:            event.New(),
		sizeIdx:        sizeindex.New(DefaultEstimatedItemSize),
		overscan:       DefaultOverscan,
		maxVirtualSize: DefaultMaxVirtualSize,
	}
	cache, _ := lru.NewWithEvict[int, float64](DefaultMeasurementCacheCap, func(idx int, _ float64) {
		v.sizeIdx.Forget(idx)
	})
	v.cache = cache
	for _, opt := range opts {
		opt(v)
	}
	// The collection's total is often unknown at the moment a request is
	// first made (e.g. the very first recompute, before any block has
	// loaded); re-evaluate the visible range whenever the collection's
	// state changes so a newly-discovered total or a completed/failed load
	// is reflected without the caller having to drive a scroll event itself.
	v.bus.Subscribe(func(ev event.Event) {
		switch ev.(type) {
		case event.RangeLoaded, event.RangeFailed, event.ItemsSet:
			v.recompute()
		}
	})
	return v
}

// Subscribe registers a callback on the viewport's event bus.
func (v *Viewport[T]) Subscribe(sub event.Subscriber) (unsubscribe func()) {
	return v.bus.Subscribe(sub)
}

// Destroy stops emissions. The Viewport is destroyed first, before Loader
// and Collection.
func (v *Viewport[T]) Destroy() {
	v.destroyed = true
}

func (v *Viewport[T]) totalCount() int {
	if t, ok := v.total.GetTotal(); ok {
		return t
	}
	return 0
}

func (v *Viewport[T]) knownTotal() bool {
	_, ok := v.total.GetTotal()
	return ok
}

// Measure records a measured size for index i, evicting the oldest
// measurement above the configured cap.
func (v *Viewport[T]) Measure(i int, size float64) {
	v.sizeIdx.Measure(i, size)
	v.cache.Add(i, size)
}

// SizeOf returns the measured size for index i if present, else the
// estimated default.
func (v *Viewport[T]) SizeOf(i int) float64 {
	return v.sizeIdx.SizeOf(i)
}

// OffsetOf returns the primary-axis offset of index i.
func (v *Viewport[T]) OffsetOf(i int) float64 {
	return v.sizeIdx.OffsetOf(i)
}

// rawVirtualSize is total_virtual_size before the platform-maximum clamp.
func (v *Viewport[T]) rawVirtualSize() float64 {
	total := v.totalCount()
	if total <= 0 {
		return 0
	}
	return v.sizeIdx.TotalSize(total)
}

// TotalVirtualSize returns the list's total scrollable extent, clamped to
// the configured platform maximum.
func (v *Viewport[T]) TotalVirtualSize() float64 {
	raw := v.rawVirtualSize()
	if raw > v.maxVirtualSize {
		return v.maxVirtualSize
	}
	return raw
}

// scrollRatio is 1 unless the true virtual size exceeds the platform
// maximum, in which case the physical<->virtual mapping uses this ratio
// (raw/clamped) instead of 1:1.
func (v *Viewport[T]) scrollRatio() float64 {
	raw := v.rawVirtualSize()
	if raw <= v.maxVirtualSize || raw == 0 {
		return 1
	}
	return raw / v.maxVirtualSize
}

// toVirtualOffset converts a physical scroll position (as exposed to the
// renderer, bounded by TotalVirtualSize) into the true virtual offset used
// for index lookups.
func (v *Viewport[T]) toVirtualOffset(physical float64) float64 {
	return physical * v.scrollRatio()
}

// toPhysicalOffset is the inverse of toVirtualOffset.
func (v *Viewport[T]) toPhysicalOffset(virtual float64) float64 {
	ratio := v.scrollRatio()
	if ratio == 0 {
		return 0
	}
	return virtual / ratio
}

// indexAtOffset finds the largest index whose offset is <= target, used
// to resolve the first visible index: an item starting exactly at the top
// edge of the window has scrolled into view.
func (v *Viewport[T]) indexAtOffset(target float64) int {
	total := v.totalCount()
	if total <= 0 {
		return 0
	}
	return v.sizeIdx.IndexAtOffset(target, total)
}

// lastIndexBefore finds the last index whose offset is strictly less than
// target, used to resolve the last visible index: an item starting exactly
// on the window's bottom edge has not scrolled into view yet.
func (v *Viewport[T]) lastIndexBefore(target float64) int {
	total := v.totalCount()
	if total <= 0 {
		return 0
	}
	return v.sizeIdx.LastIndexBefore(target, total)
}

// VisibleRange computes [first-overscan, last+overscan] clamped to
// [0, total-1].
func (v *Viewport[T]) VisibleRange() collection.Range {
	total := v.totalCount()
	if total <= 0 {
		return collection.Range{Start: 0, End: 0}
	}
	virtualPos := v.toVirtualOffset(v.scrollPosition)
	first := v.indexAtOffset(virtualPos)
	last := v.lastIndexBefore(virtualPos + v.containerSize*v.scrollRatio())
	start := first - v.overscan
	if start < 0 {
		start = 0
	}
	end := last + v.overscan
	if end > total-1 {
		end = total - 1
	}
	return collection.Range{Start: start, End: end}
}

// strictlyVisibleRange is VisibleRange without the overscan padding, used
// to decide load priority.
func (v *Viewport[T]) strictlyVisibleRange() collection.Range {
	total := v.totalCount()
	if total <= 0 {
		return collection.Range{Start: 0, End: 0}
	}
	virtualPos := v.toVirtualOffset(v.scrollPosition)
	first := v.indexAtOffset(virtualPos)
	last := v.lastIndexBefore(virtualPos + v.containerSize*v.scrollRatio())
	if last > total-1 {
		last = total - 1
	}
	return collection.Range{Start: first, End: last}
}

// SetContainerSize updates the container extent. A size of zero pauses
// ViewportChanged emissions and load requests until a non-zero size is
// reported; SetScrollPosition still publishes ScrollPositionChanged and
// SpeedChanged meanwhile.
func (v *Viewport[T]) SetContainerSize(size float64) {
	v.containerSize = size
	if size <= 0 {
		return
	}
	v.recompute()
}

// Recompute re-derives the visible range, re-requests any missing data, and
// emits a fresh render plan against the current scroll position and
// container size. Used after Refresh clears all collection state, so
// blocks the collection just dropped get re-requested.
func (v *Viewport[T]) Recompute() {
	v.recompute()
}

// recompute re-derives the visible range, requests any missing data, and
// emits a ViewportChanged render plan. No-ops while paused.
func (v *Viewport[T]) recompute() {
	if v.destroyed || v.containerSize <= 0 {
		return
	}
	visible := v.VisibleRange()
	v.requestMissing(visible)
	v.emitRenderPlan(visible)
}

// requestMissing applies the missing-data load policy: High priority for
// the strictly visible window, Normal for the remaining overscan.
func (v *Viewport[T]) requestMissing(visible collection.Range) {
	if v.requests == nil {
		return
	}
	strict := v.strictlyVisibleRange()
	if strict.Start > visible.Start {
		v.requests.Request(collection.Range{Start: visible.Start, End: strict.Start - 1}, loader.Normal)
	}
	v.requests.Request(strict, loader.High)
	if strict.End < visible.End {
		v.requests.Request(collection.Range{Start: strict.End + 1, End: visible.End}, loader.Normal)
	}
}

func (v *Viewport[T]) emitRenderPlan(visible collection.Range) {
	positions := make([]event.Position, 0, visible.Len())
	for i := visible.Start; i <= visible.End; i++ {
		positions = append(positions, event.Position{Index: i, Offset: v.toPhysicalOffset(v.OffsetOf(i))})
	}
	v.bus.Publish(event.ViewportChanged{
		VisibleStart:   visible.Start,
		VisibleEnd:     visible.End,
		Positions:      positions,
		ScrollPosition: v.scrollPosition,
	})
}

// clampScrollPosition bounds a physical scroll position to
// [0, TotalVirtualSize - containerSize].
func (v *Viewport[T]) clampScrollPosition(p float64) float64 {
	max := v.TotalVirtualSize() - v.containerSize
	if max < 0 {
		max = 0
	}
	if p < 0 {
		return 0
	}
	if p > max {
		return max
	}
	return p
}

// SetScrollPosition applies a scroll delta/absolute position update,
// updates the velocity tracker, and recomputes the render plan. at is the
// sample time (pass time.Now() in production; tests supply deterministic
// clocks).
func (v *Viewport[T]) SetScrollPosition(position float64, at time.Time) {
	clamped := v.clampScrollPosition(position)
	v.scrollPosition = clamped
	vel, dir := v.velocity.sample(clamped, at)
	v.bus.Publish(event.ScrollPositionChanged{Position: clamped, Direction: dir})
	v.bus.Publish(event.SpeedChanged{Velocity: vel, Direction: dir})
	v.recompute()
}

// Velocity returns the current smoothed velocity and direction.
func (v *Viewport[T]) Velocity() (velocity float64, direction event.Direction) {
	return v.velocity.smoothed, v.velocity.direction
}

// ScrollToIndex computes the target offset for alignment, clamps it,
// requests the target index at High priority directly (rather than
// waiting for the subsequent recompute to discover it via the stale
// pre-scroll visible range), and emits a position update. animated is
// accepted but not used: no emitted event carries it, and the engine itself
// never animates.
func (v *Viewport[T]) ScrollToIndex(i int, align Alignment, animated bool, at time.Time) {
	size := v.SizeOf(i)
	offset := v.OffsetOf(i)
	var target float64
	switch align {
	case Center:
		target = offset - (v.containerSize-size)/2
	case End:
		target = offset - v.containerSize + size
	default: // Start
		target = offset
	}
	physical := v.toPhysicalOffset(target)
	if v.requests != nil {
		v.requests.Request(collection.Range{Start: i, End: i}, loader.High)
	}
	v.SetScrollPosition(physical, at)
}

// ScrollToPage is scroll_to_page(page, alignment) ≡
// scroll_to_index((page-1)*pageSize, alignment).
func (v *Viewport[T]) ScrollToPage(page, pageSize int, align Alignment, animated bool, at time.Time) {
	v.ScrollToIndex((page-1)*pageSize, align, animated, at)
}

// ScrollToItem resolves id against loaded items and scrolls to it, or
// returns errs.ErrItemNotLoaded if the id is not present.
func (v *Viewport[T]) ScrollToItem(id string, align Alignment, animated bool, at time.Time) error {
	idx, ok := v.byID.IndexOf(id)
	if !ok {
		return errs.ErrItemNotLoaded
	}
	v.ScrollToIndex(idx, align, animated, at)
	return nil
}
