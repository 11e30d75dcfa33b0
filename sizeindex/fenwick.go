// Package sizeindex implements the offset-accumulation structure backing
// Viewport's size model, computing an index's primary-axis offset in
// amortized O(log n) via a Fenwick tree keyed on index with lazy defaults.
// Every index has an implicit default size; only indices with an explicit
// measured override are actually stored in the tree, as a delta from that
// default.
package sizeindex

// Index is a Fenwick tree (binary indexed tree) over per-index deltas from
// a uniform estimated size, giving O(log n) prefix-sum offset queries and
// O(log^2 n) offset->index search (one binary search over i, each step an
// O(log n) prefix sum).
type Index struct {
	deltas   []float64 // 1-indexed Fenwick tree of (measured-default) deltas
	measured map[int]float64
	n        int // current capacity; grows on demand
	def      float64
}

// New constructs an Index with the given default (estimated) item size.
func New(defaultSize float64) *Index {
	return &Index{
		measured: make(map[int]float64),
		def:      defaultSize,
	}
}

// SetDefault updates the fallback size used for unmeasured indices.
func (x *Index) SetDefault(size float64) {
	x.def = size
}

// Default returns the current fallback size.
func (x *Index) Default() float64 {
	return x.def
}

// grow expands the Fenwick tree to cover at least n indices (1-indexed).
func (x *Index) grow(n int) {
	if n <= x.n {
		return
	}
	newSize := x.n
	if newSize == 0 {
		newSize = 1
	}
	for newSize < n {
		newSize *= 2
	}
	// A Fenwick node's coverage depends on the tree size, so the old nodes
	// cannot simply be copied: rebuild from the recorded measurements.
	x.deltas = make([]float64, newSize+1)
	x.n = newSize
	for i, size := range x.measured {
		delta := size - x.def
		for p := i + 1; p <= x.n; p += p & (-p) {
			x.deltas[p] += delta
		}
	}
}

// add applies delta to position i (0-indexed item index) in the Fenwick
// tree.
func (x *Index) add(i int, delta float64) {
	if delta == 0 {
		return
	}
	x.grow(i + 1)
	for p := i + 1; p <= x.n; p += p & (-p) {
		x.deltas[p] += delta
	}
}

// prefixDelta returns the sum of deltas for indices [0, i) (i exclusive).
func (x *Index) prefixDelta(i int) float64 {
	if i <= 0 {
		return 0
	}
	if i > x.n {
		i = x.n
	}
	var sum float64
	for p := i; p > 0; p -= p & (-p) {
		sum += x.deltas[p]
	}
	return sum
}

// Measure records an explicit measured size for index i, overriding the
// default for all subsequent queries. Returns the previous size (measured
// or default) so an LRU layer can track eviction deltas.
func (x *Index) Measure(i int, size float64) (previous float64) {
	previous = x.SizeOf(i)
	old, had := x.measured[i]
	oldDelta := 0.0
	if had {
		oldDelta = old - x.def
	}
	newDelta := size - x.def
	x.add(i, newDelta-oldDelta)
	x.measured[i] = size
	return previous
}

// Forget removes a measured override for index i, reverting it to the
// default size. Used when the measurement cache LRU-evicts an entry.
func (x *Index) Forget(i int) {
	old, had := x.measured[i]
	if !had {
		return
	}
	x.add(i, -(old - x.def))
	delete(x.measured, i)
}

// SizeOf returns the measured size for i if present, else the default.
func (x *Index) SizeOf(i int) float64 {
	if size, ok := x.measured[i]; ok {
		return size
	}
	return x.def
}

// OffsetOf returns the primary-axis offset of index i: the sum of
// size_of(j) for all j < i.
func (x *Index) OffsetOf(i int) float64 {
	if i <= 0 {
		return 0
	}
	return float64(i)*x.def + x.prefixDelta(i)
}

// TotalSize returns the sum of size_of(j) for j < count, the virtual size
// of a sequence of length count.
func (x *Index) TotalSize(count int) float64 {
	return x.OffsetOf(count)
}

// IndexAtOffset finds the largest i with OffsetOf(i) <= target, i.e. at an
// exact boundary the index that starts on target wins over the one that
// ends there. count bounds the search to a known sequence length (pass a
// generous upper bound when the total is not yet known).
func (x *Index) IndexAtOffset(target float64, count int) int {
	return x.indexAtOffset(target, count, true)
}

// LastIndexBefore finds the largest i with OffsetOf(i) < target: the last
// index that begins strictly before target, excluding one that starts
// exactly on it. Used to find the last visible index in a window, since an
// item beginning exactly on the window's bottom edge has not actually
// scrolled into view. count bounds the search the same way as
// IndexAtOffset.
func (x *Index) LastIndexBefore(target float64, count int) int {
	return x.indexAtOffset(target, count, false)
}

func (x *Index) indexAtOffset(target float64, count int, inclusive bool) int {
	if count <= 0 {
		return 0
	}
	lo, hi := 0, count-1
	// Invariant: OffsetOf(lo) <= target is not guaranteed at start, so
	// first clamp: if target <= OffsetOf(0) == 0, answer is 0.
	if target <= 0 {
		return 0
	}
	best := 0
	for lo <= hi {
		mid := lo + (hi-lo)/2
		within := x.OffsetOf(mid) <= target
		if !inclusive {
			within = x.OffsetOf(mid) < target
		}
		if within {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}
