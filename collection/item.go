package collection

// Identifiable is the constraint every item type managed by a Collection
// must satisfy: an opaque payload with a stable string id. Item equality
// is by id.
type Identifiable interface {
	ID() string
}

// Pipeline holds the user-supplied normalize/transform/validate hooks
// applied to every item an adapter returns, in that order: normalize ->
// map(transform) -> filter(validate). Any hook left nil is a no-op /
// always-pass.
type Pipeline[T Identifiable] struct {
	// Normalize adjusts a raw item before further processing (e.g. trimming
	// whitespace, coercing fields). Applied to every item unconditionally.
	Normalize func(T) T
	// Transform maps an item to its final form. Returning ok=false drops
	// the item; the containing block is still considered loaded, and the
	// dropped item leaves a hole at its position rather than shifting
	// later items down.
	Transform func(T) (out T, ok bool)
	// Validate rejects items that passed Transform but are not fit to
	// store.
	Validate func(T) bool
}

// apply runs the pipeline over a raw batch of items in order, keeping each
// survivor paired with its original offset into items so the caller can
// store it at the matching absolute index and leave a hole for whatever
// was dropped, rather than compacting the block.
func (p Pipeline[T]) apply(items []T) []indexedItem[T] {
	out := make([]indexedItem[T], 0, len(items))
	for offset, item := range items {
		if p.Normalize != nil {
			item = p.Normalize(item)
		}
		if p.Transform != nil {
			transformed, ok := p.Transform(item)
			if !ok {
				continue
			}
			item = transformed
		}
		if p.Validate != nil && !p.Validate(item) {
			continue
		}
		out = append(out, indexedItem[T]{offset: offset, item: item})
	}
	return out
}

// indexedItem pairs a pipeline survivor with its offset into the adapter's
// original response slice.
type indexedItem[T Identifiable] struct {
	offset int
	item   T
}
