package vlist

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~gioverse/vlist/collection"
	"git.sr.ht/~gioverse/vlist/event"
	"git.sr.ht/~gioverse/vlist/viewport"
)

type row struct {
	id   string
	text string
}

func (r row) ID() string { return r.id }

// pagedAdapter serves a fixed total via offset pagination, counting reads
// per offset so tests can assert on adapter-call behavior end to end.
type pagedAdapter struct {
	mu    sync.Mutex
	total uint64
	calls map[uint64]int
}

func newPagedAdapter(total uint64) *pagedAdapter {
	return &pagedAdapter{total: total, calls: make(map[uint64]int)}
}

func (a *pagedAdapter) Read(ctx context.Context, p collection.Params) (collection.Response[row], error) {
	a.mu.Lock()
	a.calls[*p.Offset]++
	a.mu.Unlock()
	start := int(*p.Offset)
	end := start + int(*p.Limit) - 1
	if end > int(a.total)-1 {
		end = int(a.total) - 1
	}
	items := make([]row, 0, end-start+1)
	for i := start; i <= end; i++ {
		items = append(items, row{id: fmt.Sprintf("row-%d", i), text: fmt.Sprintf("text-%d", i)})
	}
	return collection.Response[row]{Items: items, Meta: collection.Meta{Total: &a.total}}, nil
}

func waitForCond(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true in time")
}

func TestConfigValidateRejectsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageSize = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CancelThreshold = 0
	require.Error(t, cfg.Validate())

	require.NoError(t, DefaultConfig().Validate())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 0
	_, err := New[row](newPagedAdapter(100), cfg, collection.Pipeline[row]{})
	require.Error(t, err)
}

func TestEngineInitialLoad(t *testing.T) {
	adapter := newPagedAdapter(100)
	cfg := DefaultConfig()
	cfg.Strategy = collection.Offset

	e, err := New[row](adapter, cfg, collection.Pipeline[row]{})
	require.NoError(t, err)
	defer e.Destroy()

	var mu sync.Mutex
	var changed []event.ViewportChanged
	e.Subscribe(func(ev event.Event) {
		if vc, ok := ev.(event.ViewportChanged); ok {
			mu.Lock()
			changed = append(changed, vc)
			mu.Unlock()
		}
	})

	e.SetContainerSize(400)
	waitForCond(t, func() bool {
		total, ok := e.Collection.GetTotal()
		return ok && total == 100
	})
	waitForCond(t, func() bool { return e.Collection.IsLoaded(0) })

	mu.Lock()
	require.NotEmpty(t, changed)
	last := changed[len(changed)-1]
	mu.Unlock()
	assert.Equal(t, 0, last.VisibleStart)
	assert.Equal(t, 12, last.VisibleEnd) // [0,7] strict + 5 overscan, clamped
}

func TestEngineFastScrollDropsThenDrainsOnSettle(t *testing.T) {
	adapter := newPagedAdapter(10_000)
	cfg := DefaultConfig()
	cfg.Strategy = collection.Offset

	e, err := New[row](adapter, cfg, collection.Pipeline[row]{})
	require.NoError(t, err)
	defer e.Destroy()

	e.SetContainerSize(400)
	waitForCond(t, func() bool { return e.Collection.IsLoaded(0) })

	t0 := time.Unix(0, 0)
	e.SetScrollPosition(0, t0)
	// A big jump in a short time produces a high instantaneous velocity,
	// which should make the loader drop the newly implied requests rather
	// than queue them.
	e.SetScrollPosition(5000, t0.Add(10*time.Millisecond))
	// Virtual offset 5000 at the default estimated item size (50) lands on
	// index 100, block 5.
	const targetBlock = 100 / 20

	vel, _ := e.Viewport.Velocity()
	require.Greater(t, vel, cfgCancelThreshold(cfg))
	initialCalls := adapter.callCountTotal()
	assert.False(t, e.Collection.IsLoaded(targetBlock))

	// Settling (velocity decaying back toward 0, same position held) must
	// cause the still-missing visible blocks to be re-requested and fetched.
	// 0.85^n decay from this jump's velocity needs enough samples to cross
	// back under cancel_threshold=1.
	at := t0.Add(10 * time.Millisecond)
	for i := 0; i < 60; i++ {
		at = at.Add(200 * time.Millisecond)
		e.SetScrollPosition(5000, at)
	}
	vel, _ = e.Viewport.Velocity()
	require.Less(t, vel, cfgCancelThreshold(cfg))

	waitForCond(t, func() bool { return adapter.callCountTotal() > initialCalls })
	waitForCond(t, func() bool { return e.Collection.IsLoaded(targetBlock) })
}

func (a *pagedAdapter) callCountTotal() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

func cfgCancelThreshold(cfg Config) float64 {
	return float64(cfg.CancelThreshold)
}

func TestEngineRefreshReloadsVisibleRange(t *testing.T) {
	adapter := newPagedAdapter(100)
	cfg := DefaultConfig()
	cfg.Strategy = collection.Offset

	e, err := New[row](adapter, cfg, collection.Pipeline[row]{})
	require.NoError(t, err)
	defer e.Destroy()

	e.SetContainerSize(400)
	waitForCond(t, func() bool { return e.Collection.IsLoaded(0) })

	e.Refresh()
	_, ok := e.Collection.GetTotal()
	assert.False(t, ok)

	waitForCond(t, func() bool { return e.Collection.IsLoaded(0) })
	assert.Equal(t, 2, adapter.calls[0])
}

func TestEngineMeasureAndScrollToIndex(t *testing.T) {
	adapter := newPagedAdapter(1000)
	cfg := DefaultConfig()
	cfg.Strategy = collection.Offset

	e, err := New[row](adapter, cfg, collection.Pipeline[row]{})
	require.NoError(t, err)
	defer e.Destroy()

	e.SetContainerSize(400)
	waitForCond(t, func() bool { return e.Collection.IsLoaded(0) })

	e.Measure(0, 200)
	assert.Equal(t, 200.0, e.Viewport.SizeOf(0))

	e.ScrollToIndex(500, viewport.Start, false, time.Now())
	waitForCond(t, func() bool { return e.Collection.IsLoaded(500 / int(cfg.PageSize)) })
}

func TestEngineDestroyIsIdempotentAndStopsCollection(t *testing.T) {
	adapter := newPagedAdapter(20)
	cfg := DefaultConfig()
	e, err := New[row](adapter, cfg, collection.Pipeline[row]{})
	require.NoError(t, err)

	e.Destroy()
	e.Destroy() // a second teardown must be harmless
	_, err = e.Collection.RetryFailed(context.Background(), 0)
	require.Error(t, err)
}
