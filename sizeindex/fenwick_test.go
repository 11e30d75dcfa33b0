package sizeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetOfUsesDefaultWhenUnmeasured(t *testing.T) {
	x := New(50)
	assert.Equal(t, 0.0, x.OffsetOf(0))
	assert.Equal(t, 500.0, x.OffsetOf(10))
	assert.Equal(t, 50.0, x.SizeOf(3))
}

func TestMeasureShiftsSubsequentOffsets(t *testing.T) {
	x := New(50)
	x.Measure(2, 100) // index 2 is 100 instead of 50, a +50 delta
	assert.Equal(t, 100.0, x.SizeOf(2))
	assert.Equal(t, 100.0, x.OffsetOf(2))  // unaffected, sums j < 2
	assert.Equal(t, 200.0, x.OffsetOf(3))  // 0,1 default + measured 2
	assert.Equal(t, 250.0, x.OffsetOf(4))
}

func TestMeasureOverwritePrevious(t *testing.T) {
	x := New(50)
	prev := x.Measure(5, 80)
	assert.Equal(t, 50.0, prev) // was unmeasured -> default
	prev = x.Measure(5, 120)
	assert.Equal(t, 80.0, prev)
	assert.Equal(t, 120.0, x.SizeOf(5))
}

func TestForgetRevertsToDefault(t *testing.T) {
	x := New(50)
	x.Measure(7, 200)
	require.Equal(t, 200.0, x.SizeOf(7))
	x.Forget(7)
	assert.Equal(t, 50.0, x.SizeOf(7))
	assert.Equal(t, 350.0, x.OffsetOf(7)) // back to 7*50
}

func TestForgetUnmeasuredIsNoop(t *testing.T) {
	x := New(50)
	x.Forget(3) // never measured
	assert.Equal(t, 50.0, x.SizeOf(3))
}

func TestTotalSizeAllDefault(t *testing.T) {
	x := New(50)
	assert.Equal(t, 5000.0, x.TotalSize(100))
}

func TestIndexAtOffsetBoundaries(t *testing.T) {
	x := New(50)
	// offsets: 0, 50, 100, 150, ...
	assert.Equal(t, 0, x.IndexAtOffset(0, 100))
	assert.Equal(t, 0, x.IndexAtOffset(-10, 100))
	assert.Equal(t, 1, x.IndexAtOffset(50, 100))
	assert.Equal(t, 1, x.IndexAtOffset(99, 100))
	assert.Equal(t, 2, x.IndexAtOffset(100, 100))
	assert.Equal(t, 99, x.IndexAtOffset(1_000_000, 100))
}

func TestIndexAtOffsetWithMeasuredSizes(t *testing.T) {
	x := New(50)
	x.Measure(0, 200) // first item is tall
	// offset(0)=0, offset(1)=200, offset(2)=250
	assert.Equal(t, 0, x.IndexAtOffset(199, 10))
	assert.Equal(t, 1, x.IndexAtOffset(200, 10))
	assert.Equal(t, 1, x.IndexAtOffset(249, 10))
	assert.Equal(t, 2, x.IndexAtOffset(250, 10))
}

func TestMeasurementEvictionScenario(t *testing.T) {
	// Measure 0..599 through a bounded cache of 500; indices 0..99 get
	// evicted, 100..599 remain measured.
	x := New(50)
	const cap = 500
	order := make([]int, 0, 600)
	measured := make(map[int]float64)
	for i := 0; i < 600; i++ {
		x.Measure(i, 75)
		measured[i] = 75
		order = append(order, i)
		if len(order) > cap {
			evict := order[0]
			order = order[1:]
			delete(measured, evict)
			x.Forget(evict)
		}
	}
	assert.Equal(t, 50.0, x.SizeOf(50))
	assert.Equal(t, 75.0, x.SizeOf(550))
	assert.Len(t, measured, cap)
}
