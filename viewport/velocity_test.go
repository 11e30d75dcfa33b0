package viewport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"git.sr.ht/~gioverse/vlist/event"
)

func TestVelocityFirstSampleEstablishesBaseline(t *testing.T) {
	var v velocityTracker
	vel, dir := v.sample(0, time.Unix(0, 0))
	assert.Equal(t, 0.0, vel)
	assert.Equal(t, event.NoDirection, dir)
}

func TestVelocitySmoothsTowardInstantaneous(t *testing.T) {
	var v velocityTracker
	t0 := time.Unix(0, 0)
	v.sample(0, t0)
	// Move 100px over 100ms = 1 px/ms instantaneous.
	vel, dir := v.sample(100, t0.Add(100*time.Millisecond))
	assert.Equal(t, event.Forward, dir)
	assert.InDelta(t, 0.15, vel, 1e-9) // 0.85*0 + 0.15*1
}

func TestVelocityDirectionBackward(t *testing.T) {
	var v velocityTracker
	t0 := time.Unix(0, 0)
	v.sample(100, t0)
	_, dir := v.sample(0, t0.Add(50*time.Millisecond))
	assert.Equal(t, event.Backward, dir)
}

func TestVelocityZeroDeltaTimeLeavesSmoothedUnchanged(t *testing.T) {
	var v velocityTracker
	t0 := time.Unix(0, 0)
	v.sample(0, t0)
	v.sample(100, t0.Add(100*time.Millisecond))
	before := v.smoothed
	vel, _ := v.sample(150, t0.Add(100*time.Millisecond)) // same instant
	assert.Equal(t, before, vel)
}

func TestVelocityResetClearsState(t *testing.T) {
	var v velocityTracker
	t0 := time.Unix(0, 0)
	v.sample(0, t0)
	v.sample(100, t0.Add(100*time.Millisecond))
	v.reset()
	assert.False(t, v.hasSample)
	assert.Equal(t, 0.0, v.smoothed)
	assert.Equal(t, event.NoDirection, v.direction)
}
