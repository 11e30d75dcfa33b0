package viewport

import (
	"math"
	"time"

	"git.sr.ht/~gioverse/vlist/event"
)

// smoothingFactor is alpha in the exponential smoothing formula.
const smoothingFactor = 0.85

// velocityTracker is a pure, dependency-free scroll-speed estimator:
// exponential smoothing over instantaneous px/ms samples.
type velocityTracker struct {
	smoothed     float64
	direction    event.Direction
	lastSample   time.Time
	lastPosition float64
	hasSample    bool
}

// sample feeds one (position, time) observation and returns the updated
// smoothed velocity and direction. A zero Δtime is guarded against by
// leaving the smoothed velocity unchanged (no division by zero).
func (v *velocityTracker) sample(position float64, at time.Time) (velocity float64, direction event.Direction) {
	if !v.hasSample {
		v.hasSample = true
		v.lastSample = at
		v.lastPosition = position
		return v.smoothed, v.direction
	}
	dt := at.Sub(v.lastSample).Seconds() * 1000 // ms, so velocity is px/ms
	delta := position - v.lastPosition
	v.lastSample = at
	v.lastPosition = position
	if dt <= 0 {
		return v.smoothed, v.direction
	}
	instantaneous := math.Abs(delta) / dt
	v.smoothed = smoothingFactor*v.smoothed + (1-smoothingFactor)*instantaneous
	if delta > 0 {
		v.direction = event.Forward
	} else if delta < 0 {
		v.direction = event.Backward
	}
	return v.smoothed, v.direction
}

func (v *velocityTracker) reset() {
	*v = velocityTracker{}
}
