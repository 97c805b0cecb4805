package clock

import "sync"

// Periodic is a piecewise-affine Model: the global axis is partitioned
// into cycles of length Period anchored at XRefGlobal, and within one
// cycle the mapping follows a four-segment piecewise-affine shape
// (Segments A-D) built around a reference point. Unlike Affine, the
// within-cycle shape is not linear end-to-end, so delay translation is
// computed by composition rather than by a closed-form derivative.
type Periodic struct {
	mu         sync.RWMutex
	delta      Duration
	period     Duration
	interval   Duration
	slope      float64
	xRefGlobal Time
}

// NewPeriodic constructs a Periodic model. Period and Interval must be
// positive and Slope non-zero; these are precondition violations, not
// recoverable errors, matching the rest of this package's convention.
func NewPeriodic(delta, period, interval Duration, slope float64, xRefGlobal Time) *Periodic {
	if period <= 0 {
		panic("clock: periodic period must be positive")
	}
	if interval <= 0 {
		panic("clock: periodic interval must be positive")
	}
	if slope == 0 {
		panic("clock: periodic slope must be non-zero")
	}
	return &Periodic{
		delta:      delta,
		period:     period,
		interval:   interval,
		slope:      slope,
		xRefGlobal: xRefGlobal,
	}
}

func (p *Periodic) params() (Duration, Duration, Duration, float64, Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.delta, p.period, p.interval, p.slope, p.xRefGlobal
}

// floorDiv returns the floor of a/b for integer a, b with b > 0, unlike
// Go's native truncating "/" which rounds toward zero.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// GlobalToLocalTime maps a global instant into this entity's local axis
// using the quotient-remainder construction around XRefGlobal: the
// cycle index is the floor of (g - XRefGlobal)/Period, and the
// within-cycle offset is resolved by the four-segment piecewise map.
// This replaces the source model's direct comparison of a time value
// against a cycle count, which spec.md identifies as an asymmetry bug.
func (p *Periodic) GlobalToLocalTime(global Time) Time {
	delta, period, interval, slope, xRef := p.params()

	cycles := floorDiv(int64(global)-int64(xRef), int64(period))
	u := Duration(int64(global) - int64(xRef) - cycles*int64(period))

	boundary := Duration(float64(interval) / slope)

	var withinCycle Time
	switch {
	case u <= 0:
		withinCycle = Time(-int64(delta) / 2)
	case u <= boundary:
		withinCycle = Time(slope*float64(u)) + xRef - Time(delta/2)
	case u <= boundary+interval:
		withinCycle = Time(float64(u-boundary)/slope) + Time(interval) + xRef - Time(delta/2)
	default:
		withinCycle = Time(int64(u)) - Time(delta/2)
	}

	return withinCycle + Time(cycles*int64(period))
}

// LocalToGlobalTime is the symmetric construction on the local axis,
// with the sign of Delta flipped in the analogous segments.
func (p *Periodic) LocalToGlobalTime(local Time) Time {
	delta, period, interval, slope, xRef := p.params()

	cycles := floorDiv(int64(local)-int64(xRef), int64(period))
	u := Duration(int64(local) - int64(xRef) - cycles*int64(period))

	boundary := Duration(float64(interval) * slope)

	var withinCycle Time
	switch {
	case u <= 0:
		withinCycle = Time(int64(delta) / 2)
	case u <= boundary:
		withinCycle = Time(float64(u)/slope) + xRef + Time(delta/2)
	case u <= boundary+interval:
		withinCycle = Time((float64(u-boundary))*slope) + Time(interval) + xRef + Time(delta/2)
	default:
		withinCycle = Time(int64(u)) + Time(delta/2)
	}

	return withinCycle + Time(cycles*int64(period))
}

// GlobalToLocalDelay converts a global-time duration into local time by
// composition: translate the endpoints and difference the results. This
// is required (rather than a closed-form scale) because the piecewise
// shape can disagree with a naive per-segment slope across a segment
// boundary.
func (p *Periodic) GlobalToLocalDelay(now Time, delay Duration) Duration {
	return composeGlobalToLocalDelay(p, now, delay)
}

// LocalToGlobalDelay is the symmetric composition-based delay translation.
func (p *Periodic) LocalToGlobalDelay(now Time, delay Duration) Duration {
	return composeLocalToGlobalDelay(p, now, delay)
}
