// Package clock implements the per-entity clock-translation layer: the
// mapping between a single global simulation time axis and each entity's
// own, possibly skewed, possibly non-monotonic-relative-to-others local
// time axis.
package clock

import "fmt"

// Time is a tick count on some time axis (global or local). Ticks are an
// opaque integer unit; callers decide what a tick represents.
type Time int64

// Duration is a signed difference between two Time values.
type Duration int64

func (t Time) String() string {
	return fmt.Sprintf("%dt", int64(t))
}

func (d Duration) String() string {
	return fmt.Sprintf("%dt", int64(d))
}

// Model translates between the global time axis and one entity's local
// time axis. Implementations must be pure functions of their own fixed
// parameters: the same global Time always maps to the same local Time,
// and the same local Time always maps to the same global Time (modulo
// the one-to-many fold-over that Periodic introduces across the axis
// origin).
//
// GlobalToLocalDelay and LocalToGlobalDelay translate a *duration*
// relative to a reference instant "now", rather than an absolute point:
// `global_to_local_delay(d) = global_to_local_time(now+d) -
// global_to_local_time(now)`. The reference instant is threaded through
// explicitly so Model stays a pure function of its own parameters; it is
// LocalClock (see localclock.go) that supplies the simulator's current
// global time as "now" on every call.
type Model interface {
	// GlobalToLocalTime maps a point on the global axis to this entity's
	// local axis.
	GlobalToLocalTime(global Time) Time

	// LocalToGlobalTime maps a point on this entity's local axis back to
	// the global axis.
	LocalToGlobalTime(local Time) Time

	// GlobalToLocalDelay converts a duration expressed in global ticks,
	// measured from global instant now, into the equivalent duration in
	// this entity's local ticks.
	GlobalToLocalDelay(now Time, delay Duration) Duration

	// LocalToGlobalDelay converts a duration expressed in this entity's
	// local ticks, measured from the local instant corresponding to
	// global now, into the equivalent duration in global ticks.
	LocalToGlobalDelay(now Time, delay Duration) Duration
}

// composeGlobalToLocalDelay implements GlobalToLocalDelay generically by
// composing GlobalToLocalTime at the two endpoints. Periodic uses it;
// Affine computes its delays in closed form instead (see affine.go).
func composeGlobalToLocalDelay(m Model, now Time, delay Duration) Duration {
	return Duration(m.GlobalToLocalTime(now+Time(delay)) - m.GlobalToLocalTime(now))
}

// composeLocalToGlobalDelay implements LocalToGlobalDelay generically by
// composing LocalToGlobalTime at the two endpoints relative to the
// local instant that corresponds to global now.
func composeLocalToGlobalDelay(m Model, now Time, delay Duration) Duration {
	localNow := m.GlobalToLocalTime(now)
	return Duration(m.LocalToGlobalTime(localNow+Time(delay)) - now)
}
