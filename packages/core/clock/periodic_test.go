package clock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clockdomain/ltsim/packages/core/clock"
)

func TestPeriodic_RoundTripAcrossSeveralCycles(t *testing.T) {
	m := clock.NewPeriodic(0, 1000, 200, 1.0, 0)
	for _, g := range []clock.Time{0, 1, 50, 199, 200, 500, 999, 1000, 1500, 2999, -500, -1000} {
		local := m.GlobalToLocalTime(g)
		got := m.LocalToGlobalTime(local)
		require.InDelta(t, int64(g), int64(got), 2, "P1 round trip must hold within a tick of rounding for g=%d", g)
	}
}

func TestPeriodic_MonotonicIncreasing(t *testing.T) {
	m := clock.NewPeriodic(10, 1000, 200, 1.5, 0)
	prev := m.GlobalToLocalTime(-2000)
	for g := clock.Time(-1999); g <= 3000; g++ {
		cur := m.GlobalToLocalTime(g)
		require.GreaterOrEqual(t, int64(cur), int64(prev), "global_to_local_time must be non-decreasing at g=%d", g)
		prev = cur
	}
}

func TestPeriodic_RejectsBadParameters(t *testing.T) {
	require.Panics(t, func() { clock.NewPeriodic(0, 0, 1, 1, 0) })
	require.Panics(t, func() { clock.NewPeriodic(0, 1, 0, 1, 0) })
	require.Panics(t, func() { clock.NewPeriodic(0, 1, 1, 0, 0) })
}
