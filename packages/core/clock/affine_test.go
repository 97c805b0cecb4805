package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockdomain/ltsim/packages/core/clock"
)

func TestAffine_RoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		frequency float64
		offset    clock.Time
		global    clock.Time
	}{
		{"identity", 1, 0, 100},
		{"half-speed", 0.5, 0, 6},
		{"double-speed", 2, 0, 3},
		{"offset", 1, 50, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := clock.NewAffine(tc.frequency, tc.offset)
			local := m.GlobalToLocalTime(tc.global)
			require.Equal(t, tc.global, m.LocalToGlobalTime(local), "P1: round trip must be exact for these truncation-friendly values")
		})
	}
}

func TestAffine_DefaultIsLegacyFrequencyTwo(t *testing.T) {
	m := clock.DefaultAffine()
	assert.Equal(t, 2.0, m.Frequency())
	assert.Equal(t, clock.Time(0), m.Offset())
}

func TestAffine_DelayComposition(t *testing.T) {
	m := clock.NewAffine(0.5, 0)
	// P2: delay(now+d) = delay(now) + translate(d), to within rounding.
	got := m.GlobalToLocalDelay(0, 6)
	assert.Equal(t, clock.Duration(3), got)
}

func TestAffine_ZeroFrequencyPanics(t *testing.T) {
	assert.Panics(t, func() { clock.NewAffine(0, 0) })
}

func TestAffine_S1SingleEntitySchedule(t *testing.T) {
	// S1: f=0.5, schedule(local=2s) at global 0 -> local delay 2s should
	// require a global delay of 4s.
	m := clock.NewAffine(0.5, 0)
	globalDelay := m.LocalToGlobalDelay(0, 2)
	assert.EqualValues(t, 4, globalDelay)
}
