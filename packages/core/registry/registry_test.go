package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockdomain/ltsim/packages/core/clock"
	"github.com/clockdomain/ltsim/packages/core/registry"
)

func TestEntityRegistry_RegisterAndLookup(t *testing.T) {
	reg := registry.New()
	lc := clock.NewLocalClock(1, clock.DefaultAffine())

	_, ok := reg.Lookup(1)
	require.False(t, ok)

	reg.Register(1, lc)
	got, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Same(t, lc, got)
	assert.Equal(t, 1, reg.Len())
}

func TestEntityRegistry_RegisterTwiceReplaces(t *testing.T) {
	reg := registry.New()
	first := clock.NewLocalClock(1, clock.DefaultAffine())
	second := clock.NewLocalClock(1, clock.NewAffine(3, 0))

	reg.Register(1, first)
	reg.Register(1, second)

	got, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, reg.Len())
}

func TestEntityRegistry_MustLookupPanicsOnMiss(t *testing.T) {
	reg := registry.New()
	assert.Panics(t, func() {
		reg.MustLookup(99)
	})
}

func TestEntityRegistry_Unregister(t *testing.T) {
	reg := registry.New()
	lc := clock.NewLocalClock(1, clock.DefaultAffine())
	reg.Register(1, lc)

	reg.Unregister(1)
	_, ok := reg.Lookup(1)
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestEntityRegistry_NoEntitySentinel(t *testing.T) {
	assert.EqualValues(t, 0xFFFFFFFF, registry.NoEntity)
}
