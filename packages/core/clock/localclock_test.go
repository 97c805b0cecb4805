package clock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clockdomain/ltsim/packages/core/clock"
)

// fakeHost is a minimal clock.Host for exercising LocalClock in
// isolation, without pulling in the full simulator.
type fakeHost struct {
	now          clock.Time
	rescheduled  []clock.EventID
	supersededBy map[uint32]clock.EventID
	nextUID      uint32
}

func newFakeHost(now clock.Time) *fakeHost {
	return &fakeHost{now: now, supersededBy: make(map[uint32]clock.EventID), nextUID: 10}
}

func (h *fakeHost) Now() clock.Time { return h.now }

func (h *fakeHost) Reschedule(context uint32, localDelay clock.Duration, payload clock.Payload) clock.EventID {
	h.nextUID++
	id := clock.NewEventID(h.nextUID, context, h.now+clock.Time(localDelay), payload)
	h.rescheduled = append(h.rescheduled, id)
	return id
}

func (h *fakeHost) Supersede(oldUID uint32, newID clock.EventID) {
	h.supersededBy[oldUID] = newID
}

type noopPayload struct{ cancelled bool }

func (p *noopPayload) Invoke()          {}
func (p *noopPayload) Cancel()          { p.cancelled = true }
func (p *noopPayload) IsCancelled() bool { return p.cancelled }
func (p *noopPayload) Ref()             {}
func (p *noopPayload) Unref()           {}

func TestLocalClock_InsertEventEvictsExpired(t *testing.T) {
	host := newFakeHost(5)
	lc := clock.NewLocalClock(1, clock.DefaultAffine())
	lc.BindHost(host)

	// Scheduled for global 0, now the simulator is already at global 5:
	// this handle is expired and must be pruned before the live one.
	expiredPayload := &noopPayload{}
	expired := clock.NewEventID(5, 1, 0, expiredPayload)
	lc.InsertEvent(expired, 5)

	livePayload := &noopPayload{}
	live := clock.NewEventID(6, 1, 10, livePayload)
	lc.InsertEvent(live, 5)

	lc.SetClock(clock.NewAffine(1, 0))

	// Only the live handle should have been re-expressed under the new
	// model; the expired one must not appear in the supersession table.
	require.Len(t, host.rescheduled, 1)
	_, expiredSuperseded := host.supersededBy[5]
	require.False(t, expiredSuperseded)
	_, liveSuperseded := host.supersededBy[6]
	require.True(t, liveSuperseded)
}

func TestLocalClock_SetClock_S3Scenario(t *testing.T) {
	// S3: f=0.5, schedule(local=3s) at global 0 -> scheduled global 6s.
	// At global 4s, replace model with f=0.25.
	// remaining local = 0.5*(6-4) = 1, computed via GlobalToLocalDelay.
	host := newFakeHost(4)
	oldModel := clock.NewAffine(0.5, 0)
	lc := clock.NewLocalClock(1, oldModel)
	lc.BindHost(host)

	payload := &noopPayload{}
	outstanding := clock.NewEventID(42, 1, 6, payload)
	// Scheduled at global 6 and the clock is replaced at global 4, so the
	// event is still outstanding (not expired) when SetClock runs.
	lc.InsertEvent(outstanding, 0)

	newModel := clock.NewAffine(0.25, 0)
	lc.SetClock(newModel)

	require.Len(t, host.rescheduled, 1)
	require.Len(t, host.supersededBy, 1)
	newID, ok := host.supersededBy[42]
	require.True(t, ok)
	require.Equal(t, host.rescheduled[0].UID, newID.UID)
}

func TestLocalClock_GetLocalTimeDelegatesToModel(t *testing.T) {
	host := newFakeHost(10)
	lc := clock.NewLocalClock(1, clock.NewAffine(2, 0))
	lc.BindHost(host)
	require.EqualValues(t, 20, lc.GetLocalTime())
}

// SetClock on a LocalClock with no bound Host (spec.md §7's
// wrong-runtime case) must not panic: the model swaps, but nothing is
// re-scheduled since there is no simulator to re-enter.
func TestLocalClock_SetClock_NoHostDoesNotPanic(t *testing.T) {
	lc := clock.NewLocalClock(1, clock.NewAffine(1, 0))

	require.NotPanics(t, func() {
		lc.SetClock(clock.NewAffine(2, 0))
	})
	require.Equal(t, 2.0, lc.Model().(*clock.Affine).Frequency())
}
