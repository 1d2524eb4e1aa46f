package agentsession

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// TestMonotoneMaxMemoryUsage: MaxMemoryUsage only ever moves toward lower
// Available (i.e. toward higher usage) across updateRecentUpdate calls,
// never back up, until explicitly reset.
func TestMonotoneMaxMemoryUsage(t *testing.T) {
	var s sharedState
	s.v = InitializingState()

	s.updateRecentUpdate(UpdateResult{MemoryUsage: fleetdb.HardwareUsage{Total: 1_000_000_000, Available: 800_000_000}})
	require.EqualValues(t, 800_000_000, s.Load().MaxMemoryUsage.Available)

	// A less-severe sample (higher Available) must not move the tracker.
	s.updateRecentUpdate(UpdateResult{MemoryUsage: fleetdb.HardwareUsage{Total: 1_000_000_000, Available: 900_000_000}})
	require.EqualValues(t, 800_000_000, s.Load().MaxMemoryUsage.Available, "expected MaxMemoryUsage to stay put")

	// A more-severe sample (lower Available) must move the tracker down.
	s.updateRecentUpdate(UpdateResult{MemoryUsage: fleetdb.HardwareUsage{Total: 1_000_000_000, Available: 300_000_000}})
	require.EqualValues(t, 300_000_000, s.Load().MaxMemoryUsage.Available, "expected MaxMemoryUsage to drop")

	s.resetMaxMemoryUsage()
	require.Nil(t, s.Load().MaxMemoryUsage, "expected resetMaxMemoryUsage to clear the tracker")

	// After a reset the next sample re-seeds the tracker regardless of value.
	s.updateRecentUpdate(UpdateResult{MemoryUsage: fleetdb.HardwareUsage{Total: 1_000_000_000, Available: 999_000_000}})
	require.EqualValues(t, 999_000_000, s.Load().MaxMemoryUsage.Available, "expected the tracker to re-seed after reset")
}

// TestStateEqualIgnoresTransientFields confirms stateEqual (used to decide
// whether a state transition is dashboard-visible) does not treat a changed
// RecentUpdate/MaxMemoryUsage as a state change.
func TestStateEqualIgnoresTransientFields(t *testing.T) {
	a := NormalState("node-a", "10.0.0.1:30303", fleetdb.StatusRun)
	b := a
	b.RecentUpdate = &UpdateResult{NumberOfPeers: 3}
	b.MaxMemoryUsage = &fleetdb.HardwareUsage{Available: 1}

	require.True(t, stateEqual(a, b), "expected stateEqual to ignore RecentUpdate/MaxMemoryUsage differences")

	c := NormalState("node-a", "10.0.0.1:30303", fleetdb.StatusStop)
	require.False(t, stateEqual(a, c), "expected stateEqual to detect a real Status change")
}

// TestTransitionPreservesWatermark: re-deriving the session state on a
// routine monitor tick — whether unchanged or with a real status change —
// must never drop the max-memory watermark or the last update result.
func TestTransitionPreservesWatermark(t *testing.T) {
	var s sharedState
	s.v = NormalState("node-a", "10.0.0.1:30303", fleetdb.StatusRun)
	s.updateRecentUpdate(UpdateResult{
		NumberOfPeers: 7,
		MemoryUsage:   fleetdb.HardwareUsage{Total: 1_000_000_000, Available: 150_000_000},
	})

	// Same state re-derived: a no-op.
	s.transition(NormalState("node-a", "10.0.0.1:30303", fleetdb.StatusRun))
	require.NotNil(t, s.Load().MaxMemoryUsage, "unchanged transition dropped the watermark")
	require.EqualValues(t, 150_000_000, s.Load().MaxMemoryUsage.Available)

	// A real status change: identity fields replaced, transients carried.
	s.transition(NormalState("node-a", "10.0.0.1:30303", fleetdb.StatusStop))
	st := s.Load()
	require.Equal(t, fleetdb.StatusStop, st.Status)
	require.NotNil(t, st.MaxMemoryUsage, "status transition dropped the watermark")
	require.NotNil(t, st.RecentUpdate, "status transition dropped the last update result")
	require.Equal(t, 7, st.RecentUpdate.NumberOfPeers)
}
