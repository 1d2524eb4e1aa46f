package agentsession

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

type fakeNotifier struct {
	warnings []string
}

func (f *fakeNotifier) Warn(networkID, message string) {
	f.warnings = append(f.warnings, message)
}

func newAlertSession(noti *fakeNotifier) *Session {
	return &Session{noti: noti, cfg: Config{}}
}

// TestLowPeerCountAlertDebounce: the low-peer-count alert fires exactly once after peerStallTicks consecutive stalled ticks,
// stays silent on every tick after that until the count resets, and can
// fire again after a fresh run of stalled ticks.
func TestLowPeerCountAlertDebounce(t *testing.T) {
	noti := &fakeNotifier{}
	s := newAlertSession(noti)

	res := UpdateResult{NetworkID: "net-1", NumberOfPeers: 0}
	hw := fleetdb.HardwareInfo{}

	for i := 1; i < peerStallTicks; i++ {
		s.runAlerts("node-a", res, hw)
		require.Emptyf(t, noti.warnings, "tick %d: expected no alert yet", i)
	}

	s.runAlerts("node-a", res, hw)
	require.Lenf(t, noti.warnings, 1, "expected exactly one alert after %d stalled ticks", peerStallTicks)

	for i := 0; i < 10; i++ {
		s.runAlerts("node-a", res, hw)
	}
	require.Len(t, noti.warnings, 1, "expected the alert to stay silent once fired")

	// Recovery resets the counter.
	s.runAlerts("node-a", UpdateResult{NetworkID: "net-1", NumberOfPeers: 10}, hw)
	require.Zero(t, s.alerts.lowPeerCount, "expected lowPeerCount to reset on recovery")

	// A fresh run of stalls fires exactly one more alert.
	for i := 1; i < peerStallTicks; i++ {
		s.runAlerts("node-a", res, hw)
	}
	require.Len(t, noti.warnings, 1, "expected still no second alert before the fresh threshold")

	s.runAlerts("node-a", res, hw)
	require.Len(t, noti.warnings, 2, "expected a second alert after a fresh stall run")
}

// TestLowMemoryAlertGatedByConfig confirms the memory alarm never fires
// unless EnableMemoryAlarm is set.
func TestLowMemoryAlertGatedByConfig(t *testing.T) {
	noti := &fakeNotifier{}
	s := newAlertSession(noti)
	s.cfg.EnableMemoryAlarm = false

	hw := fleetdb.HardwareInfo{MemoryUsage: fleetdb.HardwareUsage{Total: 1_000_000_000, Available: 1000}}
	s.runAlerts("node-a", UpdateResult{NetworkID: "net-1", NumberOfPeers: 10}, hw)
	require.Empty(t, noti.warnings, "expected no memory alert with EnableMemoryAlarm=false")

	s.cfg.EnableMemoryAlarm = true
	s.runAlerts("node-a", UpdateResult{NetworkID: "net-1", NumberOfPeers: 10}, hw)
	require.Len(t, noti.warnings, 1, "expected a memory alert once enabled")
}
