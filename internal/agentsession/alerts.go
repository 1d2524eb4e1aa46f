package agentsession

import (
	"fmt"
	"strings"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
	"github.com/arkeep-io/fleethub/internal/metrics"
)

const (
	requiredPeers   = 5
	peerStallTicks  = 12 // ~2 minutes at the 10s monitor cadence
	blockStallTicks = 3  // ~30 seconds

	lowDiskBytes   = 3_000_000_000
	lowMemoryBytes = 256_000_000
)

// alertState holds the sliding counters and edge-triggered flags that drive
// debounced alerting, one set per monitored node.
type alertState struct {
	lowPeerCount    int
	noBlockUpdate   int
	prevBestBlock   int64
	diskAlertSent   bool
	memoryAlertSent bool
}

// runAlerts evaluates one monitor tick's outcome against the alert
// thresholds and fires at most one notification per condition per tick.
// The peer and block counters fire exactly when they first reach their
// threshold; the disk and memory flags are edge-triggered and rearm only
// on an unambiguous recovery.
func (s *Session) runAlerts(nodeName string, res UpdateResult, hardware fleetdb.HardwareInfo) {
	a := &s.alerts

	if res.NumberOfPeers < requiredPeers {
		a.lowPeerCount++
	} else {
		a.lowPeerCount = 0
	}
	if a.lowPeerCount == peerStallTicks {
		metrics.AlertsFiredTotal.WithLabelValues("low_peer_count").Inc()
		s.noti.Warn(res.NetworkID, fmt.Sprintf(
			"%s failed to establish enough connections in two minutes. (current connection count/required connection count) = (%d/%d)",
			nodeName, res.NumberOfPeers, requiredPeers))
	}

	if res.BestBlockNumber != nil {
		if *res.BestBlockNumber > a.prevBestBlock {
			a.noBlockUpdate = 0
			a.prevBestBlock = *res.BestBlockNumber
		} else {
			a.noBlockUpdate++
		}
		if a.noBlockUpdate == blockStallTicks {
			metrics.AlertsFiredTotal.WithLabelValues("no_block_update").Inc()
			s.noti.Warn(res.NetworkID, fmt.Sprintf("%s no block update in 30 seconds.", nodeName))
		}
	}

	if !a.diskAlertSent {
		var low []fleetdb.HardwareUsage
		for _, d := range hardware.DiskUsage {
			if d.Total != 0 && d.Available < lowDiskBytes {
				low = append(low, d)
			}
		}
		if len(low) > 0 {
			parts := make([]string, len(low))
			for i, d := range low {
				parts[i] = fmt.Sprintf("%d", d.Available/1_000_000)
			}
			metrics.AlertsFiredTotal.WithLabelValues("low_disk").Inc()
			s.noti.Warn(res.NetworkID, fmt.Sprintf("%s has only %s MB free disk space.", nodeName, strings.Join(parts, ", ")))
			a.diskAlertSent = true
		}
	} else if allDisksHealthy(hardware.DiskUsage) {
		a.diskAlertSent = false
	}

	if s.cfg.EnableMemoryAlarm {
		mem := hardware.MemoryUsage
		if !a.memoryAlertSent {
			if mem.Total != 0 && mem.Available < lowMemoryBytes {
				metrics.AlertsFiredTotal.WithLabelValues("low_memory").Inc()
				s.noti.Warn(res.NetworkID, fmt.Sprintf("%s has only %d MB free memory.", nodeName, mem.Available/1_000_000))
				a.memoryAlertSent = true
			}
		} else if mem.Available > lowMemoryBytes {
			a.memoryAlertSent = false
		}
	}
}

func allDisksHealthy(disks []fleetdb.HardwareUsage) bool {
	for _, d := range disks {
		if d.Total != 0 && d.Available < lowDiskBytes {
			return false
		}
	}
	return true
}
