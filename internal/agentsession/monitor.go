package agentsession

import (
	"context"
	"fmt"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// monitorTick polls the agent once: node info, chain-facing queries when
// the node is running, a hardware sample, then one UpdateClient commit plus
// the side records. A returned error ends the session (its caller treats
// that as a cleanup trigger).
func (s *Session) monitorTick(ctx context.Context) error {
	info, err := s.client.AgentGetInfo(ctx)
	if err != nil {
		return fmt.Errorf("agent_getInfo: %w", err)
	}
	status := fleetdb.NodeStatus(info.Status)

	var (
		peers     []string
		best      *fleetdb.BlockID
		version   fleetdb.NodeVersion
		pending   []string
		whitelist fleetdb.NameList
		blacklist fleetdb.NameList
		usage     []NetworkUsageSample
		networkID string
	)
	version.CommitHash = info.CodechainCommitHash
	version.BinaryChecksum = info.CodechainBinaryChecksum

	if status == fleetdb.StatusRun {
		if peers, err = s.client.GetEstablishedPeers(ctx); err != nil {
			return fmt.Errorf("net_getEstablishedPeers: %w", err)
		}
		if best, err = s.client.GetBestBlockID(ctx); err != nil {
			return fmt.Errorf("chain_getBestBlockId: %w", err)
		}
		if v, err := s.client.Version(ctx); err != nil {
			return fmt.Errorf("version: %w", err)
		} else {
			version.Version = v
		}
		if h, err := s.client.CommitHash(ctx); err != nil {
			return fmt.Errorf("commitHash: %w", err)
		} else if h != "" {
			version.CommitHash = h
		}
		if pending, err = s.client.GetPendingTransactions(ctx); err != nil {
			return fmt.Errorf("chain_getPendingParcels: %w", err)
		}
		if whitelist, err = s.client.GetWhitelist(ctx); err != nil {
			return fmt.Errorf("net_getWhitelist: %w", err)
		}
		if blacklist, err = s.client.GetBlacklist(ctx); err != nil {
			return fmt.Errorf("net_getBlacklist: %w", err)
		}
		if usage, err = s.client.GetNetworkUsage(ctx); err != nil {
			return fmt.Errorf("net_getNetworkUsage: %w", err)
		}
		if networkID, err = s.client.GetNetworkID(ctx); err != nil {
			return fmt.Errorf("net_getNetworkId: %w", err)
		}
	}

	hardware, err := s.client.HardwareGet(ctx)
	if err != nil {
		return fmt.Errorf("hardware_get: %w", err)
	}

	snap := fleetdb.ClientQueryResult{
		Name:           info.Name,
		Address:        info.Address,
		Status:         status,
		Version:        version,
		Peers:          peers,
		Best:           best,
		PendingParcels: pending,
		Whitelist:      whitelist,
		Blacklist:      blacklist,
		Hardware:       &hardware,
	}
	if err := s.db.UpdateClient(ctx, snap); err != nil {
		return fmt.Errorf("UpdateClient: %w", err)
	}

	for _, u := range usage {
		if err := s.db.WriteNetworkUsage(ctx, info.Name, u.Extension, u.TargetIP, u.Bytes); err != nil {
			return fmt.Errorf("WriteNetworkUsage: %w", err)
		}
	}
	if status == fleetdb.StatusRun {
		if err := s.db.WritePeerCount(ctx, info.Name, len(peers)); err != nil {
			return fmt.Errorf("WritePeerCount: %w", err)
		}
	}

	if logs, err := s.client.ShellGetCodeChainLog(ctx, []string{"warn", "error"}); err != nil {
		return fmt.Errorf("shell_getCodeChainLog: %w", err)
	} else if len(logs) > 0 {
		if err := s.db.WriteLogs(ctx, info.Name, logs); err != nil {
			return fmt.Errorf("WriteLogs: %w", err)
		}
	}

	s.state.transition(NormalState(info.Name, info.Address, status))

	var bestNumber *int64
	if best != nil {
		n := best.Number
		bestNumber = &n
	}
	result := UpdateResult{
		NetworkID:       networkID,
		NumberOfPeers:   len(peers),
		BestBlockNumber: bestNumber,
		MemoryUsage:     hardware.MemoryUsage,
		DiskUsages:      hardware.DiskUsage,
	}
	s.state.updateRecentUpdate(result)

	s.runAlerts(info.Name, result, hardware)

	return nil
}
