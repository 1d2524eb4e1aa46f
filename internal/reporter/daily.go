// Package reporter implements the daily text report and the
// materialized-view-refresh/log-pruning housekeeping cron.
package reporter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/agentsession"
	"github.com/arkeep-io/fleethub/internal/fleetdb"
	"github.com/arkeep-io/fleethub/internal/registry"
)

// DB is the subset of *fleetdb.Actor the daily reporter needs.
type DB interface {
	CheckConnection(ctx context.Context) error
}

// Notifier is the subset of notify.Service the daily reporter needs.
type Notifier interface {
	Info(networkID, subject, body string)
}

// Daily runs the once-per-UTC-day report loop: wake every 1000 seconds,
// detect a UTC date change, and ship one text summary per transition.
type Daily struct {
	networkID string
	db        DB
	registry  *registry.Registry
	noti      Notifier
	logger    *zap.Logger

	quit chan struct{}
}

func NewDaily(networkID string, db DB, reg *registry.Registry, noti Notifier, logger *zap.Logger) *Daily {
	return &Daily{
		networkID: networkID,
		db:        db,
		registry:  reg,
		noti:      noti,
		logger:    logger.Named("daily-reporter"),
		quit:      make(chan struct{}),
	}
}

func (d *Daily) Stop() { close(d.quit) }

// Run polls every 1000s for a UTC date change and sends one report per
// transition.
func (d *Daily) Run(ctx context.Context) {
	ticker := time.NewTicker(1000 * time.Second)
	defer ticker.Stop()

	currentDate := time.Now().UTC().Format("2006-01-02")
	for {
		select {
		case <-ticker.C:
			newDate := time.Now().UTC().Format("2006-01-02")
			if newDate != currentDate {
				d.send(ctx)
			}
			currentDate = newDate
		case <-ctx.Done():
			return
		case <-d.quit:
			return
		}
	}
}

func (d *Daily) send(ctx context.Context) {
	var lines []string
	lines = append(lines, "fleethub is running")

	if err := d.db.CheckConnection(ctx); err != nil {
		lines = append(lines, fmt.Sprintf("DB connection has an error: %v", err))
	} else {
		lines = append(lines, "DB is connected")
	}

	sessions, err := d.registry.Snapshot(ctx)
	if err != nil {
		d.logger.Error("failed to snapshot registry for daily report", zap.Error(err))
	}
	for _, sess := range sessions {
		lines = append(lines, clientReportLines(sess.State())...)
		sess.ResetMaxMemoryUsage()
	}

	d.noti.Info(d.networkID, "fleethub daily report", strings.Join(lines, "\n"))
}

func clientReportLines(st agentsession.State) []string {
	if st.IsInitializing() {
		return nil
	}

	lines := []string{
		fmt.Sprintf("Client: %s", st.Name),
		fmt.Sprintf("  address: %s", st.Address),
		fmt.Sprintf("  status: %s", st.Status),
	}

	if st.IsNormal() && st.RecentUpdate != nil {
		u := st.RecentUpdate
		lines = append(lines, fmt.Sprintf("  peer count: %d", u.NumberOfPeers))
		if u.BestBlockNumber != nil {
			lines = append(lines, fmt.Sprintf("  best block number: %d", *u.BestBlockNumber))
		} else {
			lines = append(lines, "  best block number: unknown")
		}
		lines = append(lines, diskUsageLine(u.DiskUsages))
	}

	if st.MaxMemoryUsage != nil {
		m := st.MaxMemoryUsage
		totalMB := m.Total / 1_000_000
		usedMB := (m.Total - m.Available) / 1_000_000
		lines = append(lines, fmt.Sprintf("  memory usage: %d MB / %d MB", usedMB, totalMB))
	}

	return lines
}

func diskUsageLine(disks []fleetdb.HardwareUsage) string {
	if len(disks) == 0 {
		return "  available disk: unknown"
	}
	if len(disks) == 1 {
		return fmt.Sprintf("  available disk: %d MB", disks[0].Available/1_000_000)
	}
	var total int64
	parts := make([]string, len(disks))
	for i, d := range disks {
		mb := d.Available / 1_000_000
		total += mb
		parts[i] = fmt.Sprintf("%d", mb)
	}
	return fmt.Sprintf("  available disk: %d(%s) MB", total, strings.Join(parts, " + "))
}
