package fleetdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GraphPeriod selects the time-bucket column/view for graph queries.
type GraphPeriod string

const (
	PeriodMinutes5 GraphPeriod = "Minutes5"
	PeriodHour     GraphPeriod = "Hour"
	PeriodDay      GraphPeriod = "Day"
)

func (p GraphPeriod) viewName() (string, error) {
	switch p {
	case PeriodMinutes5:
		return "network_usage_5min", nil
	case PeriodHour:
		return "network_usage_hourly", nil
	case PeriodDay:
		return "network_usage_daily", nil
	default:
		return "", fmt.Errorf("fleetdb: unknown graph period %q", p)
	}
}

// GraphCommonArgs bounds a graph query to a time range and bucket period.
type GraphCommonArgs struct {
	Period GraphPeriod
	From   time.Time
	To     time.Time
}

// GraphRow is one (key, time, value) aggregate point.
type GraphRow struct {
	Key   string
	Time  string
	Value float64
}

type graphQueryCmd struct {
	args      GraphCommonArgs
	node      string // optional node filter
	groupBy   string // "node", "extension", or "peer" (peer == target_ip)
	aggregate string // "sum" or "avg"
	reply     chan graphQueryResult
}

type graphQueryResult struct {
	rows []GraphRow
	err  error
}

func (c *graphQueryCmd) exec(a *Actor) {
	view, err := c.args.Period.viewName()
	if err != nil {
		c.reply <- graphQueryResult{err: err}
		return
	}

	col := c.groupBy
	if col == "peer" {
		col = "target_ip"
	}
	aggExpr := "SUM(total_bytes)"
	if c.aggregate == "avg" {
		aggExpr = "AVG(total_bytes)"
	}

	q := a.db.Table(view).
		Select(fmt.Sprintf("%s AS key, bucket AS time, %s AS value", col, aggExpr)).
		Where("bucket > ? AND bucket < ?", c.args.From.UTC().Format(time.RFC3339), c.args.To.UTC().Format(time.RFC3339)).
		Group(fmt.Sprintf("%s, bucket", col))

	if c.node != "" {
		q = q.Where("node = ?", c.node)
	}

	var out []GraphRow
	err = q.Find(&out).Error
	c.reply <- graphQueryResult{rows: out, err: err}
}

func (a *Actor) queryGraph(ctx context.Context, args GraphCommonArgs, node, groupBy, aggregate string) ([]GraphRow, error) {
	cmd := &graphQueryCmd{args: args, node: node, groupBy: groupBy, aggregate: aggregate, reply: make(chan graphQueryResult, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return nil, err
	}
	res := <-cmd.reply
	return res.rows, res.err
}

// GraphNetworkOutAllNode returns summed outbound bytes per node
// (graph_network_out_all_node).
func (a *Actor) GraphNetworkOutAllNode(ctx context.Context, args GraphCommonArgs) ([]GraphRow, error) {
	return a.queryGraph(ctx, args, "", "node", "sum")
}

// GraphNetworkOutAllNodeAvg is the averaged counterpart
// (graph_network_out_all_node_avg).
func (a *Actor) GraphNetworkOutAllNodeAvg(ctx context.Context, args GraphCommonArgs) ([]GraphRow, error) {
	return a.queryGraph(ctx, args, "", "node", "avg")
}

// GraphNetworkOutNodeExtension breaks one node's outbound traffic down by
// extension (graph_network_out_node_extension).
func (a *Actor) GraphNetworkOutNodeExtension(ctx context.Context, node string, args GraphCommonArgs) ([]GraphRow, error) {
	return a.queryGraph(ctx, args, node, "extension", "sum")
}

// GraphNetworkOutNodePeer breaks one node's outbound traffic down by peer
// (graph_network_out_node_peer).
func (a *Actor) GraphNetworkOutNodePeer(ctx context.Context, node string, args GraphCommonArgs) ([]GraphRow, error) {
	return a.queryGraph(ctx, args, node, "peer", "sum")
}

// ─── write paths ────────────────────────────────────────────────────────

type writeNetworkUsageCmd struct {
	node      string
	extension string
	targetIP  string
	bytes     int64
	reply     chan error
}

func (c *writeNetworkUsageCmd) exec(a *Actor) {
	rec := NetworkUsageRecord{
		ID:        uuid.New(),
		Time:      time.Now().UTC(),
		Node:      c.node,
		Extension: c.extension,
		TargetIP:  c.targetIP,
		Bytes:     c.bytes,
	}
	c.reply <- a.db.Create(&rec).Error
}

// WriteNetworkUsage records one raw network-usage sample from a monitor tick.
func (a *Actor) WriteNetworkUsage(ctx context.Context, node, extension, targetIP string, bytes int64) error {
	cmd := &writeNetworkUsageCmd{node: node, extension: extension, targetIP: targetIP, bytes: bytes, reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

type writePeerCountCmd struct {
	node  string
	count int
	reply chan error
}

func (c *writePeerCountCmd) exec(a *Actor) {
	rec := PeerCountRecord{ID: uuid.New(), Time: time.Now().UTC(), Node: c.node, PeerCount: c.count}
	c.reply <- a.db.Create(&rec).Error
}

// WritePeerCount records one peer-count sample.
func (a *Actor) WritePeerCount(ctx context.Context, node string, count int) error {
	cmd := &writePeerCountCmd{node: node, count: count, reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}
