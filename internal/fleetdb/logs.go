package fleetdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LogOrder selects ascending or descending timestamp order.
type LogOrder string

const (
	OrderAsc  LogOrder = "ASC"
	OrderDesc LogOrder = "DESC"
)

// LogFilter holds the filter/pagination parameters for a log query.
type LogFilter struct {
	NodeNames   []string
	Levels      []string
	Targets     []string
	ThreadName  string
	Search      string
	From        *time.Time
	To          *time.Time
	OrderBy     LogOrder
	ItemPerPage int
	Page        int
}

// StructuredLog is one inbound log line from shell_getCodeChainLog. The
// timestamp arrives as an RFC 3339 string with fractional seconds.
type StructuredLog struct {
	Level     string
	Target    string
	Thread    string
	Message   string
	Timestamp string
}

// writeLogsSync parses and persists a batch of agent-reported log lines
// for node. CreateInBatches caps each multi-values INSERT at 1000 rows, so
// no custom chunking loop is needed here.
func (a *Actor) writeLogsSync(node string, logs []StructuredLog) error {
	records := make([]LogRecord, 0, len(logs))
	for _, l := range logs {
		ts, err := time.Parse(time.RFC3339Nano, l.Timestamp)
		if err != nil {
			return fmt.Errorf("fleetdb: parse log timestamp %q: %w", l.Timestamp, err)
		}
		records = append(records, LogRecord{
			ID:        uuid.New(),
			Node:      node,
			Level:     strings.ToUpper(l.Level),
			Target:    l.Target,
			Thread:    l.Thread,
			Message:   l.Message,
			Timestamp: ts,
		})
	}
	if len(records) == 0 {
		return nil
	}
	return a.db.CreateInBatches(records, 1000).Error
}

type writeLogsCmd struct {
	node  string
	logs  []StructuredLog
	reply chan error
}

func (c *writeLogsCmd) exec(a *Actor) {
	c.reply <- a.writeLogsSync(c.node, c.logs)
}

// WriteLogs persists a batch of log lines reported by node's agent.
func (a *Actor) WriteLogs(ctx context.Context, node string, logs []StructuredLog) error {
	cmd := &writeLogsCmd{node: node, logs: logs, reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

type getLogsCmd struct {
	filter LogFilter
	reply  chan getLogsResult
}

type getLogsResult struct {
	logs []LogRecord
	err  error
}

func (c *getLogsCmd) exec(a *Actor) {
	q := a.db.Model(&LogRecord{})

	if len(c.filter.NodeNames) > 0 {
		q = q.Where("node IN ?", c.filter.NodeNames)
	}
	if len(c.filter.Levels) > 0 {
		upper := make([]string, len(c.filter.Levels))
		for i, l := range c.filter.Levels {
			upper[i] = strings.ToUpper(l)
		}
		q = q.Where("level IN ?", upper)
	}
	if len(c.filter.Targets) > 0 {
		q = q.Where("target IN ?", c.filter.Targets)
	}
	if c.filter.ThreadName != "" {
		q = q.Where("thread = ?", c.filter.ThreadName)
	}
	if c.filter.Search != "" {
		pattern := "%" + c.filter.Search + "%"
		if a.driver == "postgres" {
			q = q.Where("message ILIKE ?", pattern)
		} else {
			// SQLite's LIKE is already case-insensitive for ASCII by default.
			q = q.Where("message LIKE ?", pattern)
		}
	}
	if c.filter.From != nil {
		q = q.Where("timestamp >= ?", *c.filter.From)
	}
	if c.filter.To != nil {
		q = q.Where("timestamp <= ?", *c.filter.To)
	}

	order := c.filter.OrderBy
	if order == "" {
		order = OrderAsc
	}
	q = q.Order("timestamp " + string(order))

	perPage := c.filter.ItemPerPage
	if perPage <= 0 {
		perPage = 100
	}
	page := c.filter.Page
	if page <= 0 {
		page = 1
	}
	q = q.Limit(perPage).Offset((page - 1) * perPage)

	var out []LogRecord
	err := q.Find(&out).Error
	c.reply <- getLogsResult{logs: out, err: err}
}

// GetLogs executes a filtered, paginated log query.
func (a *Actor) GetLogs(ctx context.Context, filter LogFilter) ([]LogRecord, error) {
	cmd := &getLogsCmd{filter: filter, reply: make(chan getLogsResult, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return nil, err
	}
	res := <-cmd.reply
	return res.logs, res.err
}

type getLogTargetsCmd struct {
	reply chan getLogTargetsResult
}

type getLogTargetsResult struct {
	targets []string
	err     error
}

func (c *getLogTargetsCmd) exec(a *Actor) {
	var targets []string
	err := a.db.Model(&LogRecord{}).Distinct("target").Pluck("target", &targets).Error
	c.reply <- getLogTargetsResult{targets: targets, err: err}
}

// GetLogTargets enumerates distinct log targets across all stored logs.
func (a *Actor) GetLogTargets(ctx context.Context) ([]string, error) {
	cmd := &getLogTargetsCmd{reply: make(chan getLogTargetsResult, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return nil, err
	}
	res := <-cmd.reply
	return res.targets, res.err
}
