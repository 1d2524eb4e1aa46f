package fleetdb

import (
	"context"
	"time"
)

// refreshViewsCmd re-executes the bucket views' backing queries. SQLite
// views are plain (recomputed on read), so this is a no-op there; on
// Postgres the equivalent views are created as MATERIALIZED and this
// issues REFRESH MATERIALIZED VIEW CONCURRENTLY for each, keeping the
// dashboard's graph queries fast without scanning raw network_usage rows
// per request.
type refreshViewsCmd struct {
	reply chan error
}

var materializedViews = []string{"network_usage_5min", "network_usage_hourly", "network_usage_daily"}

func (c *refreshViewsCmd) exec(a *Actor) {
	if a.driver != "postgres" {
		c.reply <- nil
		return
	}
	for _, v := range materializedViews {
		if err := a.db.Exec("REFRESH MATERIALIZED VIEW CONCURRENTLY " + v).Error; err != nil {
			c.reply <- err
			return
		}
	}
	c.reply <- nil
}

// RefreshMaterializedViews is called periodically by internal/reporter.Cron.
func (a *Actor) RefreshMaterializedViews(ctx context.Context) error {
	cmd := &refreshViewsCmd{reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

type pruneLogsCmd struct {
	olderThan time.Time
	reply     chan error
}

func (c *pruneLogsCmd) exec(a *Actor) {
	c.reply <- a.db.Where("timestamp < ?", c.olderThan).Delete(&LogRecord{}).Error
}

// PruneLogs deletes log rows older than retention, bounding local storage
// growth.
func (a *Actor) PruneLogs(ctx context.Context, retention time.Duration) error {
	cmd := &pruneLogsCmd{olderThan: time.Now().UTC().Add(-retention), reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}
