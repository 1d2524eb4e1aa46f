package fleetdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arkeep-io/fleethub/internal/metrics"
)

// Actor is the DB actor: a single goroutine serializing all database access
// and owning the in-memory fleet snapshot. Commands arrive on cmds and are
// processed one at a time; each carries its own reply channel.
type Actor struct {
	db     *gorm.DB
	driver string
	logger *zap.Logger

	cmds        chan command
	quit        chan struct{}
	subscribers []Subscriber

	// snapshot and claimed are touched only inside run() — no lock needed,
	// since every access is already serialized through the command channel.
	// claimed[name] holds only the peers name itself has reported in its
	// own UpdateClient calls (see addr.go's diffConnections); it is never
	// written to by any other name's update.
	snapshot map[string]ClientQueryResult
	claimed  map[string]map[string]struct{}
}

type command interface {
	exec(a *Actor)
}

// Open connects to the database, applies migrations, and returns a
// ready-to-run Actor. Call Run in its own goroutine.
func Open(cfg Config, logger *zap.Logger, subscribers ...Subscriber) (*Actor, error) {
	db, driver, sqlDB, err := openSingleConnection(cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(sqlDB, driver, logger); err != nil {
		return nil, err
	}

	return &Actor{
		db:          db,
		driver:      driver,
		logger:      logger.Named("fleetdb"),
		cmds:        make(chan command, 64),
		quit:        make(chan struct{}),
		subscribers: subscribers,
		snapshot:    make(map[string]ClientQueryResult),
		claimed:     make(map[string]map[string]struct{}),
	}, nil
}

// Run processes commands until Stop is called. Must be invoked in its own
// goroutine exactly once.
func (a *Actor) Run() {
	for {
		select {
		case cmd := <-a.cmds:
			cmd.exec(a)
		case <-a.quit:
			for {
				select {
				case cmd := <-a.cmds:
					cmd.exec(a)
				default:
					return
				}
			}
		}
	}
}

// Stop signals Run to exit after draining any command already accepted.
func (a *Actor) Stop() { close(a.quit) }

func (a *Actor) emit(ev Event) {
	switch ev.(type) {
	case ClientUpdated:
		metrics.EventsEmittedTotal.WithLabelValues("client_updated").Inc()
	case ConnectionChanged:
		metrics.EventsEmittedTotal.WithLabelValues("connection_changed").Inc()
	case ClientExtraUpdated:
		metrics.EventsEmittedTotal.WithLabelValues("client_extra_updated").Inc()
	}
	for _, s := range a.subscribers {
		s.OnEvent(ev)
	}
}

// submit enqueues cmd for the actor goroutine. The caller then selects on
// its own typed reply channel directly — submit only guards the enqueue
// step against a cancelled context or a stopped actor.
func (a *Actor) submit(ctx context.Context, cmd command) error {
	select {
	case a.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.quit:
		return fmt.Errorf("fleetdb: actor stopped")
	}
}

// ─── CheckConnection ──────────────────────────────────────────────────────

type checkConnectionCmd struct {
	reply chan error
}

func (c *checkConnectionCmd) exec(a *Actor) {
	sqlDB, err := a.db.DB()
	if err != nil {
		c.reply <- err
		return
	}
	c.reply <- sqlDB.PingContext(context.Background())
}

// CheckConnection pings the database (`SELECT 1` equivalent via the pool's
// own ping).
func (a *Actor) CheckConnection(ctx context.Context) error {
	cmd := &checkConnectionCmd{reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

// ─── InitializeClient (duplicate-name arbitration) ───────────────────────

type initializeClientCmd struct {
	snapshot ClientQueryResult
	reply    chan initializeResult
}

type initializeResult struct {
	admitted bool
	err      error
}

func (c *initializeClientCmd) exec(a *Actor) {
	before, existed := a.snapshot[c.snapshot.Name]

	// Arbitration rule:
	//  - unknown name: admit, fire ClientUpdated{nil, after}.
	//  - known, prior status != Error: refuse.
	//  - known, prior status == Error: overwrite, fire ClientUpdated{before, after}.
	if existed && before.Status != StatusError {
		c.reply <- initializeResult{admitted: false}
		return
	}

	after := c.snapshot.Clone()
	after.UpdatedAt = time.Now().UTC()
	a.snapshot[after.Name] = after

	if err := a.persistNode(after); err != nil {
		c.reply <- initializeResult{err: err}
		return
	}

	var beforePtr *ClientQueryResult
	if existed {
		b := before.Clone()
		beforePtr = &b
	}
	a.emit(ClientUpdated{Before: beforePtr, After: after.Clone()})
	c.reply <- initializeResult{admitted: true}
}

// InitializeClient admits or rejects a newly connecting agent session per
// the duplicate-name arbitration rule. Authoritative here, not in the
// session, to avoid a TOCTOU race when two agents connect for the same
// name at nearly the same time.
func (a *Actor) InitializeClient(ctx context.Context, snap ClientQueryResult) (bool, error) {
	cmd := &initializeClientCmd{snapshot: snap, reply: make(chan initializeResult, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return false, err
	}
	res := <-cmd.reply
	return res.admitted, res.err
}

// ─── UpdateClient ─────────────────────────────────────────────────────────

type updateClientCmd struct {
	snapshot ClientQueryResult
	reply    chan error
}

func (c *updateClientCmd) exec(a *Actor) {
	before, existed := a.snapshot[c.snapshot.Name]
	if !existed {
		c.reply <- fmt.Errorf("fleetdb: UpdateClient for %q requires prior InitializeClient", c.snapshot.Name)
		return
	}

	after := c.snapshot.Clone()
	after.UpdatedAt = time.Now().UTC()

	added, removed := a.diffConnections(after)
	a.snapshot[after.Name] = after

	if err := a.persistNode(after); err != nil {
		c.reply <- err
		return
	}

	if len(added) > 0 || len(removed) > 0 {
		a.emit(ConnectionChanged{Added: added, Removed: removed})
	}

	beforeCopy := before.Clone()
	a.emit(ClientUpdated{Before: &beforeCopy, After: after.Clone()})
	c.reply <- nil
}

// UpdateClient commits a monitor-loop tick's observations, computes the
// connection delta against all other known sessions, and fires
// ConnectionChanged (if non-empty) then ClientUpdated.
func (a *Actor) UpdateClient(ctx context.Context, snap ClientQueryResult) error {
	cmd := &updateClientCmd{snapshot: snap, reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

// ─── Read-only snapshot queries ───────────────────────────────────────────

type getClientCmd struct {
	name  string
	reply chan getClientResult
}

type getClientResult struct {
	result ClientQueryResult
	found  bool
}

func (c *getClientCmd) exec(a *Actor) {
	v, ok := a.snapshot[c.name]
	c.reply <- getClientResult{result: v.Clone(), found: ok}
}

// GetClient returns the current in-memory snapshot for name, or found=false
// if unknown.
func (a *Actor) GetClient(ctx context.Context, name string) (ClientQueryResult, bool, error) {
	cmd := &getClientCmd{name: name, reply: make(chan getClientResult, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return ClientQueryResult{}, false, err
	}
	res := <-cmd.reply
	return res.result, res.found, nil
}

type getClientsCmd struct {
	reply chan []ClientQueryResult
}

func (c *getClientsCmd) exec(a *Actor) {
	out := make([]ClientQueryResult, 0, len(a.snapshot))
	for _, v := range a.snapshot {
		out = append(out, v.Clone())
	}
	c.reply <- out
}

// GetClients returns every known node's current snapshot.
func (a *Actor) GetClients(ctx context.Context) ([]ClientQueryResult, error) {
	cmd := &getClientsCmd{reply: make(chan []ClientQueryResult, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return nil, err
	}
	return <-cmd.reply, nil
}

type getConnectionsCmd struct {
	reply chan []Connection
}

func (c *getConnectionsCmd) exec(a *Actor) {
	seen := make(map[[2]string]struct{})
	var out []Connection
	for a1, peers := range a.claimed {
		for b := range peers {
			key := pairKey(a1, b)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, Connection{NodeA: key[0], NodeB: key[1]})
		}
	}
	c.reply <- out
}

// GetConnections returns the union of both sides' claimed peer sets: an
// edge is included if either endpoint has claimed the other.
func (a *Actor) GetConnections(ctx context.Context) ([]Connection, error) {
	cmd := &getConnectionsCmd{reply: make(chan []Connection, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return nil, err
	}
	return <-cmd.reply, nil
}

// ─── NodeExtra ─────────────────────────────────────────────────────────────

type saveStartOptionCmd struct {
	name  string
	extra NodeExtra
	reply chan error
}

func (c *saveStartOptionCmd) exec(a *Actor) {
	var existing NodeExtraRecord
	tx := a.db.Where("name = ?", c.name).First(&existing)

	var beforePtr *NodeExtra
	if tx.Error == nil {
		before := NodeExtra{PrevEnv: existing.PrevEnv, PrevArgs: existing.PrevArgs}
		beforePtr = &before
	} else if tx.Error != gorm.ErrRecordNotFound {
		c.reply <- tx.Error
		return
	}

	rec := NodeExtraRecord{Name: c.name, PrevEnv: c.extra.PrevEnv, PrevArgs: c.extra.PrevArgs, UpdatedAt: time.Now().UTC()}
	if err := a.db.Save(&rec).Error; err != nil {
		c.reply <- err
		return
	}

	a.emit(ClientExtraUpdated{Name: c.name, Before: beforePtr, After: c.extra})
	c.reply <- nil
}

// SaveStartOption upserts the node's last-successful start invocation,
// replayed on reconnect when START_AT_CONNECT is set.
func (a *Actor) SaveStartOption(ctx context.Context, name string, extra NodeExtra) error {
	cmd := &saveStartOptionCmd{name: name, extra: extra, reply: make(chan error, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

type getClientExtraCmd struct {
	name  string
	reply chan getClientExtraResult
}

type getClientExtraResult struct {
	extra NodeExtra
	found bool
	err   error
}

func (c *getClientExtraCmd) exec(a *Actor) {
	var rec NodeExtraRecord
	tx := a.db.Where("name = ?", c.name).First(&rec)
	if tx.Error == gorm.ErrRecordNotFound {
		c.reply <- getClientExtraResult{found: false}
		return
	}
	if tx.Error != nil {
		c.reply <- getClientExtraResult{err: tx.Error}
		return
	}
	c.reply <- getClientExtraResult{
		extra: NodeExtra{PrevEnv: rec.PrevEnv, PrevArgs: rec.PrevArgs},
		found: true,
	}
}

// GetClientExtra returns the saved start invocation for name, if any.
func (a *Actor) GetClientExtra(ctx context.Context, name string) (NodeExtra, bool, error) {
	cmd := &getClientExtraCmd{name: name, reply: make(chan getClientExtraResult, 1)}
	if err := a.submit(ctx, cmd); err != nil {
		return NodeExtra{}, false, err
	}
	res := <-cmd.reply
	return res.extra, res.found, res.err
}

// ─── persistence helpers ───────────────────────────────────────────────────

func (a *Actor) persistNode(c ClientQueryResult) error {
	peersJSON, _ := json.Marshal(c.Peers)
	pendingJSON, _ := json.Marshal(c.PendingParcels)
	whitelistJSON, _ := json.Marshal(c.Whitelist)
	blacklistJSON, _ := json.Marshal(c.Blacklist)
	hardwareJSON, _ := json.Marshal(c.Hardware)

	var bestNumber int64
	var bestHash string
	if c.Best != nil {
		bestNumber, bestHash = c.Best.Number, c.Best.Hash
	}

	rec := NodeRecord{
		Name:               c.Name,
		Address:            c.Address,
		Status:             string(c.Status),
		Version:            c.Version.Version,
		CommitHash:         c.Version.CommitHash,
		BinaryChecksum:     c.Version.BinaryChecksum,
		PeersJSON:          string(peersJSON),
		BestNumber:         bestNumber,
		BestHash:           bestHash,
		PendingParcelsJSON: string(pendingJSON),
		WhitelistJSON:      string(whitelistJSON),
		BlacklistJSON:      string(blacklistJSON),
		HardwareJSON:       string(hardwareJSON),
		UpdatedAt:          c.UpdatedAt,
	}
	return a.db.Save(&rec).Error
}

func pairKey(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}
