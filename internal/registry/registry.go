// Package registry implements the agent registry: a channel-driven actor
// tracking every currently connected agent session, indexed by a
// monotonically allocated numeric id and, via each session's own state, by
// node name.
package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/agentsession"
	"github.com/arkeep-io/fleethub/internal/metrics"
)

type entry struct {
	id   int64
	sess *agentsession.Session
}

type command interface {
	exec(r *Registry)
}

// Registry is the agent registry actor. Call Run in its own goroutine.
type Registry struct {
	cmds   chan command
	quit   chan struct{}
	logger *zap.Logger

	entries []entry
	nextID  int64
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		cmds:   make(chan command, 256),
		quit:   make(chan struct{}),
		logger: logger.Named("registry"),
	}
}

// Run processes commands until Stop is called.
func (r *Registry) Run() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd.exec(r)
		case <-r.quit:
			return
		}
	}
}

func (r *Registry) Stop() { close(r.quit) }

func (r *Registry) submit(ctx context.Context, cmd command) error {
	select {
	case r.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return fmt.Errorf("registry: stopped")
	}
}

// ─── NextID (InitializeAgent's id-allocation half) ───────────────────────

type nextIDCmd struct {
	reply chan int64
}

func (c *nextIDCmd) exec(r *Registry) {
	id := r.nextID
	r.nextID++
	c.reply <- id
}

// NextID allocates the id assigned to a newly accepted agent connection.
// The caller (the agent listener) constructs the agentsession.Session
// itself — it already owns the session's rpc.Conn — and only delegates
// id allocation and bookkeeping to the registry.
func (r *Registry) NextID(ctx context.Context) (int64, error) {
	reply := make(chan int64, 1)
	if err := r.submit(ctx, &nextIDCmd{reply: reply}); err != nil {
		return 0, err
	}
	return <-reply, nil
}

// ─── AddAgent / RemoveAgent ───────────────────────────────────────────────
//
// Both are fire-and-forget: a full buffer or a stopped registry is logged,
// not surfaced to the caller, since the session's own lifetime does not
// depend on registry bookkeeping succeeding.

type addAgentCmd struct {
	id   int64
	sess *agentsession.Session
}

func (c *addAgentCmd) exec(r *Registry) {
	r.entries = append(r.entries, entry{id: c.id, sess: c.sess})
	metrics.ConnectedAgents.Set(float64(len(r.entries)))
	r.logger.Debug("agent added to registry", zap.Int64("id", c.id))
}

func (r *Registry) AddAgent(id int64, sess *agentsession.Session) {
	select {
	case r.cmds <- &addAgentCmd{id: id, sess: sess}:
	case <-r.quit:
		r.logger.Warn("AddAgent after registry stopped", zap.Int64("id", id))
	default:
		r.logger.Error("registry command buffer full, dropping AddAgent", zap.Int64("id", id))
	}
}

type removeAgentCmd struct {
	id int64
}

func (c *removeAgentCmd) exec(r *Registry) {
	for i, e := range r.entries {
		if e.id == c.id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			metrics.ConnectedAgents.Set(float64(len(r.entries)))
			r.logger.Debug("agent removed from registry", zap.Int64("id", c.id))
			return
		}
	}
	r.logger.Warn("cannot find agent to remove", zap.Int64("id", c.id))
}

func (r *Registry) RemoveAgent(id int64) {
	select {
	case r.cmds <- &removeAgentCmd{id: id}:
	case <-r.quit:
		r.logger.Warn("RemoveAgent after registry stopped", zap.Int64("id", id))
	default:
		r.logger.Error("registry command buffer full, dropping RemoveAgent", zap.Int64("id", id))
	}
}

// ─── Lookup ───────────────────────────────────────────────────────────────

type lookupByNameCmd struct {
	name  string
	reply chan *agentsession.Session
}

func (c *lookupByNameCmd) exec(r *Registry) {
	for _, e := range r.entries {
		if e.sess.State().Name == c.name {
			c.reply <- e.sess
			return
		}
	}
	c.reply <- nil
}

// LookupByName walks the registry for the session whose current State
// carries name, returning nil if none matches. A linear walk is fine at
// fleet scale (tens to low hundreds of nodes). The read only touches each
// session's own RWMutex-guarded State, so it never blocks on a session's
// monitor loop.
func (r *Registry) LookupByName(ctx context.Context, name string) (*agentsession.Session, error) {
	reply := make(chan *agentsession.Session, 1)
	if err := r.submit(ctx, &lookupByNameCmd{name: name, reply: reply}); err != nil {
		return nil, err
	}
	return <-reply, nil
}

// ─── Snapshot (daily reporter) ─────────────────────────────────────────────

type snapshotCmd struct {
	reply chan []*agentsession.Session
}

func (c *snapshotCmd) exec(r *Registry) {
	out := make([]*agentsession.Session, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.sess
	}
	c.reply <- out
}

// Snapshot returns every currently registered session handle, used by the
// daily reporter to compose its text report.
func (r *Registry) Snapshot(ctx context.Context) ([]*agentsession.Session, error) {
	reply := make(chan []*agentsession.Session, 1)
	if err := r.submit(ctx, &snapshotCmd{reply: reply}); err != nil {
		return nil, err
	}
	return <-reply, nil
}
