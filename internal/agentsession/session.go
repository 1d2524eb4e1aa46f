package agentsession

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

const monitorInterval = 10 * time.Second

// DB is the subset of *fleetdb.Actor a session needs — accepted as an
// interface here so tests can substitute a fake without standing up a real
// actor goroutine.
type DB interface {
	InitializeClient(ctx context.Context, snap fleetdb.ClientQueryResult) (bool, error)
	UpdateClient(ctx context.Context, snap fleetdb.ClientQueryResult) error
	GetClientExtra(ctx context.Context, name string) (fleetdb.NodeExtra, bool, error)
	SaveStartOption(ctx context.Context, name string, extra fleetdb.NodeExtra) error
	WriteNetworkUsage(ctx context.Context, node, extension, targetIP string, bytes int64) error
	WritePeerCount(ctx context.Context, node string, count int) error
	WriteLogs(ctx context.Context, node string, logs []fleetdb.StructuredLog) error
}

// AgentRegistry is what a session needs from the agent registry. Defined
// here (not in the registry package) so agentsession never imports
// registry — registry.Registry implements this interface structurally by
// taking *Session as its handle type.
type AgentRegistry interface {
	AddAgent(id int64, sess *Session)
	RemoveAgent(id int64)
}

// Notifier is the outbound-alert surface a session needs.
type Notifier interface {
	Warn(networkID, message string)
}

// Config carries the env-derived knobs that shape session behavior.
type Config struct {
	NetworkID         string
	StartAtConnect    bool
	EnableMemoryAlarm bool
}

// Session drives one connected agent socket: startup handshake, the
// 10-second monitor loop, alerting, and cleanup.
type Session struct {
	id       int64
	conn     *rpc.Conn
	client   *CodeChainRPC
	db       DB
	registry AgentRegistry
	noti     Notifier
	cfg      Config
	logger   *zap.Logger

	state  sharedState
	closed bool

	alerts alertState
}

// New constructs a session bound to an already-upgraded agent connection.
// Call Run in its own goroutine.
func New(id int64, conn *rpc.Conn, db DB, registry AgentRegistry, noti Notifier, cfg Config, logger *zap.Logger) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		client:   NewCodeChainRPC(conn),
		db:       db,
		registry: registry,
		noti:     noti,
		cfg:      cfg,
		logger:   logger.Named(fmt.Sprintf("agent-%d", id)),
		state:    sharedState{v: InitializingState()},
	}
}

// State returns the session's current state (safe for concurrent readers,
// e.g. the registry's name lookup and the daily reporter's snapshot).
func (s *Session) State() State { return s.state.Load() }

// ID is the registry-assigned session id.
func (s *Session) ID() int64 { return s.id }

// Run drives the session to completion: startup, monitor loop, cleanup.
// Always returns after cleanup has run exactly once, panic or not.
func (s *Session) Run(ctx context.Context) {
	reason := CleanupUnexpected
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("agent session panicked", zap.Any("panic", r))
			s.cleanUp(ctx, CleanupUnexpected)
			return
		}
		s.cleanUp(ctx, reason)
	}()

	cause, err := s.startup(ctx)
	if err != nil {
		reason = CleanupError(err.Error())
		return
	}
	if cause != "" {
		reason = CleanupAlreadyConnected
		return
	}

	s.logger.Info("agent session started")

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		if err := s.monitorTick(ctx); err != nil {
			s.logger.Warn("monitor iteration failed", zap.Error(err))
			reason = CleanupError(err.Error())
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			reason = CleanupSuccess
			return
		}
	}
}

// startup runs the admission handshake: agent_getInfo, duplicate-name
// arbitration through the DB actor, registry registration, and the
// optional start-at-connect replay. A non-empty StopCause means the
// session was refused admission and must exit without having registered.
func (s *Session) startup(ctx context.Context) (StopCause, error) {
	info, err := s.client.AgentGetInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("agentsession: agent_getInfo: %w", err)
	}
	s.state.Store(NormalState(info.Name, info.Address, fleetdb.NodeStatus(info.Status)))

	snap := fleetdb.ClientQueryResult{
		Name:    info.Name,
		Address: info.Address,
		Status:  fleetdb.NodeStatus(info.Status),
		Version: fleetdb.NodeVersion{
			CommitHash:     info.CodechainCommitHash,
			BinaryChecksum: info.CodechainBinaryChecksum,
		},
	}
	admitted, err := s.db.InitializeClient(ctx, snap)
	if err != nil {
		return "", fmt.Errorf("agentsession: InitializeClient: %w", err)
	}
	if !admitted {
		s.state.Store(StopState(info.Name, info.Address, fleetdb.NodeStatus(info.Status), CauseAlreadyConnected))
		return CauseAlreadyConnected, nil
	}

	s.registry.AddAgent(s.id, s)

	if s.cfg.StartAtConnect {
		if extra, found, err := s.db.GetClientExtra(ctx, info.Name); err != nil {
			s.logger.Warn("GetClientExtra failed", zap.Error(err))
		} else if found {
			req := ShellStartCodeChainRequest{Env: extra.PrevEnv, Args: extra.PrevArgs}
			if err := s.client.ShellStartCodeChain(ctx, req); err != nil {
				s.logger.Error("cannot start CodeChain at connect", zap.Error(err))
			}
		}
	}

	return "", nil
}
