// Command fleethub is the central fleet-management hub: it accepts
// long-lived bidirectional JSON-RPC sessions from per-node agents, runs a
// monitor loop per session, maintains the live fleet model in Postgres (or
// SQLite for local development), and serves a dashboard-facing push API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arkeep-io/fleethub/internal/agentsession"
	"github.com/arkeep-io/fleethub/internal/dashboard"
	"github.com/arkeep-io/fleethub/internal/fanout"
	"github.com/arkeep-io/fleethub/internal/fleetdb"
	"github.com/arkeep-io/fleethub/internal/notify"
	"github.com/arkeep-io/fleethub/internal/opsapi"
	"github.com/arkeep-io/fleethub/internal/registry"
	"github.com/arkeep-io/fleethub/internal/reporter"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	agentAddr     string
	dashboardAddr string
	opsAddr       string
	dbDriver      string
	dbDSN         string
	logLevel      string
	logRetention  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "fleethub",
		Short: "fleethub — central hub for a fleet of managed blockchain nodes",
		Long: `fleethub collects live health and topology from per-node agents,
drives lifecycle operations on managed nodes, persists history, and raises
alerts when nodes degrade. It serves a dashboard-facing JSON-RPC/push API
backed by that model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.agentAddr, "agent-addr", envOrDefault("FLEETHUB_AGENT_ADDR", ":4012"), "Agent-facing WebSocket listen address")
	root.PersistentFlags().StringVar(&cfg.dashboardAddr, "dashboard-addr", envOrDefault("FLEETHUB_DASHBOARD_ADDR", ":3012"), "Dashboard-facing WebSocket listen address")
	root.PersistentFlags().StringVar(&cfg.opsAddr, "ops-addr", envOrDefault("FLEETHUB_OPS_ADDR", ":9090"), "Ops listen address (serves /healthz, /metrics)")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("FLEETHUB_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("FLEETHUB_DB_DSN", "./fleethub.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("FLEETHUB_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&cfg.logRetention, "log-retention", 14*24*time.Hour, "How long structured log rows are kept before the housekeeping cron prunes them")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fleethub %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	networkID := os.Getenv("NETWORK_ID")
	if networkID == "" {
		return fmt.Errorf("NETWORK_ID is required")
	}
	passphrase := envOrDefault("PASSPHRASE", "passphrase")

	notiCfg, err := notify.Load()
	if err != nil {
		return fmt.Errorf("invalid notification config: %w", err)
	}

	sessCfg := agentsession.Config{
		NetworkID:         networkID,
		StartAtConnect:    os.Getenv("START_AT_CONNECT") != "",
		EnableMemoryAlarm: os.Getenv("ENABLE_MEMORY_ALARM") != "",
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(logger)
	go reg.Run()
	defer reg.Stop()

	hub := fanout.NewHub(logger)
	propagator := fanout.NewPropagator(hub)

	db, err := fleetdb.Open(fleetdb.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormlogger.Warn,
	}, logger, propagator)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	go db.Run()
	defer db.Stop()

	noti := notify.NewService(notiCfg, logger)

	daily := reporter.NewDaily(networkID, db, reg, noti, logger)
	go daily.Run(ctx)
	defer daily.Stop()

	cron, err := reporter.NewCron(db, cfg.logRetention, logger)
	if err != nil {
		return fmt.Errorf("failed to build housekeeping cron: %w", err)
	}
	if err := cron.Start(ctx); err != nil {
		return fmt.Errorf("failed to start housekeeping cron: %w", err)
	}
	defer cron.Stop() //nolint:errcheck

	agentSrv := &http.Server{Addr: cfg.agentAddr, Handler: agentListener(ctx, db, reg, noti, sessCfg, logger)}
	dashSrv := &http.Server{Addr: cfg.dashboardAddr, Handler: dashboard.NewServer(db, reg, hub, passphrase, logger)}
	opsSrv := &http.Server{Addr: cfg.opsAddr, Handler: opsapi.NewRouter(opsapi.RouterConfig{DB: db, Logger: logger})}

	errCh := make(chan error, 3)
	go func() { errCh <- serveAndLog(agentSrv, "agent", logger) }()
	go func() { errCh <- serveAndLog(dashSrv, "dashboard", logger) }()
	go func() { errCh <- serveAndLog(opsSrv, "ops", logger) }()

	logger.Info("fleethub started",
		zap.String("agent_addr", cfg.agentAddr),
		zap.String("dashboard_addr", cfg.dashboardAddr),
		zap.String("ops_addr", cfg.opsAddr),
		zap.String("db_driver", cfg.dbDriver),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("listener failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = agentSrv.Shutdown(shutdownCtx)
	_ = dashSrv.Shutdown(shutdownCtx)
	_ = opsSrv.Shutdown(shutdownCtx)

	return nil
}

func serveAndLog(srv *http.Server, name string, logger *zap.Logger) error {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s listener: %w", name, err)
	}
	return nil
}

// agentListener upgrades every inbound connection on the agent-facing port
// to a rpc.Conn, allocates a registry id, constructs the agentsession.Session,
// and runs it for the lifetime of the connection. Unlike the dashboard
// side this port is not passphrase-gated — agents are trusted network
// peers.
func agentListener(ctx context.Context, db *fleetdb.Actor, reg *registry.Registry, noti notify.Service, cfg agentsession.Config, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := rpc.Upgrade(w, r, logger)
		if err != nil {
			logger.Warn("agent upgrade failed", zap.Error(err))
			return
		}

		id, err := reg.NextID(r.Context())
		if err != nil {
			logger.Error("failed to allocate agent id", zap.Error(err))
			conn.Close()
			return
		}

		sess := agentsession.New(id, conn, db, reg, noti, cfg, logger)

		go func() {
			conn.Serve(ctx, nil)
		}()
		sess.Run(ctx)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zapLevel
	return zcfg.Build()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
