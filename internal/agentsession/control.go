package agentsession

import (
	"context"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// Start issues shell_startCodeChain on the agent's own RPC connection and
// persists the start option for replay on reconnect.
func (s *Session) Start(ctx context.Context, req ShellStartCodeChainRequest) error {
	if err := s.client.ShellStartCodeChain(ctx, req); err != nil {
		return err
	}
	st := s.state.Load()
	return s.db.SaveStartOption(ctx, st.Name, fleetdb.NodeExtra{PrevEnv: req.Env, PrevArgs: req.Args})
}

// Stop issues shell_stopCodeChain.
func (s *Session) Stop(ctx context.Context) error {
	return s.client.ShellStopCodeChain(ctx)
}

// Update issues shell_updateCodeChain, carrying the Git-commit or
// binary-checksum source the dashboard selected. req is forwarded as given,
// start option included; the node_update handler fills that in
// from the node's last-saved start option.
func (s *Session) Update(ctx context.Context, req ShellUpdateCodeChainRequest) error {
	return s.client.ShellUpdateCodeChain(ctx, req)
}

// ResetMaxMemoryUsage clears the session's tracked minimum-available-memory
// watermark, called once per UTC day by the daily reporter after it reads
// the watermark into its report.
func (s *Session) ResetMaxMemoryUsage() {
	s.state.resetMaxMemoryUsage()
}
