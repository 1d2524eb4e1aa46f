package agentsession

import (
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
)

// CleanupReason explains why a session is being torn down.
type CleanupReason struct {
	kind    string
	message string
}

func CleanupError(msg string) CleanupReason { return CleanupReason{kind: "error", message: msg} }

var (
	CleanupSuccess          = CleanupReason{kind: "success"}
	CleanupAlreadyConnected = CleanupReason{kind: "already_connected", message: "An agent which has same name is already connected"}
	CleanupUnexpected       = CleanupReason{kind: "unexpected", message: "Unexpected cleanup"}
)

func (r CleanupReason) isError() bool { return r.kind != "success" }

// cleanUp is idempotent: it deregisters from the registry, writes an Error
// snapshot for a session that reached Normal (preserving the name so a
// reconnecting agent wins arbitration), and closes the socket with a code
// matching the reason.
func (s *Session) cleanUp(ctx context.Context, reason CleanupReason) {
	if s.closed {
		return
	}
	s.closed = true

	switch reason.kind {
	case "error":
		s.logger.Error("agent session cleaned up", zap.String("reason", reason.message))
	case "unexpected":
		s.logger.Error("agent session cleaned up unexpectedly")
	case "already_connected":
		s.logger.Warn("agent session cleaned up: duplicate name")
	}

	s.registry.RemoveAgent(s.id)

	if st := s.state.Load(); st.IsNormal() {
		snap := fleetdb.ClientQueryResult{
			Name:    st.Name,
			Address: st.Address,
			Status:  fleetdb.StatusError,
		}
		if err := s.db.UpdateClient(ctx, snap); err != nil {
			s.logger.Error("failed to persist Error snapshot on cleanup", zap.Error(err))
		}
	}

	code := websocket.CloseNormalClosure
	if reason.isError() {
		code = websocket.CloseInternalServerErr
	}
	s.conn.CloseWithReason(code, reason.message)
}
