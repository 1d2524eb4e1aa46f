package dashboard

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/arkeep-io/fleethub/internal/fanout"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

// Server upgrades dashboard WebSocket connections, gates them behind a
// shared passphrase embedded in the URL path, and serves the RPC table
// over the resulting connection. The path is "/ws/<passphrase>".
type Server struct {
	router     *Router
	passphrase string
	hub        *fanout.Hub
	ctx        *Context
	logger     *zap.Logger
}

// Router is the dashboard RPC table, built once at startup via AddRoutes.
type Router = rpc.Router[*Context]

func NewServer(db DB, registry AgentRegistry, hub *fanout.Hub, passphrase string, logger *zap.Logger) *Server {
	router := rpc.NewRouter[*Context]()
	AddRoutes(router)
	return &Server{
		router:     router,
		passphrase: passphrase,
		hub:        hub,
		ctx:        &Context{DB: db, Registry: registry},
		logger:     logger.Named("dashboard"),
	}
}

// ServeHTTP rejects any request whose path does not equal "/ws/<passphrase>"
// before ever upgrading the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.TrimPrefix(r.URL.Path, "/ws/") != s.passphrase {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := rpc.Upgrade(w, r, s.logger)
	if err != nil {
		s.logger.Warn("dashboard upgrade failed", zap.Error(err))
		return
	}

	s.hub.AddWS(conn)
	conn.OnClose = func() { s.hub.RemoveWS(conn) }

	bound := rpc.Bound[*Context]{Router: s.router, Ctx: s.ctx}
	conn.Serve(r.Context(), bound)
}
