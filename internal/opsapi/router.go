// Package opsapi serves the hub's operational surface: liveness/readiness
// at /healthz and Prometheus collection at /metrics, built with the same
// chi-construction convention used elsewhere (RequestID/Recoverer
// middleware, a small typed RouterConfig), narrowed to the two endpoints
// this hub needs — the dashboard protocol is JSON-RPC over WebSocket, so
// there is no REST resource surface to route here.
package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DB is the subset of *fleetdb.Actor needed for the readiness probe.
type DB interface {
	CheckConnection(ctx context.Context) error
}

// RouterConfig holds the dependencies NewRouter needs to build /healthz.
type RouterConfig struct {
	DB     DB
	Logger *zap.Logger
}

// NewRouter builds the ops-only chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler(cfg.DB))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type healthzResponse struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

// healthzHandler pings the DB actor's single connection (CheckConnection,
// "SELECT 1") and reports 200/503 accordingly — the same check the daily
// reporter runs before composing its text summary, exposed here for an
// external prober instead of a human reader.
func healthzHandler(db DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthzResponse{Status: "ok", DB: "ok"}
		status := http.StatusOK
		if err := db.CheckConnection(ctx); err != nil {
			resp.Status = "degraded"
			resp.DB = err.Error()
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
