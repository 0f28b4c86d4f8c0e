package api

import (
	"context"
	"net/http"

	"whiteboard/internal/middleware"
	"whiteboard/internal/relay"

	"github.com/gorilla/mux"
)

// StatsProvider is satisfied by the relay hub
type StatsProvider interface {
	Stats(ctx context.Context) (relay.Stats, error)
}

// NewRouter wires the HTTP surface. The WebSocket route sits on the bare root
// router because the tracing wrapper cannot hijack connections; everything
// else goes through tracing and panic recovery.
func NewRouter(ws http.Handler, stats StatsProvider, ipLimiter *middleware.IPRateLimit, staticDir string) *mux.Router {
	r := mux.NewRouter()

	// WebSocket upgrade, limited per client IP
	r.Handle("/ws", ipLimiter.Middleware(ws))

	web := r.NewRoute().Subrouter()
	web.Use(middleware.TracingMiddleware)
	web.Use(middleware.RecoveryMiddleware)

	web.Handle("/healthz", healthHandler(stats)).Methods(http.MethodGet)

	// client bundle
	web.PathPrefix("/").Handler(spaHandler{staticDir: staticDir}).Methods(http.MethodGet, http.MethodHead)

	return r
}
