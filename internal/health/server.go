// Package health implements the stdlib net/http health/history surface
// of §4.5. This is explicitly the one place the spec mandates stdlib
// over an ecosystem router/framework ("Stdlib HTTP servers per daemon"),
// so no gin/fiber dependency belongs here even though both appear
// elsewhere in the example pack.
package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/galpt/wanctl/internal/wlog"
)

// StatusProvider supplies the liveness payload; autorate.Controller and
// steer.Controller each implement a thin adapter satisfying this.
type StatusProvider interface {
	// Healthy reports whether the daemon should answer 200 (true) or 503.
	Healthy() bool
	// Payload returns the full health JSON body, daemon-specific fields
	// merged in by the caller.
	Payload() map[string]any
}

// Server is one daemon's background HTTP surface: liveness plus, when
// historyHandler is non-nil, a paginated metrics query route.
type Server struct {
	httpServer *http.Server
}

// Start binds host:port and serves in a background goroutine. Startup
// failure logs a warning and returns a Server with no listener, whose
// Shutdown is a no-op — per §4.5, a failed health server must never abort
// the daemon.
func Start(host string, port int, provider StatusProvider, historyHandler http.HandlerFunc) *Server {
	mux := http.NewServeMux()
	healthFn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := provider.Payload()
		if provider.Healthy() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(payload)
	}
	mux.HandleFunc("/", healthFn)
	mux.HandleFunc("/health", healthFn)
	if historyHandler != nil {
		mux.HandleFunc("/metrics/history", historyHandler)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wlog.For("health").Warn().Err(err).Str("addr", addr).Msg("health server failed to bind, continuing without it")
		return &Server{}
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			wlog.Quiet("health").Warn().Err(err).Msg("health server stopped")
		}
	}()
	return &Server{httpServer: srv}
}

// Shutdown joins the server with a bounded wait (§5: "HTTP server gets a
// bounded shutdown join (5 s)").
func (s *Server) Shutdown() {
	if s == nil || s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)
}
