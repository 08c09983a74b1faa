// Package transport is the websocket edge of the relay: it accepts client
// connections, decodes the JSON message protocol, and hands traffic to the
// pipeline coordinator. It also serves the health and metrics endpoints.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/health"
)

// shutdownGrace bounds graceful HTTP shutdown.
const shutdownGrace = 10 * time.Second

// Server is the relay's HTTP surface: /ws, /healthz, /readyz, /metrics.
type Server struct {
	cfg     config.ServerConfig
	handler Handler
	health  *health.Handler
	log     *slog.Logger
}

// NewServer wires the websocket endpoint to h and mounts the health handler.
func NewServer(cfg config.ServerConfig, h Handler, hh *health.Handler) *Server {
	return &Server{
		cfg:     cfg,
		handler: h,
		health:  hh,
		log:     slog.Default().With("component", "transport"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS(ctx))
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}

	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// handleWS upgrades a request and runs the connection lifecycle. serveCtx
// outlives the request so pipelines keep their parent context across the
// handler return.
func (s *Server) handleWS(serveCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Browser clients connect cross-origin during development.
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.log.Warn("websocket accept failed", "error", err)
			return
		}

		c := newConn(ws, s.log)
		s.log.Info("client connected", "remote", r.RemoteAddr)
		c.serve(serveCtx, s.handler, s.cfg.HeartbeatInterval.Std())
		s.handler.OnDisconnect(c)
		s.log.Info("client disconnected",
			"remote", r.RemoteAddr, "participant_id", c.ParticipantID())
	}
}
