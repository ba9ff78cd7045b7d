// Package web provides an HTTP status server for the lora-node daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/sweeney/lora-node/internal/status"
)

// Uplinker queues an immediate uplink. Implementations must be safe to call
// from HTTP handler goroutines.
type Uplinker interface {
	SendNow()
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	tracker    *status.Tracker
	uplink     Uplinker
	log        zerolog.Logger
}

// New creates a Server that reads state from the given tracker. uplink may be
// nil, in which case the uplink endpoint is not mounted.
func New(addr string, tracker *status.Tracker, uplink Uplinker, log zerolog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		tracker: tracker,
		uplink:  uplink,
		log:     log,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.handleIndex)
	s.router.Get("/index.html", s.handleIndex)

	// JSON is polled by dashboards on other hosts.
	s.router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/index.json", s.handleJSON)
		if s.uplink != nil {
			r.Post("/api/uplink", s.handleUplink)
		}
	})
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Error().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleUplink(w http.ResponseWriter, r *http.Request) {
	if !s.tracker.Snapshot().Ready() {
		http.Error(w, "join sequence in progress", http.StatusConflict)
		return
	}
	s.uplink.SendNow()
	s.log.Info().Str("remote", r.RemoteAddr).Msg("uplink requested over http")
	w.WriteHeader(http.StatusAccepted)
}
