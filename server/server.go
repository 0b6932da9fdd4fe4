// Package server provides the HTTP collaborator: a net/http server with
// the standard middleware chain, a health endpoint, plugin-mountable
// routes, and an optional websocket stream of lifecycle events.
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/soyeahso/scaffold/logging"
)

// Config controls the HTTP server. It is populated by the orchestrator
// from the loaded configuration.
type Config struct {
	Port           int
	Bind           string // "loopback" | "lan" | "custom"
	CustomBindHost string
	AllowedOrigins []string

	TLSEnabled bool
	TLSCert    string
	TLSKey     string

	// Events enables the websocket lifecycle event stream on /events.
	Events bool
}

// Server is the HTTP server handed to ServerHandler plugins before it
// starts listening.
type Server struct {
	cfg Config
	log *logging.Logger
	mux *http.ServeMux

	events    *EventHub
	startedAt time.Time

	mu         sync.Mutex
	ln         net.Listener
	httpServer *http.Server
	serveErr   chan error
}

// New creates a server with the built-in routes registered.
func New(cfg Config, log *logging.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log.Sub("server"),
		mux: http.NewServeMux(),
	}
	if cfg.Events {
		s.events = newEventHub(s.log, cfg.AllowedOrigins)
		s.mux.HandleFunc("GET /events", s.events.handleWS)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// Router returns the mux so plugins can mount routes before Start.
func (s *Server) Router() *http.ServeMux { return s.mux }

// HandleFunc registers a route on the server mux.
func (s *Server) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(pattern, handler)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg Config) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start binds the listener and begins serving in the background,
// returning once the server is accepting connections. Use Close for
// graceful shutdown; the orchestrator never stops a started server on
// its own.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)
	handler := withMiddleware(s.mux, s.log, s.cfg.AllowedOrigins)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Bind == "lan" || s.cfg.Bind == "custom" {
		s.log.Warn().Msg("TLS is not enabled, traffic will be transmitted in cleartext")
	}

	s.mu.Lock()
	s.ln = ln
	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.serveErr = make(chan error, 1)
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Bool("events", s.cfg.Events).
		Msg("server listening")

	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("server stopped unexpectedly")
		}
		s.serveErr <- err
	}()

	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Broadcast publishes a lifecycle event to all connected event-stream
// clients. No-op when the event stream is disabled or nothing listens.
func (s *Server) Broadcast(event string, payload any) {
	if s.events != nil {
		s.events.Broadcast(event, payload)
	}
}

// Close shuts the server down gracefully.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.log.Info().Msg("shutting down server")
	if s.events != nil {
		s.events.closeAll()
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"uptimeMs": time.Since(s.startedAt).Milliseconds(),
	})
}
