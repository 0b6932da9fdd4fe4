// Package core assembles a service process from declarative options: a
// logger, layered configuration, optional database / HTTP server /
// outbound client collaborators, and caller-supplied plugins driven
// through a fixed lifecycle.
package core

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/scaffold/config"
	"github.com/soyeahso/scaffold/db"
	"github.com/soyeahso/scaffold/logging"
	"github.com/soyeahso/scaffold/plugin"
	"github.com/soyeahso/scaffold/server"
)

var (
	// ErrAlreadyStarted is returned by Start on a system that already ran.
	ErrAlreadyStarted = errors.New("system already started")
)

// System owns the plugin registry and the collaborators for one service
// process. It is built with New, driven through startup with Start, and
// torn down with Close.
type System struct {
	name  string
	opts  options
	paths config.Paths
	log   *logging.Logger

	registry *plugin.Registry
	invoker  *plugin.Invoker
	setup    *config.Setup

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	cfg      *config.Config
	database *db.DB
	srv      *server.Server
	httpc    *retryablehttp.Client
}

// New constructs a system and registers its plugins, in option order.
// No I/O happens here beyond logger setup; Start performs the sequence.
func New(name string, opts ...Option) (*System, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &System{name: name, opts: o}

	if o.baseDir != "" {
		s.paths = config.PathsIn(o.baseDir)
	} else {
		paths, err := config.ResolvePaths(name)
		if err != nil {
			return nil, err
		}
		s.paths = paths
	}
	if o.configPath != "" {
		s.paths.Config = o.configPath
	}

	base := logging.New(o.logWriter, o.logLevel)
	s.log = base.WithSink(s.dispatchLog)

	s.registry = plugin.NewRegistry(s.log)
	s.invoker = plugin.NewInvoker(s.registry, s.log)

	for _, spec := range o.plugins {
		s.registry.Register(spec.id, spec.src, s)
	}

	s.log.Info().
		Str("name", name).
		Str("version", o.version).
		Int("plugins", s.registry.Count()).
		Msg("system constructed")

	return s, nil
}

// dispatchLog forwards every emitted log line to plugins implementing
// the log hook. It already runs off the logging call site's goroutine.
func (s *System) dispatchLog(level, message string) {
	reg := s.registry
	if reg == nil {
		return
	}
	for _, e := range reg.WithHook(plugin.HookHandleLog) {
		e.Plugin.(plugin.LogHandler).HandleLog(level, message)
	}
}

// Name returns the system's identity name.
func (s *System) Name() string { return s.name }

// Version returns the configured version string.
func (s *System) Version() string { return s.opts.version }

// Logger returns the shared root logger.
func (s *System) Logger() *logging.Logger { return s.log }

// Paths returns the resolved filesystem paths.
func (s *System) Paths() config.Paths { return s.paths }

// Plugins returns the plugin registry.
func (s *System) Plugins() *plugin.Registry { return s.registry }

// Setup returns the assembled config setup, nil before assembly.
func (s *System) Setup() *config.Setup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.setup
}

// Config returns the loaded configuration, nil before load.
func (s *System) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// DB returns the database collaborator, nil unless requested and wired.
func (s *System) DB() *db.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.database
}

// Server returns the HTTP server collaborator, nil unless requested and wired.
func (s *System) Server() *server.Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.srv
}

// Client returns the outbound HTTP client, nil unless requested and wired.
func (s *System) Client() *retryablehttp.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpc
}

var _ plugin.Core = (*System)(nil)
