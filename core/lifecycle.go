package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/scaffold/client"
	"github.com/soyeahso/scaffold/config"
	"github.com/soyeahso/scaffold/db"
	"github.com/soyeahso/scaffold/plugin"
	"github.com/soyeahso/scaffold/server"
)

// Start drives the full startup sequence. Phases run strictly in order;
// the first failure is logged with its phase and returned unchanged in
// meaning to the caller. Nothing is rolled back: a collaborator that
// started before the failure stays up until Close.
func (s *System) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"plugin-wiring", s.phaseWirePlugins},
		{"config-assembly", s.phaseAssembleConfig},
		{"config-load", s.phaseLoadConfig},
		{"collaborators", s.phaseWireCollaborators},
		{"schema", s.phaseSyncSchema},
		{"init", s.phaseInitialize},
	}

	for _, ph := range phases {
		if err := ph.fn(ctx); err != nil {
			s.log.Error().Err(err).Str("phase", ph.name).Msg("startup aborted")
			return fmt.Errorf("%s: %w", ph.name, err)
		}
		if srv := s.Server(); srv != nil {
			srv.Broadcast("phase", map[string]any{"name": ph.name})
		}
	}

	s.log.Info().Str("name", s.name).Str("version", s.opts.version).Msg("system ready")
	if srv := s.Server(); srv != nil {
		srv.Broadcast("ready", map[string]any{"plugins": s.registry.Count()})
	}
	return nil
}

// phaseWirePlugins injects managed back-references and announces the
// system handle to every plugin that wants it.
func (s *System) phaseWirePlugins(ctx context.Context) error {
	for _, e := range s.registry.Entries() {
		if m, ok := e.Plugin.(plugin.Managed); ok {
			m.AttachCore(s, s.log.Sub("plugin."+e.ID))
		}
	}

	_, err := s.invoker.Invoke(ctx, plugin.HookSetCoreReference, func(ctx context.Context, p plugin.Plugin) (any, error) {
		return nil, p.(plugin.CoreReferenceSetter).SetCoreReference(ctx, s)
	})
	return err
}

// phaseAssembleConfig merges the base setup, plugin fragments in
// registration order, and caller defaults last; then runs preInit so
// plugins can opt out before configuration exists.
func (s *System) phaseAssembleConfig(ctx context.Context) error {
	setup := s.baseSetup()

	res, err := s.invoker.Invoke(ctx, plugin.HookConfigSetup, func(ctx context.Context, p plugin.Plugin) (any, error) {
		return p.(plugin.ConfigContributor).ConfigSetup(ctx)
	})
	if err != nil {
		return err
	}
	for _, e := range s.registry.Entries() {
		if frag, ok := res[e.ID].(*config.Setup); ok {
			setup.Merge(frag)
		}
	}

	for key, val := range s.opts.overrides {
		setup.Defaults[key] = val
	}

	s.mu.Lock()
	s.setup = setup
	s.mu.Unlock()

	return s.invoker.InvokeRemovable(ctx, plugin.HookPreInit, func(ctx context.Context, p plugin.Plugin) (bool, error) {
		return p.(plugin.PreIniter).PreInit(ctx)
	})
}

// baseSetup declares the system's own config schema, derived from which
// collaborators the options requested.
func (s *System) baseSetup() *config.Setup {
	setup := config.NewSetup()

	setup.Fields["logging.level"] = config.Field{Type: "string", Description: "log verbosity"}
	setup.Defaults["logging.level"] = s.opts.logLevel

	setup.Fields["plugins.disabled"] = config.Field{Type: "list", Description: "plugin identifiers removed after config load"}
	setup.Defaults["plugins.disabled"] = []string{}

	if s.opts.database {
		setup.Fields["database.path"] = config.Field{Type: "string", Description: "sqlite database file"}
		setup.Fields["database.sync"] = config.Field{Type: "string", Description: "schema sync policy: sync, force, alter, off"}
		setup.Fields["database.password"] = config.Field{Type: "string", Description: "database credential"}
		setup.Defaults["database.path"] = filepath.Join(s.paths.Data, s.name+".db")
		setup.Defaults["database.sync"] = string(db.SyncCreate)
		setup.SecretKeys = append(setup.SecretKeys, "database.password")
	}

	if s.opts.serverEnabled {
		setup.Fields["server.port"] = config.Field{Type: "int", Description: "listen port"}
		setup.Fields["server.bind"] = config.Field{Type: "string", Description: "bind mode: loopback, lan, custom"}
		setup.Fields["server.customBindHost"] = config.Field{Type: "string"}
		setup.Fields["server.allowedOrigins"] = config.Field{Type: "list"}
		setup.Fields["server.events"] = config.Field{Type: "bool", Description: "websocket lifecycle event stream"}
		setup.Fields["server.tls"] = config.Field{Type: "map"}
		setup.Defaults["server.port"] = 8080
		setup.Defaults["server.bind"] = "loopback"
		setup.Defaults["server.events"] = true
	}

	if s.opts.clientEnabled {
		setup.Fields["client.timeoutSeconds"] = config.Field{Type: "int"}
		setup.Fields["client.retryMax"] = config.Field{Type: "int"}
		setup.Defaults["client.timeoutSeconds"] = 30
		setup.Defaults["client.retryMax"] = 3
	}

	return setup
}

// phaseLoadConfig runs the loader against the assembled setup, applies
// the disabled-plugin list, and hands the final config to plugins.
func (s *System) phaseLoadConfig(ctx context.Context) error {
	if err := s.paths.EnsureDirs(); err != nil {
		s.log.Warn().Err(err).Msg("could not ensure base directories")
	}

	res, err := config.Load(s.paths.Config, s.Setup())
	if err != nil {
		return err
	}
	if res.Created {
		s.log.Info().Str("path", s.paths.Config).Msg("config file created with defaults")
	}
	if len(res.NewKeys) > 0 {
		s.log.Info().Strs("keys", res.NewKeys).Msg("new config keys filled with defaults")
	}
	if len(res.DeprecatedKeys) > 0 {
		s.log.Warn().Strs("keys", res.DeprecatedKeys).Msg("config keys not declared by any fragment")
	}

	for key, val := range s.opts.forced {
		if err := res.Config.Set(key, val); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.cfg = res.Config
	s.mu.Unlock()

	// Disabled plugins leave the registry before any further hook.
	for _, id := range res.Config.Strings("plugins.disabled") {
		if s.registry.Remove(id) {
			s.log.Info().Str("id", id).Msg("plugin disabled by config")
		} else {
			s.log.Warn().Str("id", id).Msg("disabled plugin was never registered")
		}
	}

	s.logRoster()

	return s.invoker.InvokeRemovable(ctx, plugin.HookHandleConfig, func(ctx context.Context, p plugin.Plugin) (bool, error) {
		return p.(plugin.ConfigHandler).HandleConfig(ctx, res.Config)
	})
}

func (s *System) logRoster() {
	roster := s.registry.Roster()
	parts := make([]string, len(roster))
	for i, e := range roster {
		kind := "self-managed"
		if e.Managed {
			kind = "managed"
		}
		parts[i] = e.ID + " (" + kind + ")"
	}
	s.log.Info().Int("count", len(roster)).Str("roster", strings.Join(parts, ", ")).Msg("plugin roster")
}

// phaseWireCollaborators builds the requested collaborators and exposes
// them to plugins. Hooks here are not removable.
func (s *System) phaseWireCollaborators(ctx context.Context) error {
	cfg := s.Config()

	if s.opts.database {
		path := s.opts.dbPath
		if path == "" {
			path = cfg.String("database.path", filepath.Join(s.paths.Data, s.name+".db"))
		}
		database, err := db.Open(path, s.log)
		if err != nil {
			return err
		}
		if err := database.Authenticate(ctx); err != nil {
			database.Close()
			return err
		}
		s.mu.Lock()
		s.database = database
		s.mu.Unlock()
	}

	if s.opts.serverEnabled {
		srv := server.New(server.Config{
			Port:           cfg.Int("server.port", 8080),
			Bind:           cfg.String("server.bind", "loopback"),
			CustomBindHost: cfg.String("server.customBindHost", ""),
			AllowedOrigins: cfg.Strings("server.allowedOrigins"),
			TLSEnabled:     cfg.Bool("server.tls.enabled", false),
			TLSCert:        cfg.String("server.tls.certPath", ""),
			TLSKey:         cfg.String("server.tls.keyPath", ""),
			Events:         cfg.Bool("server.events", true),
		}, s.log)
		s.mu.Lock()
		s.srv = srv
		s.mu.Unlock()
	}

	if s.opts.clientEnabled {
		httpc := client.New(client.Config{
			TimeoutSeconds: cfg.Int("client.timeoutSeconds", 30),
			RetryMax:       cfg.Int("client.retryMax", 3),
		}, s.log)
		s.mu.Lock()
		s.httpc = httpc
		s.mu.Unlock()
	}

	if srv := s.Server(); srv != nil {
		_, err := s.invoker.Invoke(ctx, plugin.HookHandleServer, func(ctx context.Context, p plugin.Plugin) (any, error) {
			return nil, p.(plugin.ServerHandler).HandleServer(ctx, srv)
		})
		if err != nil {
			return err
		}
	}

	if httpc := s.Client(); httpc != nil {
		_, err := s.invoker.Invoke(ctx, plugin.HookHandleClient, func(ctx context.Context, p plugin.Plugin) (any, error) {
			return nil, p.(plugin.ClientHandler).HandleClient(ctx, httpc)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// phaseSyncSchema collects plugin models, registers them in sorted name
// order, associates them, and reconciles the schema per policy.
func (s *System) phaseSyncSchema(ctx context.Context) error {
	database := s.DB()
	if database == nil {
		return nil
	}

	res, err := s.invoker.Invoke(ctx, plugin.HookCollectModels, func(ctx context.Context, p plugin.Plugin) (any, error) {
		return p.(plugin.ModelContributor).CollectModels(ctx)
	})
	if err != nil {
		return err
	}

	// Merge in registration order so later plugins override earlier
	// definitions of the same model name.
	defs := make(map[string]db.Definition)
	for _, e := range s.registry.Entries() {
		contributed, ok := res[e.ID].(map[string]db.Definition)
		if !ok {
			continue
		}
		for name, def := range contributed {
			defs[name] = def
		}
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	// Alphabetical registration keeps DDL deterministic.
	for _, name := range names {
		database.Register(name, defs[name])
	}

	if err := database.AssociateAll(); err != nil {
		return err
	}

	policy, err := db.ParseSyncPolicy(s.Config().String("database.sync", string(db.SyncCreate)))
	if err != nil {
		return err
	}
	return database.Sync(ctx, policy)
}

// phaseInitialize is the final startup phase: init, server listen,
// model start routines, postInit, ready.
func (s *System) phaseInitialize(ctx context.Context) error {
	err := s.invoker.InvokeRemovable(ctx, plugin.HookInit, func(ctx context.Context, p plugin.Plugin) (bool, error) {
		return p.(plugin.Initer).Init(ctx)
	})
	if err != nil {
		return err
	}

	if srv := s.Server(); srv != nil {
		if err := srv.Start(ctx); err != nil {
			return err
		}
	}

	if database := s.DB(); database != nil {
		if err := database.StartAll(ctx); err != nil {
			return err
		}
	}

	err = s.invoker.InvokeRemovable(ctx, plugin.HookPostInit, func(ctx context.Context, p plugin.Plugin) (bool, error) {
		return p.(plugin.PostIniter).PostInit(ctx)
	})
	if err != nil {
		return err
	}

	_, err = s.invoker.Invoke(ctx, plugin.HookReady, func(ctx context.Context, p plugin.Plugin) (any, error) {
		return nil, p.(plugin.ReadyNotifier).Ready(ctx)
	})
	return err
}

// Close shuts the system down: the close hook runs on all plugins
// concurrently, then the server and database are torn down concurrently
// with each other. Hook errors are collected, not fatal to teardown.
func (s *System) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error

	if _, err := s.invoker.Invoke(ctx, plugin.HookClose, func(ctx context.Context, p plugin.Plugin) (any, error) {
		return nil, p.(plugin.Closer).Close(ctx)
	}); err != nil {
		s.log.Error().Err(err).Msg("plugin close hook failed")
		errs = append(errs, err)
	}

	var g errgroup.Group
	if srv := s.Server(); srv != nil {
		g.Go(func() error { return srv.Close(ctx) })
	}
	if database := s.DB(); database != nil {
		g.Go(func() error { return database.Close() })
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	s.log.Info().Str("name", s.name).Msg("system closed")
	return errors.Join(errs...)
}
