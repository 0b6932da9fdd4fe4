// Package plugin provides the plugin model for scaffold systems: optional
// lifecycle capabilities declared as interfaces, an identifier-keyed
// registry, and the concurrent hook invoker the orchestrator drives.
package plugin

import (
	"context"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/scaffold/config"
	"github.com/soyeahso/scaffold/db"
	"github.com/soyeahso/scaffold/logging"
	"github.com/soyeahso/scaffold/server"
)

// Plugin is any caller-supplied value registered under an identifier.
// A plugin participates in a lifecycle phase by implementing that
// phase's capability interface; implementing nothing is legal.
type Plugin any

// Core is the handle a plugin gets to the owning system. Collaborator
// accessors return nil until the corresponding lifecycle phase has
// wired them (Config after load, DB/Server/Client after wiring).
type Core interface {
	// Name returns the system's identity name.
	Name() string

	// Logger returns the shared root logger.
	Logger() *logging.Logger

	// Config returns the loaded configuration, or nil before load.
	Config() *config.Config

	// DB returns the database handle, or nil if none was requested.
	DB() *db.DB

	// Server returns the HTTP server, or nil if none was requested.
	Server() *server.Server

	// Client returns the outbound HTTP client, or nil if none was requested.
	Client() *retryablehttp.Client
}

// Hook identifies a lifecycle hook.
type Hook string

const (
	HookSetCoreReference Hook = "setCoreReference"
	HookConfigSetup      Hook = "configSetup"
	HookPreInit          Hook = "preInit"
	HookHandleConfig     Hook = "handleConfig"
	HookHandleServer     Hook = "handleServer"
	HookHandleClient     Hook = "handleClient"
	HookCollectModels    Hook = "collectModels"
	HookInit             Hook = "init"
	HookPostInit         Hook = "postInit"
	HookReady            Hook = "ready"
	HookHandleLog        Hook = "handleLog"
	HookClose            Hook = "close"
)

// RemovableHooks are the hooks whose per-plugin detach result drops the
// plugin from the registry after the call completes.
var RemovableHooks = []Hook{HookPreInit, HookHandleConfig, HookInit, HookPostInit}

// CoreReferenceSetter is invoked unconditionally on every plugin that
// implements it, before any other hook, managed or not.
type CoreReferenceSetter interface {
	SetCoreReference(ctx context.Context, core Core) error
}

// ConfigContributor supplies a configuration setup fragment merged into
// the system's base setup before the loader runs. Returning nil
// contributes nothing.
type ConfigContributor interface {
	ConfigSetup(ctx context.Context) (*config.Setup, error)
}

// PreIniter runs before configuration exists. Returning detach=true
// removes the plugin from the registry.
type PreIniter interface {
	PreInit(ctx context.Context) (detach bool, err error)
}

// ConfigHandler receives the final loaded configuration. Returning
// detach=true removes the plugin from the registry.
type ConfigHandler interface {
	HandleConfig(ctx context.Context, cfg *config.Config) (detach bool, err error)
}

// ServerHandler is called once the HTTP server exists, before it
// listens, so the plugin can mount routes.
type ServerHandler interface {
	HandleServer(ctx context.Context, srv *server.Server) error
}

// ClientHandler is called once the outbound HTTP client exists.
type ClientHandler interface {
	HandleClient(ctx context.Context, cl *retryablehttp.Client) error
}

// ModelContributor supplies database model definitions, keyed by model
// name. Names are registered in sorted order across all plugins.
type ModelContributor interface {
	CollectModels(ctx context.Context) (map[string]db.Definition, error)
}

// Initer runs after collaborators are wired. Returning detach=true
// removes the plugin from the registry.
type Initer interface {
	Init(ctx context.Context) (detach bool, err error)
}

// PostIniter runs after servers listen and models start. Returning
// detach=true removes the plugin from the registry.
type PostIniter interface {
	PostInit(ctx context.Context) (detach bool, err error)
}

// ReadyNotifier is told when startup has fully completed.
type ReadyNotifier interface {
	Ready(ctx context.Context) error
}

// LogHandler observes every log line the system emits. Calls are
// fire-and-forget relative to the log call site.
type LogHandler interface {
	HandleLog(level, message string)
}

// Closer runs during shutdown, before collaborator teardown.
type Closer interface {
	Close(ctx context.Context) error
}

// Implements reports whether p declares the capability for hook h.
func Implements(p Plugin, h Hook) bool {
	switch h {
	case HookSetCoreReference:
		_, ok := p.(CoreReferenceSetter)
		return ok
	case HookConfigSetup:
		_, ok := p.(ConfigContributor)
		return ok
	case HookPreInit:
		_, ok := p.(PreIniter)
		return ok
	case HookHandleConfig:
		_, ok := p.(ConfigHandler)
		return ok
	case HookHandleServer:
		_, ok := p.(ServerHandler)
		return ok
	case HookHandleClient:
		_, ok := p.(ClientHandler)
		return ok
	case HookCollectModels:
		_, ok := p.(ModelContributor)
		return ok
	case HookInit:
		_, ok := p.(Initer)
		return ok
	case HookPostInit:
		_, ok := p.(PostIniter)
		return ok
	case HookReady:
		_, ok := p.(ReadyNotifier)
		return ok
	case HookHandleLog:
		_, ok := p.(LogHandler)
		return ok
	case HookClose:
		_, ok := p.(Closer)
		return ok
	}
	return false
}
