package plugin

import "github.com/soyeahso/scaffold/logging"

// Managed marks a plugin built on Base. The orchestrator injects the
// owning system handle and a scoped logger into managed plugins before
// any hook fires. Plugins without Base are self-managed and must obtain
// any references themselves, typically via SetCoreReference.
//
// The unexported method keeps the interface satisfiable only by
// embedding Base.
type Managed interface {
	AttachCore(core Core, log *logging.Logger)
	managedPlugin()
}

// Base is the embeddable managed-plugin foundation.
type Base struct {
	core Core
	log  *logging.Logger
}

// AttachCore stores the injected back-references. Called by the
// orchestrator exactly once, before any hook.
func (b *Base) AttachCore(core Core, log *logging.Logger) {
	b.core = core
	b.log = log
}

// Core returns the owning system handle, nil before injection.
func (b *Base) Core() Core { return b.core }

// Log returns the injected scoped logger, nil before injection.
func (b *Base) Log() *logging.Logger { return b.log }

func (b *Base) managedPlugin() {}
