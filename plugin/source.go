package plugin

// Source is how a caller hands a plugin to the system: either a
// pre-built instance or a factory the registry resolves once at
// registration time with the owning system handle.
type Source struct {
	instance Plugin
	factory  func(core Core) Plugin
}

// Instance wraps a pre-built plugin value.
func Instance(p Plugin) Source {
	return Source{instance: p}
}

// Factory wraps a constructor called once at registration with the
// owning system as its sole argument.
func Factory(fn func(core Core) Plugin) Source {
	return Source{factory: fn}
}

// resolve produces the plugin instance for this source.
func (s Source) resolve(core Core) Plugin {
	if s.factory != nil {
		return s.factory(core)
	}
	return s.instance
}
