package core

import (
	"io"

	"github.com/soyeahso/scaffold/plugin"
)

// Option configures a System at construction time. Plugin registration
// order follows option order and is load-bearing: it decides config
// fragment merge precedence and roster display order.
type Option func(*options)

type options struct {
	version    string
	logLevel   string
	logWriter  io.Writer
	baseDir    string
	configPath string

	database bool
	dbPath   string

	serverEnabled bool
	clientEnabled bool

	plugins   []pluginSpec
	overrides map[string]any
	forced    map[string]any
}

type pluginSpec struct {
	id  string
	src plugin.Source
}

func defaultOptions() options {
	return options{
		version:   "dev",
		logLevel:  "info",
		overrides: make(map[string]any),
		forced:    make(map[string]any),
	}
}

// WithVersion sets the version string reported by the system.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithLogLevel sets the initial log level, which also becomes the
// default for the logging.level config field.
func WithLogLevel(level string) Option {
	return func(o *options) { o.logLevel = level }
}

// WithLogWriter directs log output somewhere other than the console.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) { o.logWriter = w }
}

// WithBaseDir pins the base directory instead of resolving ~/.<name>.
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}

// WithConfigPath overrides the config file location.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithDatabase requests the database collaborator.
func WithDatabase() Option {
	return func(o *options) { o.database = true }
}

// WithDatabasePath requests the database collaborator at a fixed path.
// Use ":memory:" for tests.
func WithDatabasePath(path string) Option {
	return func(o *options) {
		o.database = true
		o.dbPath = path
	}
}

// WithServer requests the HTTP server collaborator.
func WithServer() Option {
	return func(o *options) { o.serverEnabled = true }
}

// WithClient requests the outbound HTTP client collaborator.
func WithClient() Option {
	return func(o *options) { o.clientEnabled = true }
}

// WithPlugin registers a plugin under an identifier. Repeating an
// identifier is last-write-wins.
func WithPlugin(id string, src plugin.Source) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, pluginSpec{id: id, src: src})
	}
}

// WithConfigValue forces a config value after the file is loaded, so it
// wins over both defaults and file contents. Meant for CLI flag
// overrides.
func WithConfigValue(key string, value any) Option {
	return func(o *options) { o.forced[key] = value }
}

// WithConfigDefaults supplies caller-level config defaults, keyed by
// dotted path. These merge after every plugin fragment, so they always
// win over plugin-contributed defaults.
func WithConfigDefaults(defaults map[string]any) Option {
	return func(o *options) {
		for k, v := range defaults {
			o.overrides[k] = v
		}
	}
}
