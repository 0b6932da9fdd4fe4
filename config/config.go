// Package config provides the layered configuration model: plugin- and
// system-contributed setup fragments merged into one schema, a YAML
// loader that reconciles the schema with the on-disk file, and dotted
// path access over the loaded values.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Config is the loaded configuration. Values live in a nested raw map so
// plugin-contributed keys need no static struct fields.
type Config struct {
	raw map[string]any
}

// NewConfig wraps a raw value map. A nil map yields an empty config.
func NewConfig(raw map[string]any) *Config {
	if raw == nil {
		raw = map[string]any{}
	}
	return &Config{raw: raw}
}

// Raw returns the underlying value map.
func (c *Config) Raw() map[string]any { return c.raw }

// Get returns the value at a dotted path.
func (c *Config) Get(path string) (any, bool) {
	parts, err := ParseConfigPath(path)
	if err != nil {
		return nil, false
	}
	return GetValueAtPath(c.raw, parts)
}

// Set stores a value at a dotted path, creating intermediate maps.
func (c *Config) Set(path string, value any) error {
	parts, err := ParseConfigPath(path)
	if err != nil {
		return err
	}
	SetValueAtPath(c.raw, parts, value)
	return nil
}

// String returns the string at path, or def if absent or not a string.
func (c *Config) String(path, def string) string {
	if v, ok := c.Get(path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Int returns the integer at path, or def. YAML numbers may arrive as
// int, int64, or float64 depending on the document.
func (c *Config) Int(path string, def int) int {
	v, ok := c.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Bool returns the boolean at path, or def.
func (c *Config) Bool(path string, def bool) bool {
	if v, ok := c.Get(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Strings returns the string list at path, or nil. YAML lists arrive as
// []any; non-string elements are skipped.
func (c *Config) Strings(path string) []string {
	v, ok := c.Get(path)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
