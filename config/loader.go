package config

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Result is what the loader hands back to the orchestrator.
type Result struct {
	Config *Config

	// NewKeys are setup defaults that were absent from the file and
	// filled in during load, in sorted order.
	NewKeys []string

	// DeprecatedKeys are leaf paths present in the file but declared by
	// no setup fragment, in sorted order. They are kept in the config.
	DeprecatedKeys []string

	// Created reports that no config file existed and one was written
	// with the assembled defaults.
	Created bool
}

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// Load reads the config file at path and reconciles it with the
// assembled setup: defaults fill missing keys, undeclared keys are
// reported as deprecated, required fields are enforced, and secret-key
// string values get ${VAR} expansion.
//
// A missing file is a first run: the defaults are written to path and
// the load proceeds with them.
func Load(path string, setup *Setup) (*Result, error) {
	res := &Result{}

	raw := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
		if raw == nil {
			raw = map[string]any{}
		}
	case os.IsNotExist(err):
		res.Created = true
	default:
		return nil, err
	}

	// Fill defaults for keys the file does not set.
	for key, val := range setup.Defaults {
		parts, err := ParseConfigPath(key)
		if err != nil {
			return nil, err
		}
		if _, ok := GetValueAtPath(raw, parts); ok {
			continue
		}
		SetValueAtPath(raw, parts, val)
		res.NewKeys = append(res.NewKeys, key)
	}
	sort.Strings(res.NewKeys)

	// Report file keys no fragment declares.
	for _, key := range leafPaths(raw, "") {
		if !setup.declared(key) {
			res.DeprecatedKeys = append(res.DeprecatedKeys, key)
		}
	}
	sort.Strings(res.DeprecatedKeys)

	// Enforce required fields.
	var missing []string
	for key, field := range setup.Fields {
		if !field.Required {
			continue
		}
		parts, err := ParseConfigPath(key)
		if err != nil {
			return nil, err
		}
		if _, ok := GetValueAtPath(raw, parts); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &ConfigError{Message: "missing required fields: " + strings.Join(missing, ", ")}
	}

	// Expand ${VAR} references in secret values.
	for _, key := range setup.SecretKeys {
		parts, err := ParseConfigPath(key)
		if err != nil {
			return nil, err
		}
		if v, ok := GetValueAtPath(raw, parts); ok {
			if s, ok := v.(string); ok {
				SetValueAtPath(raw, parts, expandEnvVars(s))
			}
		}
	}

	if res.Created {
		if err := writeDefaultFile(path, raw); err != nil {
			return nil, err
		}
	}

	res.Config = NewConfig(raw)
	return res, nil
}

// LoadRaw reads the config file as an untyped nested map, without any
// setup reconciliation. Used by tooling that edits the file directly.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes an untyped nested map back to the config file.
func SaveRaw(path string, raw map[string]any) error {
	return writeDefaultFile(path, raw)
}

// writeDefaultFile persists a freshly assembled config on first run.
func writeDefaultFile(path string, raw map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// leafPaths collects the dotted paths of all scalar leaves in a nested map.
func leafPaths(m map[string]any, prefix string) []string {
	var out []string
	for key, val := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if child, ok := val.(map[string]any); ok {
			out = append(out, leafPaths(child, full)...)
			continue
		}
		out = append(out, full)
	}
	return out
}
