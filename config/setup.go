package config

// Field declares a single configuration key contributed to the setup.
type Field struct {
	Type        string `yaml:"type,omitempty"` // "string" | "int" | "bool" | "float" | "list" | "map"
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// Setup is a partial configuration schema: field declarations, default
// values, and the names of keys holding secrets. Fragments are merged
// into one Setup before the loader runs; once loaded, the Setup is not
// mutated again.
//
// Keys are dotted paths ("server.port", "database.password").
type Setup struct {
	Fields     map[string]Field
	Defaults   map[string]any
	SecretKeys []string
}

// NewSetup returns an empty Setup ready for merging.
func NewSetup() *Setup {
	return &Setup{
		Fields:   make(map[string]Field),
		Defaults: make(map[string]any),
	}
}

// Merge folds frag into s. Fields and Defaults are right-biased: keys in
// frag overwrite keys already present in s. SecretKeys accumulate;
// duplicates are harmless downstream.
func (s *Setup) Merge(frag *Setup) {
	if frag == nil {
		return
	}
	for k, f := range frag.Fields {
		s.Fields[k] = f
	}
	for k, v := range frag.Defaults {
		s.Defaults[k] = v
	}
	s.SecretKeys = append(s.SecretKeys, frag.SecretKeys...)
}

// declared reports whether a dotted path is covered by the setup, either
// exactly or through a declared prefix (map-typed fields own their subtree).
func (s *Setup) declared(path string) bool {
	if _, ok := s.Fields[path]; ok {
		return true
	}
	if _, ok := s.Defaults[path]; ok {
		return true
	}
	for i := len(path) - 1; i > 0; i-- {
		if path[i] != '.' {
			continue
		}
		prefix := path[:i]
		if _, ok := s.Fields[prefix]; ok {
			return true
		}
		if _, ok := s.Defaults[prefix]; ok {
			return true
		}
	}
	return false
}
