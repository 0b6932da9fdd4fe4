package db

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Column declares one table column.
type Column struct {
	Type       string // SQL type: "TEXT", "INTEGER", "REAL", "BLOB"
	PrimaryKey bool
	NotNull    bool
	Unique     bool
	Default    string // literal SQL default expression, empty for none
}

// Index declares a secondary index over one or more columns.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Definition describes a model contributed by a plugin or the caller.
// Associate and Start are optional.
type Definition struct {
	// Table is the backing table name; empty defaults to the model name.
	Table   string
	Columns map[string]Column
	Indexes []Index

	// Associate runs once after every model is registered, with the
	// full model map, so cross-model references can be resolved.
	Associate func(models map[string]*Model) error

	// Start runs concurrently with other models' Start routines during
	// the final startup phase.
	Start func(ctx context.Context) error
}

// Model is a registered model bound to its database.
type Model struct {
	Name string
	def  Definition
	db   *DB
}

// Table returns the backing table name.
func (m *Model) Table() string {
	if m.def.Table != "" {
		return m.def.Table
	}
	return m.Name
}

// Definition returns the model's definition.
func (m *Model) Definition() Definition { return m.def }

// DB returns the owning database handle.
func (m *Model) DB() *DB { return m.db }

// Register binds a definition under a model name. Re-registering a name
// replaces the previous definition.
func (db *DB) Register(name string, def Definition) *Model {
	db.mu.Lock()
	defer db.mu.Unlock()

	m := &Model{Name: name, def: def, db: db}
	db.models[name] = m
	db.log.Debug().Str("model", name).Str("table", m.Table()).Msg("model registered")
	return m
}

// Models returns a copy of the model map.
func (db *DB) Models() map[string]*Model {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make(map[string]*Model, len(db.models))
	for name, m := range db.models {
		out[name] = m
	}
	return out
}

// Model returns a registered model by name.
func (db *DB) Model(name string) (*Model, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.models[name]
	return m, ok
}

// ModelNames returns registered model names in sorted order.
func (db *DB) ModelNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.models))
	for name := range db.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssociateAll runs every model's Associate routine with the complete
// model map, in sorted name order.
func (db *DB) AssociateAll() error {
	models := db.Models()
	for _, name := range db.ModelNames() {
		m := models[name]
		if m.def.Associate == nil {
			continue
		}
		if err := m.def.Associate(models); err != nil {
			return fmt.Errorf("associating model %s: %w", name, err)
		}
	}
	return nil
}

// StartAll runs every model's Start routine concurrently and waits for
// all of them.
func (db *DB) StartAll(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range db.ModelNames() {
		m, _ := db.Model(name)
		if m.def.Start == nil {
			continue
		}
		g.Go(func() error {
			if err := m.def.Start(ctx); err != nil {
				return fmt.Errorf("starting model %s: %w", m.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
