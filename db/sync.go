package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SyncPolicy selects how registered model definitions are reconciled
// with the database schema at startup.
type SyncPolicy string

const (
	// SyncCreate creates missing tables, leaving existing ones alone.
	SyncCreate SyncPolicy = "sync"
	// SyncForce drops and recreates every model's table.
	SyncForce SyncPolicy = "force"
	// SyncAlter creates missing tables and adds missing columns to
	// existing ones. Columns are never dropped.
	SyncAlter SyncPolicy = "alter"
	// SyncOff performs no schema work.
	SyncOff SyncPolicy = "off"
)

// ParseSyncPolicy validates a policy name from configuration.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch SyncPolicy(s) {
	case SyncCreate, SyncForce, SyncAlter, SyncOff:
		return SyncPolicy(s), nil
	}
	return "", fmt.Errorf("unknown sync policy %q (want sync, force, alter, or off)", s)
}

// Sync reconciles the schema for all registered models per the policy,
// in sorted model-name order for deterministic DDL.
func (db *DB) Sync(ctx context.Context, policy SyncPolicy) error {
	if policy == SyncOff {
		db.log.Debug().Msg("schema sync disabled")
		return nil
	}

	for _, name := range db.ModelNames() {
		m, _ := db.Model(name)
		if err := db.syncModel(ctx, m, policy); err != nil {
			return err
		}
	}

	db.log.Info().Str("policy", string(policy)).Int("models", len(db.models)).Msg("schema synced")
	return nil
}

func (db *DB) syncModel(ctx context.Context, m *Model, policy SyncPolicy) error {
	table := m.Table()

	if policy == SyncForce {
		if _, err := db.sql.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
			return fmt.Errorf("dropping table %s: %w", table, err)
		}
	}

	if policy == SyncAlter {
		exists, err := db.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if exists {
			return db.alterTable(ctx, m)
		}
	}

	if _, err := db.sql.ExecContext(ctx, createTableSQL(m)); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	return db.createIndexes(ctx, m)
}

func (db *DB) tableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := db.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return count > 0, nil
}

// alterTable adds columns present in the definition but absent from the
// live table. Existing columns are never modified or dropped.
func (db *DB) alterTable(ctx context.Context, m *Model) error {
	table := m.Table()

	rows, err := db.sql.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", table, err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scanning columns of %s: %w", table, err)
		}
		existing[name] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, col := range sortedColumnNames(m.def.Columns) {
		if existing[col] {
			continue
		}
		spec := m.def.Columns[col]
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), columnSQL(col, spec))
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", table, col, err)
		}
		db.log.Info().Str("table", table).Str("column", col).Msg("column added")
	}

	return db.createIndexes(ctx, m)
}

func (db *DB) createIndexes(ctx context.Context, m *Model) error {
	table := m.Table()
	for _, idx := range m.def.Indexes {
		name := idx.Name
		if name == "" {
			name = "idx_" + table + "_" + strings.Join(idx.Columns, "_")
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		cols := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			cols[i] = quoteIdent(c)
		}
		stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, quoteIdent(name), quoteIdent(table), strings.Join(cols, ", "))
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating index %s on %s: %w", name, table, err)
		}
	}
	return nil
}

// createTableSQL renders deterministic DDL: primary-key columns first,
// then the rest, each group alphabetical.
func createTableSQL(m *Model) string {
	var defs []string
	names := sortedColumnNames(m.def.Columns)

	for _, name := range names {
		if m.def.Columns[name].PrimaryKey {
			defs = append(defs, columnSQL(name, m.def.Columns[name]))
		}
	}
	for _, name := range names {
		if !m.def.Columns[name].PrimaryKey {
			defs = append(defs, columnSQL(name, m.def.Columns[name]))
		}
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(m.Table()), strings.Join(defs, ", "))
}

func columnSQL(name string, c Column) string {
	var b strings.Builder
	b.WriteString(quoteIdent(name))
	b.WriteString(" ")
	if c.Type != "" {
		b.WriteString(c.Type)
	} else {
		b.WriteString("TEXT")
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	return b.String()
}

func sortedColumnNames(cols map[string]Column) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
