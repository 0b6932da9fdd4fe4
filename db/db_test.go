package db

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/scaffold/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func notesDefinition() Definition {
	return Definition{
		Table: "notes",
		Columns: map[string]Column{
			"id":    {Type: "TEXT", PrimaryKey: true},
			"body":  {Type: "TEXT", NotNull: true},
			"stars": {Type: "INTEGER", Default: "0"},
		},
		Indexes: []Index{{Columns: []string{"stars"}}},
	}
}

func TestOpenAndAuthenticate(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Authenticate(context.Background()))
}

func TestRegisterAndModels(t *testing.T) {
	db := testDB(t)
	db.Register("Note", notesDefinition())
	db.Register("User", Definition{Columns: map[string]Column{"id": {Type: "TEXT", PrimaryKey: true}}})

	models := db.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "notes", models["Note"].Table())
	assert.Equal(t, "User", models["User"].Table(), "table defaults to model name")
	assert.Equal(t, []string{"Note", "User"}, db.ModelNames())
}

func TestSyncCreate(t *testing.T) {
	db := testDB(t)
	db.Register("Note", notesDefinition())

	require.NoError(t, db.Sync(context.Background(), SyncCreate))

	_, err := db.SQL().Exec("INSERT INTO notes (id, body) VALUES ('1', 'hello')")
	require.NoError(t, err)

	// Re-syncing an existing table is a no-op that keeps data.
	require.NoError(t, db.Sync(context.Background(), SyncCreate))
	var count int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM notes").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSyncForceDropsData(t *testing.T) {
	db := testDB(t)
	db.Register("Note", notesDefinition())

	require.NoError(t, db.Sync(context.Background(), SyncCreate))
	_, err := db.SQL().Exec("INSERT INTO notes (id, body) VALUES ('1', 'hello')")
	require.NoError(t, err)

	require.NoError(t, db.Sync(context.Background(), SyncForce))
	var count int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM notes").Scan(&count))
	assert.Zero(t, count)
}

func TestSyncAlterAddsColumn(t *testing.T) {
	db := testDB(t)
	db.Register("Note", notesDefinition())
	require.NoError(t, db.Sync(context.Background(), SyncCreate))

	def := notesDefinition()
	def.Columns["archived"] = Column{Type: "INTEGER", Default: "0"}
	db.Register("Note", def)

	require.NoError(t, db.Sync(context.Background(), SyncAlter))

	_, err := db.SQL().Exec("INSERT INTO notes (id, body, archived) VALUES ('1', 'x', 1)")
	require.NoError(t, err)
}

func TestSyncOff(t *testing.T) {
	db := testDB(t)
	db.Register("Note", notesDefinition())

	require.NoError(t, db.Sync(context.Background(), SyncOff))

	_, err := db.SQL().Exec("SELECT * FROM notes")
	assert.Error(t, err, "table must not exist when sync is off")
}

func TestParseSyncPolicy(t *testing.T) {
	for _, valid := range []string{"sync", "force", "alter", "off"} {
		p, err := ParseSyncPolicy(valid)
		require.NoError(t, err)
		assert.Equal(t, SyncPolicy(valid), p)
	}

	_, err := ParseSyncPolicy("bogus")
	assert.Error(t, err)
}

func TestAssociateAll(t *testing.T) {
	db := testDB(t)

	var seen map[string]*Model
	def := notesDefinition()
	def.Associate = func(models map[string]*Model) error {
		seen = models
		return nil
	}
	db.Register("Note", def)
	db.Register("User", Definition{Columns: map[string]Column{"id": {Type: "TEXT", PrimaryKey: true}}})

	require.NoError(t, db.AssociateAll())
	require.NotNil(t, seen)
	assert.Len(t, seen, 2)
	assert.Contains(t, seen, "User")
}

func TestStartAll(t *testing.T) {
	db := testDB(t)

	var started atomic.Int32
	for _, name := range []string{"A", "B", "C"} {
		db.Register(name, Definition{
			Columns: map[string]Column{"id": {Type: "TEXT", PrimaryKey: true}},
			Start: func(ctx context.Context) error {
				started.Add(1)
				return nil
			},
		})
	}

	require.NoError(t, db.StartAll(context.Background()))
	assert.Equal(t, int32(3), started.Load())
}

func TestStartAllPropagatesError(t *testing.T) {
	db := testDB(t)
	db.Register("Bad", Definition{
		Columns: map[string]Column{"id": {Type: "TEXT", PrimaryKey: true}},
		Start: func(ctx context.Context) error {
			return assert.AnError
		},
	})

	err := db.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad")
}
