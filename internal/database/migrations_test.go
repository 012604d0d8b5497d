package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"canopy/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func sqliteFile(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migrations.db")), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

// sqliteMigrations are small enough for sqlite; the embedded set is postgres DDL.
func sqliteMigrations(t *testing.T) fstest.MapFS {
	t.Helper()
	return fstest.MapFS{
		"m/000001_species.up.sql":         {Data: []byte("CREATE TABLE species (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"m/000001_species.down.sql":       {Data: []byte("DROP TABLE species;")},
		"m/000002_species_index.up.sql":   {Data: []byte("CREATE UNIQUE INDEX idx_species_name ON species (name);")},
		"m/000002_species_index.down.sql": {Data: []byte("DROP INDEX idx_species_name;")},
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	all, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "000001_init", all[0].String())
	assert.Len(t, all[0].Checksum, 64)

	for _, table := range []string{"users", "trees", "tree_images", "tree_updates", "maps", "map_invitations"} {
		assert.Contains(t, all[0].Up, "CREATE TABLE IF NOT EXISTS "+table+" ")
		assert.Contains(t, all[0].Down, "DROP TABLE IF EXISTS "+table+";")
	}
}

func TestLoadMigrations(t *testing.T) {
	ms, err := LoadMigrations(sqliteMigrations(t), "m")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "species_index", ms[1].Name)

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "Missing down script",
			fsys:    fstest.MapFS{"m/000001_a.up.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "no down script",
		},
		{
			name: "Duplicate version",
			fsys: fstest.MapFS{
				"m/000001_a.up.sql": {}, "m/000001_a.down.sql": {},
				"m/000001_b.up.sql": {}, "m/000001_b.down.sql": {},
			},
			wantErr: "used by both",
		},
		{
			name:    "No name",
			fsys:    fstest.MapFS{"m/000003.up.sql": {}},
			wantErr: "expected NNNNNN_name",
		},
		{
			name:    "Zero version",
			fsys:    fstest.MapFS{"m/000000_zero.up.sql": {}, "m/000000_zero.down.sql": {}},
			wantErr: "positive number",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMigrations(tt.fsys, "m")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestMigrateAndRollback(t *testing.T) {
	ctx := context.Background()
	db := sqliteFile(t)
	ms, err := LoadMigrations(sqliteMigrations(t), "m")
	require.NoError(t, err)

	ran, err := Migrate(ctx, db, ms)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)

	ran, err = Migrate(ctx, db, ms)
	require.NoError(t, err)
	assert.Zero(t, ran, "a second run applies nothing")

	rows, err := AppliedMigrations(ctx, db)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ms[1].Checksum, rows[1].Checksum)

	require.NoError(t, Rollback(ctx, db, ms, 2))
	states, err := PlanMigrations(ctx, db, ms)
	require.NoError(t, err)
	assert.NotNil(t, states[0].Applied)
	assert.Nil(t, states[1].Applied)

	assert.ErrorContains(t, Rollback(ctx, db, ms, 2), "has not been applied")
	assert.ErrorContains(t, Rollback(ctx, db, ms, 42), "not found")
}

func TestMigrate_FailedScriptLeavesNoLedgerRow(t *testing.T) {
	ctx := context.Background()
	db := sqliteFile(t)
	ms := []Migration{{Version: 1, Name: "broken", Up: "CREATE TABLE;", Checksum: "x"}}

	_, err := Migrate(ctx, db, ms)
	assert.ErrorContains(t, err, "apply 000001_broken")

	rows, err := AppliedMigrations(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPlanMigrations_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	db := sqliteFile(t)
	ms, err := LoadMigrations(sqliteMigrations(t), "m")
	require.NoError(t, err)
	_, err = Migrate(ctx, db, ms)
	require.NoError(t, err)

	edited := append([]Migration(nil), ms...)
	edited[0].Checksum = "changed"
	_, err = PlanMigrations(ctx, db, edited)
	assert.ErrorContains(t, err, "000001_species was edited")

	_, err = PlanMigrations(ctx, db, ms[:1])
	assert.ErrorContains(t, err, "000002")
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name            string
		cfg             config.Config
		runSQL, runAuto bool
		expectError     bool
	}{
		{"Hybrid development", config.Config{Env: "development"}, true, true, false},
		{"Hybrid production", config.Config{Env: "production", DBSchemaMode: "hybrid"}, true, false, false},
		{"SQL only", config.Config{Env: "development", DBSchemaMode: "sql"}, true, false, false},
		{"Auto in staging refused", config.Config{Env: "staging", DBSchemaMode: "auto"}, false, false, true},
		{"Auto in production allowed", config.Config{Env: "production", DBSchemaMode: "auto", DBAutoMigrateAllowDestructive: true}, false, true, false},
		{"SQLite always auto", config.Config{Env: "development", DBDriver: "sqlite", DBSchemaMode: "sql"}, false, true, false},
		{"Unknown mode", config.Config{Env: "development", DBSchemaMode: "yolo"}, false, false, true},
		{"Unknown mode on sqlite", config.Config{DBDriver: "sqlite", DBSchemaMode: "yolo"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanSchema(&tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, plan.RunSQL)
			assert.Equal(t, tt.runAuto, plan.RunAutoMigrate)
		})
	}
}

func TestInspectSchema_SQLiteSkipsMigrations(t *testing.T) {
	db := sqliteFile(t)
	report, err := InspectSchema(context.Background(), db, &config.Config{DBDriver: "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, SchemaModeHybrid, report.Mode)
	assert.False(t, report.RunSQL)
	assert.Empty(t, report.Pending())
}
