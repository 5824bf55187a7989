package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationRunner_RunMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)
	svc := NewMigrationService(db, "", nil)
	runner := NewMigrationRunner(svc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	migrations := []Migration{
		{ID: "002_add_index", Version: "002", SQL: "CREATE INDEX idx_test_name ON test(name)"},
		{ID: "001_create_table", Version: "001", SQL: "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)"},
	}

	n, err := runner.RunMigrations(ctx, migrations)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = runner.RunMigrations(ctx, migrations)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run should apply nothing")

	applied, err := svc.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_table", "002_add_index"}, applied)
}

func TestMigrationService_RunMigration_InvalidSQLIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	svc := NewMigrationService(db, "", nil)
	ctx := context.Background()
	require.NoError(t, svc.CreateMigrationsTable(ctx))

	err := svc.RunMigration(ctx, Migration{ID: "bad_sql", Version: "003", SQL: "CREATE TABL broken"})
	require.Error(t, err)

	applied, err := svc.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestMigrationService_TableNameValidation(t *testing.T) {
	db := openTestDB(t)
	svc := NewMigrationService(db, "invalid-name!", nil)
	err := svc.CreateMigrationsTable(context.Background())
	require.ErrorIs(t, err, ErrInvalidTableName)
}

func TestMigrations_ApplyCleanly(t *testing.T) {
	db := openTestDB(t)
	runner := NewMigrationRunner(NewMigrationService(db, "", nil))
	n, err := runner.RunMigrations(context.Background(), Migrations)
	require.NoError(t, err)
	assert.Equal(t, len(Migrations), n)
}
