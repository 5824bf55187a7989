// Package storetest opens migrated in-memory databases for package tests.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/hadibuxm/jadeed/internal/platform/store"
	_ "modernc.org/sqlite"
)

// New opens an in-memory SQLite database (CGO-free via modernc.org/sqlite)
// with the full schema applied.
func New(t testing.TB) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("failed to open sqlite in-memory db: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	runner := store.NewMigrationRunner(store.NewMigrationService(db, "", Logger{}))
	if _, err := runner.RunMigrations(context.Background(), store.Migrations); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return store.New(db)
}

// Logger discards everything.
type Logger struct{}

func (Logger) Info(msg string, args ...any)  {}
func (Logger) Error(msg string, args ...any) {}
func (Logger) Warn(msg string, args ...any)  {}
func (Logger) Debug(msg string, args ...any) {}

// CreateUser inserts a user row and returns its id.
func CreateUser(t testing.TB, st *store.Store, username string) string {
	t.Helper()
	id := store.NewID()
	_, err := st.DB().Exec(`INSERT INTO users (id, username, email, password_hash, date_joined)
		VALUES ($1, $2, $3, $4, $5)`, id, username, username+"@example.com", "x", st.Now())
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return id
}
