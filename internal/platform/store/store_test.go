package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := openTestDB(t)
	_, err := db.Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL)")
	require.NoError(t, err)
	return New(db)
}

func count(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM kv").Scan(&n))
	return n
}

func TestStore_WithTx_Commits(t *testing.T) {
	s := newTestStore(t)
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := s.Q(ctx).ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ($1, $2)", "a", "1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, s))
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := s.Q(ctx).ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ($1, $2)", "a", "1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, s))
}

func TestStore_WithTx_NestedReusesOuter(t *testing.T) {
	s := newTestStore(t)
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		return s.WithTx(ctx, func(inner context.Context) error {
			_, err := s.Q(inner).ExecContext(inner, "INSERT INTO kv (k, v) VALUES ($1, $2)", "b", "2")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, s))
}

func TestIsUniqueViolation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DB().Exec("INSERT INTO kv (k, v) VALUES ($1, $2)", "a", "1")
	require.NoError(t, err)
	_, err = s.DB().Exec("INSERT INTO kv (k, v) VALUES ($1, $2)", "a", "2")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("other")))

	pgErr := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", Message: "conflict"})
	assert.True(t, IsUniqueViolation(pgErr))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503", Message: "fk"}))
}
