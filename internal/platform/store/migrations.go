package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Event types emitted while applying migrations.
const (
	EventTypeMigrationApplied = "com.jadeed.store.migration.applied"
	EventTypeMigrationFailed  = "com.jadeed.store.migration.failed"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateTableName(tableName string) error {
	if !tableNamePattern.MatchString(tableName) {
		return ErrInvalidTableName
	}
	return nil
}

// Migration is a single ordered schema change.
type Migration struct {
	ID      string
	Version string
	SQL     string
}

// EventEmitter receives migration lifecycle events.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event cloudevents.Event) error
}

// MigrationService applies migrations and tracks which ones ran.
type MigrationService struct {
	db        *sql.DB
	emitter   EventEmitter
	logger    modular.Logger
	tableName string
}

// NewMigrationService creates a migration service that tracks state in tableName.
func NewMigrationService(db *sql.DB, tableName string, logger modular.Logger) *MigrationService {
	if tableName == "" {
		tableName = "schema_migrations"
	}
	return &MigrationService{db: db, tableName: tableName, logger: logger}
}

// SetEventEmitter sets the emitter used for migration events.
func (m *MigrationService) SetEventEmitter(emitter EventEmitter) {
	m.emitter = emitter
}

// CreateMigrationsTable creates the tracking table if it doesn't exist.
func (m *MigrationService) CreateMigrationsTable(ctx context.Context) error {
	if err := validateTableName(m.tableName); err != nil {
		return fmt.Errorf("invalid table name: %w", err)
	}

	// #nosec G201 - table name is validated above
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`, m.tableName)

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// AppliedMigrations returns the IDs of migrations that already ran, oldest first.
func (m *MigrationService) AppliedMigrations(ctx context.Context) ([]string, error) {
	if err := validateTableName(m.tableName); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	// #nosec G201 - table name is validated above
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}
	return ids, nil
}

// RunMigration executes one migration and records it in the same transaction.
func (m *MigrationService) RunMigration(ctx context.Context, migration Migration) (err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			m.emit(ctx, EventTypeMigrationFailed, migration, start, err)
		}
	}()

	if err = validateTableName(m.tableName); err != nil {
		return fmt.Errorf("invalid table name for migration record: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.ID, err)
	}

	// #nosec G201 - table name is validated above
	record := fmt.Sprintf("INSERT INTO %s (id, version, applied_at) VALUES ($1, $2, $3)", m.tableName)
	if _, err = tx.ExecContext(ctx, record, migration.ID, migration.Version, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", migration.ID, err)
	}

	if m.logger != nil {
		m.logger.Info("Applied migration", "id", migration.ID, "version", migration.Version)
	}
	m.emit(ctx, EventTypeMigrationApplied, migration, start, nil)
	return nil
}

func (m *MigrationService) emit(ctx context.Context, eventType string, migration Migration, start time.Time, cause error) {
	if m.emitter == nil {
		return
	}
	data := map[string]any{
		"migration_id": migration.ID,
		"version":      migration.Version,
		"duration_ms":  time.Since(start).Milliseconds(),
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	event := modular.NewCloudEvent(eventType, "jadeed.store", data, nil)
	if err := m.emitter.EmitEvent(ctx, event); err != nil && m.logger != nil {
		m.logger.Warn("Failed to emit migration event", "type", eventType, "error", err)
	}
}

// MigrationRunner applies a set of migrations in version order.
type MigrationRunner struct {
	service *MigrationService
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(service *MigrationService) *MigrationRunner {
	return &MigrationRunner{service: service}
}

// RunMigrations applies every migration that has not been applied yet and
// returns how many ran.
func (r *MigrationRunner) RunMigrations(ctx context.Context, migrations []Migration) (int, error) {
	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Version < ordered[j].Version
	})

	if err := r.service.CreateMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := r.service.AppliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}

	count := 0
	for _, migration := range ordered {
		if done[migration.ID] {
			continue
		}
		if err := r.service.RunMigration(ctx, migration); err != nil {
			return count, fmt.Errorf("failed to run migration %s: %w", migration.ID, err)
		}
		count++
	}
	return count, nil
}
