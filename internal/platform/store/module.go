package store

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular/modules/database"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ModuleName is the module and config section name.
const ModuleName = "store"

// ServiceName is the name under which *Store is registered.
const ServiceName = "store"

// Module wires the shared database connection, applies migrations and
// provides *Store to the domain modules.
type Module struct {
	config *Config
	store  *Store
	logger modular.Logger
	runner *MigrationRunner
	svc    *MigrationService

	// migrations applied since start
	applied int
}

// NewModule creates the store module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the store config section with defaults.
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{
		MigrationsTable: "schema_migrations",
		AutoMigrate:     true,
	}))
	return nil
}

// Init resolves the default connection and, if configured, migrates.
func (m *Module) Init(app modular.Application) error {
	provider, err := app.GetConfigSection(ModuleName)
	if err != nil {
		return fmt.Errorf("failed to get config section: %w", err)
	}
	cfg, ok := provider.GetConfig().(*Config)
	if !ok {
		return ErrInvalidConfigType
	}
	m.config = cfg
	m.logger = app.Logger()

	var manager *database.Module
	if err := app.GetService("database.manager", &manager); err != nil {
		return fmt.Errorf("failed to get database manager: %w", err)
	}
	if manager == nil {
		return ErrDatabaseManagerType
	}
	db := manager.GetDefaultConnection()
	if db == nil {
		return ErrNoConnection
	}

	m.store = New(db)
	m.svc = NewMigrationService(db, cfg.MigrationsTable, m.logger)
	if subject, ok := app.(modular.Subject); ok {
		m.svc.SetEventEmitter(subjectEmitter{subject: subject})
	}
	m.runner = NewMigrationRunner(m.svc)

	if cfg.AutoMigrate {
		if _, err := m.Migrate(context.Background()); err != nil {
			return err
		}
	}

	m.logger.Info("Store initialized", "autoMigrate", cfg.AutoMigrate)
	return nil
}

// Migrate applies pending migrations and returns how many ran.
func (m *Module) Migrate(ctx context.Context) (int, error) {
	n, err := m.runner.RunMigrations(ctx, Migrations)
	m.applied += n
	if err != nil {
		return n, fmt.Errorf("failed to migrate: %w", err)
	}
	return n, nil
}

// Applied returns how many migrations this process has applied.
func (m *Module) Applied() int {
	return m.applied
}

// Store returns the initialized store.
func (m *Module) Store() *Store {
	return m.store
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{"database"}
}

// ProvidesServices declares the services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Transaction-aware SQL store", Instance: m.store},
		{Name: "store.migrations", Description: "Schema migration runner", Instance: m},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: "database.manager", Required: true},
	}
}

// subjectEmitter forwards migration events to the application's observers.
type subjectEmitter struct {
	subject modular.Subject
}

func (e subjectEmitter) EmitEvent(ctx context.Context, event cloudevents.Event) error {
	if err := e.subject.NotifyObservers(ctx, event); err != nil {
		return fmt.Errorf("failed to notify observers: %w", err)
	}
	return nil
}
