package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// ModuleName is the module and config section name.
const ModuleName = "accounts"

// ServiceName is the name under which *Service is registered.
const ServiceName = "accounts.service"

// Module provides authentication to the other modules and mounts the login
// and signup APIs.
type Module struct {
	config *Config
	svc    *Service
	auth   *Authenticator
	router chi.Router
	logger modular.Logger
}

// NewModule creates the accounts module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the accounts config section with defaults.
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{
		Issuer:            "jadeed",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        24 * time.Hour,
		BcryptCost:        12,
		MinPasswordLength: 8,
	}))
	return nil
}

// Init builds the service and mounts routes.
func (m *Module) Init(app modular.Application) error {
	provider, err := app.GetConfigSection(ModuleName)
	if err != nil {
		return fmt.Errorf("failed to get config section: %w", err)
	}
	cfg, ok := provider.GetConfig().(*Config)
	if !ok {
		return ErrInvalidConfigType
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg
	m.logger = app.Logger()

	var st *store.Store
	if err := app.GetService(store.ServiceName, &st); err != nil {
		return fmt.Errorf("failed to get store service: %w", err)
	}
	if err := app.GetService("chimux.router", &m.router); err != nil {
		return fmt.Errorf("failed to get router service: %w", err)
	}
	if st == nil || m.router == nil {
		return ErrServiceUnavailable
	}

	m.svc = NewService(st, cfg, organizations.NewService(st), activity.NewEmitter(app, ModuleName))
	m.auth = NewAuthenticator(m.svc)
	h := &handlers{svc: m.svc, auth: m.auth}
	h.routes(m.router)

	m.logger.Info("Accounts module initialized", "accessTTL", cfg.AccessTTL, "refreshTTL", cfg.RefreshTTL)
	return nil
}

// Start drops expired entries from the refresh token blacklist.
func (m *Module) Start(ctx context.Context) error {
	n, err := m.svc.tokens.PurgeExpired(ctx)
	if err != nil {
		m.logger.Warn("Failed to purge revoked tokens", "error", err)
		return nil
	}
	m.logger.Debug("Purged revoked tokens", "count", n)
	return nil
}

// Stop implements modular.Startable.
func (m *Module) Stop(context.Context) error {
	return nil
}

// Service returns the accounts service.
func (m *Module) Service() *Service {
	return m.svc
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{store.ModuleName, "chimux", "secrets"}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: authctx.AuthenticatorService, Description: "Bearer JWT and API token authentication", Instance: m.auth},
		{Name: ServiceName, Description: "Users, login and signup", Instance: m.svc},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: store.ServiceName, Required: true},
		{Name: "chimux.router", Required: true},
	}
}
