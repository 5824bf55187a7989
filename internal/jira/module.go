package jira

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// ModuleName is the module and config section name.
const ModuleName = "jira"

// ServiceName is the name under which *Service is registered.
const ServiceName = "jira.service"

// Event types emitted by the integration.
const (
	EventTypeConnected    = "com.jadeed.jira.connected"
	EventTypeDisconnected = "com.jadeed.jira.disconnected"
	EventTypeIssueUpdated = "com.jadeed.jira.issue.updated"
	EventTypeIssueDeleted = "com.jadeed.jira.issue.deleted"
)

// Module mounts the Jira API.
type Module struct {
	config *Config
	svc    *Service
	router chi.Router
	logger modular.Logger
}

// NewModule creates the jira module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the jira config section with defaults.
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{
		Scopes:        "read:jira-work write:jira-work read:jira-user offline_access",
		AuthURL:       "https://auth.atlassian.com/authorize",
		TokenURL:      "https://auth.atlassian.com/oauth/token",
		APIBase:       "https://api.atlassian.com",
		RefreshLeeway: 60 * time.Second,
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
	m.config = cfg
	m.logger = app.Logger()

	var (
		st     *store.Store
		auth   authctx.Authenticator
		client *http.Client
	)
	if err := app.GetService(store.ServiceName, &st); err != nil {
		return fmt.Errorf("failed to get store service: %w", err)
	}
	if err := app.GetService("chimux.router", &m.router); err != nil {
		return fmt.Errorf("failed to get router service: %w", err)
	}
	if err := app.GetService(authctx.AuthenticatorService, &auth); err != nil {
		return fmt.Errorf("failed to get authenticator: %w", err)
	}
	if err := app.GetService("httpclient", &client); err != nil {
		return fmt.Errorf("failed to get http client: %w", err)
	}
	if st == nil || m.router == nil || auth == nil || client == nil {
		return ErrServiceUnavailable
	}

	m.svc = NewService(st, cfg, client)
	h := &handlers{svc: m.svc, auth: auth, events: activity.NewEmitter(app, ModuleName)}
	h.routes(m.router)

	if !cfg.Configured() {
		m.logger.Warn("Jira client id not set, connect is disabled")
	}
	m.logger.Info("Jira module initialized", "apiBase", cfg.APIBase)
	return nil
}

// Start implements modular.Startable.
func (m *Module) Start(context.Context) error {
	return nil
}

// Stop implements modular.Startable.
func (m *Module) Stop(context.Context) error {
	return nil
}

// Service returns the jira service.
func (m *Module) Service() *Service {
	return m.svc
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{store.ModuleName, "chimux", "httpclient", "accounts", "secrets"}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Atlassian OAuth and Jira issues", Instance: m.svc},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: store.ServiceName, Required: true},
		{Name: "chimux.router", Required: true},
		{Name: authctx.AuthenticatorService, Required: true},
		{Name: "httpclient", Required: true},
	}
}
