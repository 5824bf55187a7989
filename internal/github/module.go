package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// ModuleName is the module and config section name.
const ModuleName = "github"

// Service names registered by the module.
const (
	ServiceName            = "github.service"
	CodeChangesServiceName = "github.codechanges"
)

// Event types emitted by the integration.
const (
	EventTypeConnected           = "com.jadeed.github.connected"
	EventTypeDisconnected        = "com.jadeed.github.disconnected"
	EventTypeRepositoriesSynced  = "com.jadeed.github.repositories.synced"
	EventTypeRepositoryCreated   = "com.jadeed.github.repository.created"
	EventTypeCodeChangeRequested = "com.jadeed.github.codechange.requested"
	EventTypeCodeChangeCompleted = "com.jadeed.github.codechange.completed"
	EventTypeCodeChangeFailed    = "com.jadeed.github.codechange.failed"
)

// syncTimeout bounds one scheduled resync of all connections.
const syncTimeout = 30 * time.Minute

// Module mounts the GitHub API, resyncs repositories on a schedule and owns
// the code change workers.
type Module struct {
	config  *Config
	svc     *Service
	changes *CodeChanges
	cron    *cron.Cron
	logger  modular.Logger
}

// NewModule creates the github module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the github config section with defaults.
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{
		Scopes:            "repo user",
		FrontendURL:       "http://localhost:3000",
		AuthURL:           "https://github.com/login/oauth/authorize",
		TokenURL:          "https://github.com/login/oauth/access_token",
		APIBase:           "https://api.github.com",
		SyncSchedule:      "@every 6h",
		AgentCommand:      "codex exec --full-auto",
		AgentTimeout:      30 * time.Minute,
		CommitAuthorName:  "Jadeed AI",
		CommitAuthorEmail: "ai@jadeed.dev",
	}))
	return nil
}

// Init builds the services and mounts routes.
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
		router chi.Router
		auth   authctx.Authenticator
		client *http.Client
	)
	if err := app.GetService(store.ServiceName, &st); err != nil {
		return fmt.Errorf("failed to get store service: %w", err)
	}
	if err := app.GetService("chimux.router", &router); err != nil {
		return fmt.Errorf("failed to get router service: %w", err)
	}
	if err := app.GetService(authctx.AuthenticatorService, &auth); err != nil {
		return fmt.Errorf("failed to get authenticator: %w", err)
	}
	if err := app.GetService("httpclient", &client); err != nil {
		return fmt.Errorf("failed to get http client: %w", err)
	}
	if st == nil || router == nil || auth == nil || client == nil {
		return ErrServiceUnavailable
	}

	events := activity.NewEmitter(app, ModuleName)
	m.svc = NewService(st, cfg, client, m.logger)
	m.changes = NewCodeChanges(m.svc, CommandAgent{Command: cfg.AgentCommand}, events)
	h := &handlers{svc: m.svc, changes: m.changes, auth: auth, events: events, logger: m.logger}
	h.routes(router)

	if cfg.SyncSchedule != "" {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(cfg.SyncSchedule, m.syncAll); err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", cfg.SyncSchedule, err)
		}
	}

	m.logger.Info("GitHub module initialized", "apiBase", cfg.APIBase, "syncSchedule", cfg.SyncSchedule)
	return nil
}

func (m *Module) syncAll() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if err := m.svc.SyncAll(ctx); err != nil {
		m.logger.Error("Scheduled repository sync failed", "error", err)
	}
}

// Start starts the resync schedule.
func (m *Module) Start(context.Context) error {
	if m.cron != nil {
		m.cron.Start()
	}
	return nil
}

// Stop stops the schedule and waits for running syncs and code changes.
func (m *Module) Stop(ctx context.Context) error {
	if m.cron != nil {
		select {
		case <-m.cron.Stop().Done():
		case <-ctx.Done():
			m.logger.Warn("Scheduled sync still running at shutdown")
		}
	}
	if m.changes != nil {
		return m.changes.Shutdown(ctx)
	}
	return nil
}

// Service returns the github service.
func (m *Module) Service() *Service {
	return m.svc
}

// CodeChanges returns the code change runner.
func (m *Module) CodeChanges() *CodeChanges {
	return m.changes
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{store.ModuleName, "chimux", "httpclient", "accounts", "secrets"}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "GitHub connections and repositories", Instance: m.svc},
		{Name: CodeChangesServiceName, Description: "AI code change runner", Instance: m.changes},
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
