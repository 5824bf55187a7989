package productmgmt

import (
	"context"
	"fmt"
	"net/http"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/github"
	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// ModuleName is the module and config section name.
const ModuleName = "productmgmt"

// ServiceName is the name under which *Service is registered.
const ServiceName = "productmgmt.service"

// Event types emitted by the workflow.
const (
	EventTypeStepCreated         = "com.jadeed.workflow.step.created"
	EventTypeStepUpdated         = "com.jadeed.workflow.step.updated"
	EventTypeStepCompleted       = "com.jadeed.workflow.step.completed"
	EventTypeStepDeleted         = "com.jadeed.workflow.step.deleted"
	EventTypeReadmeGenerated     = "com.jadeed.workflow.readme.generated"
	EventTypeCodeChangeRequested = "com.jadeed.workflow.codechange.requested"
)

// Module mounts the product management API.
type Module struct {
	config *Config
	svc    *Service
	logger modular.Logger
}

// NewModule creates the productmgmt module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the productmgmt config section with defaults.
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{
		Provider:        ProviderOpenAI,
		BaseURL:         "https://api.openai.com/v1",
		MaxTokens:       1000,
		ReadmeMaxTokens: 2000,
	}))
	return nil
}

// Init wires the chat backend, the GitHub integration and the document
// archive into the service and mounts routes.
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
		st      *store.Store
		router  chi.Router
		auth    authctx.Authenticator
		client  *http.Client
		repos   *github.Service
		changes *github.CodeChanges
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
	if err := app.GetService(github.ServiceName, &repos); err != nil {
		m.logger.Warn("GitHub service unavailable, repository features are disabled", "error", err)
	}
	if err := app.GetService(github.CodeChangesServiceName, &changes); err != nil {
		m.logger.Warn("Code change service unavailable", "error", err)
	}

	ctx := context.Background()
	chat, err := NewChatModel(ctx, cfg, httpx.WithLogging(client, m.logger))
	if err != nil {
		return err
	}
	if chat == nil {
		m.logger.Warn("Chat API key not set, AI assistant is disabled")
	}
	prompts, err := LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}

	opts := Options{Chat: chat, Prompts: prompts, Logger: m.logger}
	if repos != nil {
		opts.Repositories = repos
	}
	if changes != nil {
		opts.CodeChanges = changes
	}
	if cfg.ArchiveBucket != "" {
		archive, err := NewS3ArchiveFromEnv(ctx, cfg.ArchiveBucket, cfg.ArchiveRegion)
		if err != nil {
			return err
		}
		opts.Archive = archive
	}

	m.svc = NewService(st, cfg, opts)
	h := &handlers{
		svc:    m.svc,
		auth:   auth,
		orgs:   organizations.NewService(st),
		events: activity.NewEmitter(app, ModuleName),
	}
	h.routes(router)

	m.logger.Info("Product management module initialized",
		"provider", cfg.Provider, "model", cfg.Model, "archiveBucket", cfg.ArchiveBucket)
	return nil
}

// Service returns the product management service.
func (m *Module) Service() *Service {
	return m.svc
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{store.ModuleName, "chimux", "httpclient", "accounts", "secrets", github.ModuleName}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Product management workflow", Instance: m.svc},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: store.ServiceName, Required: true},
		{Name: "chimux.router", Required: true},
		{Name: authctx.AuthenticatorService, Required: true},
		{Name: "httpclient", Required: true},
		{Name: github.ServiceName, Required: false},
		{Name: github.CodeChangesServiceName, Required: false},
	}
}
