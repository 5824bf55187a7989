package aiengine

import (
	"fmt"
	"net/http"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

// ModuleName is the module and config section name.
const ModuleName = "aiengine"

// ServiceName is the name under which *Client is registered.
const ServiceName = "aiengine.client"

// EventTypeSessionCreated is emitted after a session starts.
const EventTypeSessionCreated = "com.jadeed.aiengine.session.created"

// Module mounts the session proxy.
type Module struct {
	config *Config
	client *Client
	logger modular.Logger
}

// NewModule creates the aiengine module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the aiengine config section.
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{
		BaseURL: "https://api.devin.ai/v1",
	}))
	return nil
}

// Init builds the client and mounts routes.
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
		router chi.Router
		auth   authctx.Authenticator
		client *http.Client
	)
	if err := app.GetService("chimux.router", &router); err != nil {
		return fmt.Errorf("failed to get router service: %w", err)
	}
	if err := app.GetService(authctx.AuthenticatorService, &auth); err != nil {
		return fmt.Errorf("failed to get authenticator: %w", err)
	}
	if err := app.GetService("httpclient", &client); err != nil {
		return fmt.Errorf("failed to get http client: %w", err)
	}
	if router == nil || auth == nil || client == nil {
		return ErrServiceUnavailable
	}

	m.client = NewClient(httpx.WithLogging(client, m.logger), cfg)
	h := &handlers{sessions: m.client, auth: auth, events: activity.NewEmitter(app, ModuleName)}
	h.routes(router)

	if cfg.APIKey == "" {
		m.logger.Warn("AI engine API key not set, session calls will fail")
	}
	m.logger.Info("AI engine module initialized", "baseURL", cfg.BaseURL)
	return nil
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{"chimux", "httpclient", "accounts", "secrets"}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Agent session API client", Instance: m.client},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: "chimux.router", Required: true},
		{Name: authctx.AuthenticatorService, Required: true},
		{Name: "httpclient", Required: true},
	}
}
