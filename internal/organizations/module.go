package organizations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/modular"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// ModuleName is the module name.
const ModuleName = "organizations"

const tenantSyncTimeout = 30 * time.Second

// ServiceName is the name under which *Service is registered.
const ServiceName = "organizations.service"

// Event types emitted for organization changes.
const (
	EventTypeOrganizationCreated = "com.jadeed.organization.created"
	EventTypeDepartmentCreated   = "com.jadeed.organization.department.created"
	EventTypeTeamCreated         = "com.jadeed.organization.team.created"
	EventTypeMemberAdded         = "com.jadeed.organization.member.added"
)

var (
	errServiceUnavailable = errors.New("required service unavailable")
	errInvalidConfigType  = errors.New("invalid config type for organizations module")
)

// Config is the organizations config section.
type Config struct {
	TenantSyncSchedule string `json:"tenant_sync_schedule" yaml:"tenant_sync_schedule" env:"TENANT_SYNC_SCHEDULE" default:"@every 1m" desc:"Cron schedule registering organizations created by other processes as tenants, empty disables"`
}

// Module exposes the organizations service and API and keeps the tenant
// registry in step with the organizations table.
type Module struct {
	svc     *Service
	router  chi.Router
	auth    authctx.Authenticator
	tenants modular.TenantService
	events  *activity.Emitter
	logger  modular.Logger
	cron    *cron.Cron
}

// NewModule creates the organizations module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// RegisterConfig registers the organizations config section.
func (m *Module) RegisterConfig(app modular.Application) error {
	app.RegisterConfigSection(ModuleName, modular.NewStdConfigProvider(&Config{TenantSyncSchedule: "@every 1m"}))
	return nil
}

// Init resolves services, mounts routes and subscribes to organization
// creation events.
func (m *Module) Init(app modular.Application) error {
	m.logger = app.Logger()

	var st *store.Store
	if err := app.GetService(store.ServiceName, &st); err != nil {
		return fmt.Errorf("failed to get store service: %w", err)
	}
	if err := app.GetService("chimux.router", &m.router); err != nil {
		return fmt.Errorf("failed to get router service: %w", err)
	}
	if err := app.GetService(authctx.AuthenticatorService, &m.auth); err != nil {
		return fmt.Errorf("failed to get authenticator: %w", err)
	}
	if st == nil || m.router == nil || m.auth == nil {
		return errServiceUnavailable
	}
	// Tenancy is optional; without a tenant service organizations are not
	// announced to tenant-aware modules.
	if err := app.GetService("tenantService", &m.tenants); err != nil {
		m.logger.Debug("Tenant service not available", "error", err)
	}

	m.svc = NewService(st)
	m.events = activity.NewEmitter(app, ModuleName)

	h := &handlers{svc: m.svc, events: m.events}
	m.router.Group(func(r chi.Router) {
		r.Use(m.auth.Authenticate)
		h.routes(r)
	})

	if subject, ok := app.(modular.Subject); ok {
		if err := subject.RegisterObserver(m, EventTypeOrganizationCreated); err != nil {
			return fmt.Errorf("failed to register organization observer: %w", err)
		}
	}

	provider, err := app.GetConfigSection(ModuleName)
	if err != nil {
		return fmt.Errorf("failed to get config section: %w", err)
	}
	cfg, ok := provider.GetConfig().(*Config)
	if !ok {
		return errInvalidConfigType
	}
	if cfg.TenantSyncSchedule != "" && m.tenants != nil {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(cfg.TenantSyncSchedule, m.scheduledSync); err != nil {
			return fmt.Errorf("invalid tenant sync schedule %q: %w", cfg.TenantSyncSchedule, err)
		}
	}

	m.logger.Info("Organizations module initialized", "tenantSyncSchedule", cfg.TenantSyncSchedule)
	return nil
}

// Start registers every active organization as a tenant and starts the
// resync schedule.
func (m *Module) Start(ctx context.Context) error {
	if m.tenants == nil {
		return nil
	}
	added, err := m.syncTenants(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("Registered organization tenants", "count", added)
	if m.cron != nil {
		m.cron.Start()
	}
	return nil
}

// Stop waits for a running resync to finish.
func (m *Module) Stop(ctx context.Context) error {
	if m.cron == nil {
		return nil
	}
	select {
	case <-m.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncTenants registers active organizations that are not tenants yet.
// Organizations seeded by another process only reach the server this way.
func (m *Module) syncTenants(ctx context.Context) (int, error) {
	known := map[modular.TenantID]bool{}
	for _, id := range m.tenants.GetTenants() {
		known[id] = true
	}
	orgs, err := m.svc.ListActiveOrganizations(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, org := range orgs {
		if known[modular.TenantID(org.ID)] {
			continue
		}
		m.registerTenant(org.ID)
		added++
	}
	return added, nil
}

func (m *Module) scheduledSync() {
	ctx, cancel := context.WithTimeout(context.Background(), tenantSyncTimeout)
	defer cancel()
	added, err := m.syncTenants(ctx)
	if err != nil {
		m.logger.Error("Tenant sync failed", "error", err)
		return
	}
	if added > 0 {
		m.logger.Info("Registered new organization tenants", "count", added)
	}
}

// OnEvent registers newly created organizations as tenants.
func (m *Module) OnEvent(_ context.Context, event cloudevents.Event) error {
	if event.Type() != EventTypeOrganizationCreated || m.tenants == nil {
		return nil
	}
	if id := event.Subject(); id != "" {
		m.registerTenant(id)
	}
	return nil
}

// ObserverID implements modular.Observer
func (m *Module) ObserverID() string {
	return ModuleName
}

func (m *Module) registerTenant(orgID string) {
	if err := m.tenants.RegisterTenant(modular.TenantID(orgID), nil); err != nil {
		m.logger.Warn("Failed to register organization tenant", "organization", orgID, "error", err)
	}
}

// Service returns the organizations service.
func (m *Module) Service() *Service {
	return m.svc
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{store.ModuleName, "chimux", "accounts"}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Organizations, roles and memberships", Instance: m.svc},
	}
}

// RequiresServices declares services required by this module
func (m *Module) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: store.ServiceName, Required: true},
		{Name: "chimux.router", Required: true},
		{Name: authctx.AuthenticatorService, Required: true},
	}
}
