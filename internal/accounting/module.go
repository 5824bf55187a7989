package accounting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// ModuleName is the module name.
const ModuleName = "accounting"

// ServiceName is the name under which *Service is registered.
const ServiceName = "accounting.service"

// Event types emitted by the ledger.
const (
	EventTypeExpenseSubmitted     = "com.jadeed.accounting.expense.submitted"
	EventTypeExpenseApproved      = "com.jadeed.accounting.expense.approved"
	EventTypeExpenseRejected      = "com.jadeed.accounting.expense.rejected"
	EventTypeExpensePaid          = "com.jadeed.accounting.expense.paid"
	EventTypeInvoiceCreated       = "com.jadeed.accounting.invoice.created"
	EventTypeInvoiceStatusChanged = "com.jadeed.accounting.invoice.status_changed"
	EventTypePaymentRecorded      = "com.jadeed.accounting.payment.recorded"
	EventTypeJournalPosted        = "com.jadeed.accounting.journal.posted"
)

// tenantSetupTimeout bounds the per-organization setup run when a tenant is
// registered.
const tenantSetupTimeout = 30 * time.Second

// Module mounts the accounting API and prepares the ledger of every
// organization registered as a tenant.
type Module struct {
	svc    *Service
	router chi.Router
	auth   authctx.Authenticator
	logger modular.Logger

	// setup tracks tenant setup goroutines; tenant callbacks run under the
	// tenant service lock and must not block.
	setup sync.WaitGroup
}

// NewModule creates the accounting module.
func NewModule() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return ModuleName
}

// Init builds the service and mounts routes.
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
		return ErrServiceUnavailable
	}

	m.svc = NewService(st)
	h := &handlers{
		svc:    m.svc,
		orgs:   organizations.NewService(st),
		events: activity.NewEmitter(app, ModuleName),
	}
	m.router.Group(func(r chi.Router) {
		r.Use(m.auth.Authenticate)
		h.routes(r)
	})

	m.logger.Info("Accounting module initialized")
	return nil
}

// Start implements modular.Startable.
func (m *Module) Start(context.Context) error {
	return nil
}

// Stop waits for pending tenant setup.
func (m *Module) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.setup.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTenantRegistered gives a newly registered organization the default chart
// of accounts and flags its overdue invoices.
func (m *Module) OnTenantRegistered(tenantID modular.TenantID) {
	if m.svc == nil {
		return
	}
	m.setup.Add(1)
	go func() {
		defer m.setup.Done()
		ctx, cancel := context.WithTimeout(context.Background(), tenantSetupTimeout)
		defer cancel()
		m.prepareTenant(ctx, string(tenantID))
	}()
}

func (m *Module) prepareTenant(ctx context.Context, orgID string) {
	added, err := m.svc.EnsureDefaultChart(ctx, orgID)
	if err != nil {
		m.logger.Error("Failed to create default chart of accounts", "organization", orgID, "error", err)
		return
	}
	overdue, err := m.svc.MarkOverdue(ctx, orgID)
	if err != nil {
		m.logger.Warn("Failed to flag overdue invoices", "organization", orgID, "error", err)
	}
	m.logger.Debug("Prepared organization ledger", "organization", orgID, "accountsAdded", added, "overdue", overdue)
}

// OnTenantRemoved implements modular.TenantAwareModule. Ledger data stays.
func (m *Module) OnTenantRemoved(modular.TenantID) {}

// Service returns the accounting service.
func (m *Module) Service() *Service {
	return m.svc
}

// Dependencies returns the names of modules this module depends on
func (m *Module) Dependencies() []string {
	return []string{store.ModuleName, "chimux", "accounts", organizations.ModuleName}
}

// ProvidesServices declares services provided by this module
func (m *Module) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: ServiceName, Description: "Ledger, expenses, invoices and budgets", Instance: m.svc},
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
