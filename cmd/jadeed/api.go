package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular/modules/chimux"
	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/platform/httpx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

const healthTimeout = 2 * time.Second

// rootModule serves the index and health routes.
type rootModule struct {
	store *store.Store
}

func newRootModule() *rootModule {
	return &rootModule{}
}

func (m *rootModule) Name() string {
	return "jadeed"
}

func (m *rootModule) Init(app modular.Application) error {
	var router chi.Router
	if err := app.GetService(store.ServiceName, &m.store); err != nil {
		return fmt.Errorf("failed to get store service: %w", err)
	}
	if err := app.GetService("chimux.router", &router); err != nil {
		return fmt.Errorf("failed to get router service: %w", err)
	}
	m.routes(router)
	return nil
}

func (m *rootModule) routes(r chi.Router) {
	r.Get("/", m.index)
	r.Get("/healthz", m.healthz)
}

func (m *rootModule) index(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (m *rootModule) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := m.store.DB().PingContext(ctx); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (m *rootModule) Dependencies() []string {
	return []string{store.ModuleName, "chimux"}
}

func (m *rootModule) ProvidesServices() []modular.ServiceProvider {
	return nil
}

func (m *rootModule) RequiresServices() []modular.ServiceDependency {
	return []modular.ServiceDependency{
		{Name: store.ServiceName, Required: true},
		{Name: "chimux.router", Required: true},
	}
}

// requestLogModule hands chimux the request logging middleware.
type requestLogModule struct {
	logger modular.Logger
}

func newRequestLogModule() *requestLogModule {
	return &requestLogModule{}
}

func (m *requestLogModule) Name() string {
	return "requestlog"
}

func (m *requestLogModule) Init(app modular.Application) error {
	m.logger = app.Logger()
	return nil
}

// ProvideMiddleware implements chimux.MiddlewareProvider. chimux may ask
// before Init has run, so the logger is resolved on the first request.
func (m *requestLogModule) ProvideMiddleware() []chimux.Middleware {
	return []chimux.Middleware{
		func(next http.Handler) http.Handler {
			var (
				once    sync.Once
				handler http.Handler
			)
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				once.Do(func() { handler = httpx.RequestLogger(m.logger)(next) })
				handler.ServeHTTP(w, r)
			})
		},
	}
}

func (m *requestLogModule) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: "requestlog.middleware", Description: "Request logging middleware for chimux", Instance: m},
	}
}

func (m *requestLogModule) RequiresServices() []modular.ServiceDependency {
	return nil
}
