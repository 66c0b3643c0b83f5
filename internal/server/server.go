// Package server provides the HTTP API: authenticated chat, tool
// listings, and audit trail access.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ovenworks/banneton/internal/agent"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/execctx"
	banotel "github.com/ovenworks/banneton/internal/otel"
	"github.com/ovenworks/banneton/internal/tenant"
	"github.com/ovenworks/banneton/internal/tool"
)

const defaultTimeout = 60 * time.Second

// Server wires the orchestrator, registry, and audit trail behind the
// HTTP API. API keys map key -> tenant_id; every authenticated request is
// scoped to exactly one tenant.
type Server struct {
	router        *chi.Mux
	orchestrator  *agent.Orchestrator
	registry      *tool.Registry
	factory       *execctx.Factory
	auditStore    *audit.Store
	tenantManager *tenant.Manager
	apiKeys       map[string]string
	startTime     time.Time
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithTenantManager enables per-tenant request validation and rate limiting.
func WithTenantManager(tm *tenant.Manager) Option {
	return func(s *Server) { s.tenantManager = tm }
}

// NewServer builds a Server with the required dependencies.
func NewServer(
	orchestrator *agent.Orchestrator,
	registry *tool.Registry,
	factory *execctx.Factory,
	auditStore *audit.Store,
	apiKeys map[string]string,
	opts ...Option,
) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		orchestrator: orchestrator,
		registry:     registry,
		factory:      factory,
		auditStore:   auditStore,
		apiKeys:      apiKeys,
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all
// middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(banotel.Middleware())

	// Unauthenticated
	r.Get("/health", s.handleHealth)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.tenantManager))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/chat", s.handleChat)
		r.Get("/v1/tools", s.handleToolsList)

		r.Get("/v1/audit", s.handleAuditList)
		r.Get("/v1/audit/{id}", s.handleAuditGet)
		r.Get("/v1/audit/{id}/verify", s.handleAuditVerify)
	})

	return r
}
