// Package api exposes the authorization backend over REST.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/burnt-labs/abstraxion-backend/backend"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	backend *backend.Backend
	audit   *auditLogger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request-audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// New creates a new API instance.
func New(b *backend.Backend, opts ...Option) *API {
	a := &API{backend: b}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Post("/connect", a.handleConnectInit)
	r.Post("/callback", a.handleCallback)
	r.Get("/status", a.handleStatus)
	r.Post("/disconnect", a.handleDisconnect)
	r.Post("/refresh", a.handleRefresh)
	r.Get("/audit", a.handleAuditLogs)
	r.Get("/cache/stats", a.handleCacheStats)

	return r
}
