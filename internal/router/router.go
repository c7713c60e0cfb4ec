// Package router sets up and configures the HTTP router and all API endpoints.
package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/elevaite/api/internal/authz"
	"github.com/elevaite/api/internal/db"
	"github.com/elevaite/api/internal/middleware"
	"github.com/elevaite/api/internal/service/permissions"
	"github.com/elevaite/api/internal/service/project"
)

// Dependencies holds all the dependencies needed to create routes.
type Dependencies struct {
	Queries        db.Querier
	Engine         *authz.Engine
	Authenticator  *middleware.Authenticator
	AllowedOrigins []string
}

// New creates a new HTTP handler with all routes configured.
func New(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// The evaluate endpoint fans out into per-probe checks, so it gets a
	// stricter per-principal limit on top of the global limiter.
	evaluateLimiter := NewRateLimiter(rate.Limit(10), 30)

	permissionsService := permissions.NewService(deps.Engine)
	projectService := project.NewService(deps.Queries, deps.Engine)

	mux.Handle("POST /v1/permissions/evaluate",
		evaluateLimiter.LimitByPrincipal(http.HandlerFunc(permissionsService.HandleEvaluate)))

	mux.HandleFunc("GET /v1/projects/{project_id}/applications", projectService.HandleListApplications)
	mux.HandleFunc("GET /v1/projects/{project_id}/datasets", projectService.HandleListDatasets)

	registerUtilityRoutes(mux)

	// Global rate limiter (100 requests per second per IP)
	globalRateLimiter := NewRateLimiter(rate.Limit(100), 100)

	var handler http.Handler = mux

	// Log all HTTP requests with status codes
	handler = middleware.AccessLogger(handler)

	// Validate bearer token or API key
	if deps.Authenticator != nil {
		handler = deps.Authenticator.Middleware(handler)
	}

	// Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// Apply global rate limiter
	handler = globalRateLimiter.LimitByIP(handler)

	// Make the request available for audit enrichment
	handler = middleware.RequestContextMiddleware(handler)

	// Apply request ID middleware first
	handler = middleware.RequestIDMiddleware(handler)

	// Apply CORS
	handler = middleware.CorsMiddleware(handler, deps.AllowedOrigins)

	return handler
}

// registerUtilityRoutes adds health, version, and metrics routes.
func registerUtilityRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", handleHealth)

	mux.HandleFunc("/version", handleVersion)

	mux.Handle("/metrics", promhttp.Handler())
}

// handleHealth responds to health check requests.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleVersion responds with the API version.
func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"version":"v1.0.0","api":"elevaite-authz"}`))
}
