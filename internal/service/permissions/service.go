// Package permissions exposes the permissions introspection endpoint.
package permissions

import (
	"encoding/json"
	"net/http"

	"github.com/elevaite/api/internal/authz"
	"github.com/elevaite/api/internal/service"
)

// Service answers batch permission probes for the authenticated principal.
type Service struct {
	engine *authz.Engine
}

// NewService creates a new permissions service.
func NewService(engine *authz.Engine) *Service {
	return &Service{engine: engine}
}

// HandleEvaluate serves POST /v1/permissions/evaluate. The scope comes from
// the request body, falling back to the scope headers.
func (s *Service) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		service.WriteError(w, r, authz.Unauthenticated("no principal on request"))
		return
	}

	var req authz.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		service.WriteError(w, r, authz.Mismatch("invalid request body: %v", err))
		return
	}
	if req.AccountID == "" {
		req.AccountID = r.Header.Get(service.AccountIDHeader)
	}
	if req.ProjectID == "" {
		req.ProjectID = r.Header.Get(service.ProjectIDHeader)
	}
	if len(req.Probes) == 0 {
		service.WriteError(w, r, authz.Mismatch("no probes in request"))
		return
	}

	results, err := s.engine.Evaluate(r.Context(), principal, req)
	if err != nil {
		service.WriteError(w, r, err)
		return
	}
	service.WriteJSON(w, http.StatusOK, results)
}
