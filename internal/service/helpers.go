package service

import (
	"net/http"
)

// Scope headers every endpoint accepts. Path parameters win over headers
// when both carry the same id.
const (
	AccountIDHeader = "X-elevAIte-AccountId"
	ProjectIDHeader = "X-elevAIte-ProjectId"
)

// ScopeParams collects the id parameters for a request: scope headers first,
// then the named path values.
func ScopeParams(r *http.Request, pathParams ...string) map[string]string {
	params := make(map[string]string, len(pathParams)+2)
	if v := r.Header.Get(AccountIDHeader); v != "" {
		params["account_id"] = v
	}
	if v := r.Header.Get(ProjectIDHeader); v != "" {
		params["project_id"] = v
	}
	for _, name := range pathParams {
		if v := r.PathValue(name); v != "" {
			params[name] = v
		}
	}
	return params
}
