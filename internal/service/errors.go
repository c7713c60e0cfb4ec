// Package service holds the helpers shared by the HTTP service packages.
package service

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/elevaite/api/internal/authz"
)

// errorBody is the JSON error envelope every endpoint returns.
type errorBody struct {
	Detail string `json:"detail"`
}

// WriteError maps an engine error onto the status taxonomy and writes the
// error envelope. Internal details are logged, never surfaced.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := authz.HTTPStatus(err)
	detail := authz.Detail(err)
	if authz.KindOf(err) == authz.KindInternal || authz.KindOf(err) == authz.KindUnknown {
		slog.ErrorContext(r.Context(), "request failed", "err", err)
		detail = "internal error"
	}
	WriteJSON(w, status, errorBody{Detail: detail})
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
