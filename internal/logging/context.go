// Package logging carries request-scoped identity through context into
// every slog record: the request id, the authenticated actor, and the
// tenant scope the request runs under.
package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	actorIDKey   contextKey = "actor_id"
	actorTypeKey contextKey = "actor_type"
	accountIDKey contextKey = "account_id"
	projectIDKey contextKey = "project_id"
)

// contextAttrs lists the keys the handler copies onto records, in output
// order.
var contextAttrs = []contextKey{
	requestIDKey, actorIDKey, actorTypeKey, accountIDKey, projectIDKey,
}

// ContextHandler is an slog.Handler that decorates every record with the
// identity attributes stored on the context.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler wraps another handler with context decoration.
func NewContextHandler(handler slog.Handler) *ContextHandler {
	return &ContextHandler{handler: handler}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range contextAttrs {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok
}

// WithActor stores the authenticated principal's identity on the context.
func WithActor(ctx context.Context, actorID, actorType string) context.Context {
	ctx = context.WithValue(ctx, actorIDKey, actorID)
	return context.WithValue(ctx, actorTypeKey, actorType)
}

// WithTenant stores the request's tenant scope on the context. Absent ids
// are skipped.
func WithTenant(ctx context.Context, accountID, projectID string) context.Context {
	if accountID != "" {
		ctx = context.WithValue(ctx, accountIDKey, accountID)
	}
	if projectID != "" {
		ctx = context.WithValue(ctx, projectIDKey, projectID)
	}
	return ctx
}

// GenerateRequestID creates a fresh request id.
func GenerateRequestID() string {
	return uuid.New().String()
}
