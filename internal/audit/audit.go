// Package audit provides audit logging for authorization decisions and
// schema lifecycle events.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elevaite/api/internal/db"
)

// Event represents an audit event type.
type Event string

// Audit event constants define the types of events that can be logged.
const (
	AuthorizationAllow  Event = "authorization.allow"
	AuthorizationDeny   Event = "authorization.deny"
	AuthorizationError  Event = "authorization.error"
	PermissionsEvaluate Event = "permissions.evaluate"
	SchemaReloadSuccess Event = "schema.reload.success"
	SchemaReloadFailure Event = "schema.reload.failure"
	APIKeyLookupFailure Event = "apikey.lookup.failure"
	TokenRejected       Event = "token.rejected"
)

// ActorType identifies the kind of principal behind an event.
const (
	ActorUser   = "user"
	ActorAPIKey = "api_key"
	ActorSystem = "system"
)

// EntityType represents the type of entity being audited.
type EntityType string

// Entity type constants define the types of entities that can be audited.
const (
	AccountEntityType       EntityType = "accounts"
	ProjectEntityType       EntityType = "projects"
	ApplicationEntityType   EntityType = "applications"
	ConfigurationEntityType EntityType = "configurations"
	InstanceEntityType      EntityType = "instances"
	DatasetEntityType       EntityType = "datasets"
	CollectionEntityType    EntityType = "collections"
	APIKeyEntityType        EntityType = "api_keys"
	UserEntityType          EntityType = "users"
	SchemaEntityType        EntityType = "schemas"
	PermissionsEntityType   EntityType = "permissions"
)

// Logger handles audit event logging to the database and structured logging output.
type Logger struct {
	q db.Querier
}

// New creates a new audit logger instance.
func New(q db.Querier) *Logger {
	return &Logger{q: q}
}

// Log records an audit event to the database and structured logging output.
// It enriches the event with source IP, user agent, and request ID from the
// context. Failures are logged, never propagated; an audit outage must not
// change an authorization outcome.
func (l *Logger) Log(ctx context.Context, actorID, actorType string, entityType EntityType, event Event, data map[string]any) {
	sourceIP := ExtractSourceIP(ctx)

	userAgent := ExtractUserAgent(ctx)

	if data == nil {
		data = make(map[string]any)
	}
	data["source_ip"] = sourceIP
	if userAgent != "" {
		data["user_agent"] = userAgent
	}

	if reqID := ctx.Value("request_id"); reqID != nil {
		data["request_id"] = reqID
	}

	eventData, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal audit event data", "err", err)
		return
	}

	// Emit audit event to stdout for capture by logging agents
	slog.Info("audit event",
		"event", string(event),
		"actor_id", actorID,
		"actor_type", actorType,
		"entity_type", string(entityType),
		"source_ip", sourceIP,
		"data", data,
	)

	err = l.q.CreateAuditEvent(ctx, db.CreateAuditEventParams{
		ActorID:    actorID,
		ActorType:  actorType,
		EntityType: string(entityType),
		Event:      string(event),
		Detail:     eventData,
	})
	if err != nil {
		slog.Error("failed to create audit event", "err", err)
	}
}

// ExtractSourceIP gets the source IP from HTTP request in context.
// Priority: X-Forwarded-For > X-Real-IP > RemoteAddr.
func ExtractSourceIP(ctx context.Context) string {
	if req, ok := ctx.Value("http_request").(*http.Request); ok && req != nil {
		xff := req.Header.Get("X-Forwarded-For")
		if xff != "" {
			// X-Forwarded-For may contain multiple IPs, take the first (client)
			ips := strings.Split(xff, ",")
			if len(ips) > 0 && strings.TrimSpace(ips[0]) != "" {
				return strings.TrimSpace(ips[0])
			}
		}

		xri := req.Header.Get("X-Real-IP")
		if xri != "" {
			return xri
		}

		if req.RemoteAddr != "" {
			if idx := strings.LastIndex(req.RemoteAddr, ":"); idx != -1 {
				return req.RemoteAddr[:idx]
			}
			return req.RemoteAddr
		}
	}

	return "unknown"
}

// ExtractUserAgent gets the user agent from HTTP request in context.
func ExtractUserAgent(ctx context.Context) string {
	if req, ok := ctx.Value("http_request").(*http.Request); ok && req != nil {
		return req.Header.Get("User-Agent")
	}
	return ""
}
