package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/httprc/v3/tracesink"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/elevaite/api/internal/audit"
	"github.com/elevaite/api/internal/authz"
	"github.com/elevaite/api/internal/db"
	"github.com/elevaite/api/internal/logging"
)

// APIKeyHeader carries an api key credential. Requests with this header are
// authenticated as the key, never as a user.
const APIKeyHeader = "X-elevAIte-ApiKey"

// Authenticator resolves bearer tokens and api keys into principals.
type Authenticator struct {
	store     db.Querier
	audit     *audit.Logger
	jwksCache *jwk.Cache
	jwksURL   string
}

// NewAuthenticator creates an authenticator against an OIDC issuer's JWKS
// endpoint. Rejected credentials are recorded in the audit log.
func NewAuthenticator(store db.Querier, jwksURL string, auditLog *audit.Logger) *Authenticator {
	return &Authenticator{
		store:   store,
		audit:   auditLog,
		jwksURL: jwksURL,
	}
}

// Initialize sets up the JWKS cache with automatic refresh.
func (a *Authenticator) Initialize(ctx context.Context) error {
	cache, err := jwk.NewCache(
		ctx,
		httprc.NewClient(
			httprc.WithTraceSink(tracesink.NewSlog(slog.Default())),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	err = cache.Register(
		ctx,
		a.jwksURL,
		jwk.WithMaxInterval(240*time.Hour),
		jwk.WithMinInterval(1*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	_, err = cache.Refresh(ctx, a.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to perform initial JWKS fetch: %w", err)
	}

	a.jwksCache = cache
	return nil
}

// Middleware authenticates every request and stores the principal on the
// context. The api key header wins over a bearer token when both are present.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if apiKey := r.Header.Get(APIKeyHeader); apiKey != "" {
			key, err := a.store.GetAPIKey(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					a.audit.Log(r.Context(), "", audit.ActorAPIKey,
						audit.APIKeyEntityType, audit.APIKeyLookupFailure,
						map[string]any{"reason": "unknown api key"})
					http.Error(w, "Invalid API key", http.StatusUnauthorized)
					return
				}
				slog.Error("api key lookup failed", "err", err)
				a.audit.Log(r.Context(), "", audit.ActorAPIKey,
					audit.APIKeyEntityType, audit.APIKeyLookupFailure,
					map[string]any{"error": err.Error()})
				http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
				return
			}
			ctx := authz.WithPrincipal(r.Context(), authz.APIKeyPrincipal{Key: key})
			ctx = logging.WithActor(ctx, key.ID, audit.ActorAPIKey)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		var tokenString string
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			a.audit.Log(r.Context(), "", audit.ActorUser,
				audit.UserEntityType, audit.TokenRejected,
				map[string]any{"reason": "missing bearer token"})
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		user, err := a.ValidateToken(r.Context(), tokenString)
		if err != nil {
			slog.Error("Invalid token", "err", err)
			a.audit.Log(r.Context(), "", audit.ActorUser,
				audit.UserEntityType, audit.TokenRejected,
				map[string]any{"reason": err.Error()})
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := authz.WithPrincipal(r.Context(), authz.UserPrincipal{User: user})
		ctx = logging.WithActor(ctx, user.ID, audit.ActorUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateToken validates a bearer token against the cached JWKS and loads
// the user row for its email claim.
func (a *Authenticator) ValidateToken(ctx context.Context, tokenString string) (db.User, error) {
	if a.jwksCache == nil {
		return db.User{}, fmt.Errorf("authenticator not initialized")
	}

	keyset, err := a.jwksCache.Lookup(ctx, a.jwksURL)
	if err != nil {
		return db.User{}, fmt.Errorf("failed to get cached keyset: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return db.User{}, fmt.Errorf("failed to parse and validate token: %w", err)
	}

	var email string
	if err := token.Get("email", &email); err != nil || email == "" {
		return db.User{}, fmt.Errorf("missing email claim")
	}

	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.User{}, fmt.Errorf("no user for email %q", email)
		}
		return db.User{}, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// isPublicEndpoint determines if an endpoint can be accessed without authentication.
func isPublicEndpoint(path string) bool {
	publicPrefixes := []string{
		"/health",
		"/version",
		"/metrics",
	}

	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return path == "/"
}
