package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevaite/api/internal/audit"
	"github.com/elevaite/api/internal/authz"
	"github.com/elevaite/api/internal/db"
	"github.com/elevaite/api/internal/testutils"
)

// authHarness wires an authenticator over a mock store and captures the
// audit rows it writes.
type authHarness struct {
	auth   *Authenticator
	events *[]db.CreateAuditEventParams
}

func newAuthHarness(mock *testutils.MockQuerier) authHarness {
	var events []db.CreateAuditEventParams
	mock.CreateAuditEventFunc = func(ctx context.Context, arg db.CreateAuditEventParams) error {
		events = append(events, arg)
		return nil
	}
	return authHarness{
		auth:   NewAuthenticator(mock, "https://issuer.test/jwks", audit.New(mock)),
		events: &events,
	}
}

func (h authHarness) serve(t *testing.T, r *http.Request, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	if next == nil {
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	rec := httptest.NewRecorder()
	h.auth.Middleware(next).ServeHTTP(rec, r)
	return rec
}

func TestAuthenticatorUnknownAPIKey(t *testing.T) {
	h := newAuthHarness(&testutils.MockQuerier{})

	req := httptest.NewRequest(http.MethodGet, "/accounts/acc-1", nil)
	req.Header.Set(APIKeyHeader, "nope")
	rec := h.serve(t, req, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, *h.events, 1)
	assert.Equal(t, "apikey.lookup.failure", (*h.events)[0].Event)
	assert.Equal(t, audit.ActorAPIKey, (*h.events)[0].ActorType)
}

func TestAuthenticatorAPIKeySetsPrincipal(t *testing.T) {
	mock := &testutils.MockQuerier{
		GetAPIKeyFunc: func(ctx context.Context, id string) (db.APIKey, error) {
			return db.APIKey{ID: "key-1", ProjectID: "proj-1"}, nil
		},
	}
	h := newAuthHarness(mock)

	var principal authz.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = authz.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/projects/proj-1", nil)
	req.Header.Set(APIKeyHeader, "key-1")
	rec := h.serve(t, req, next)

	assert.Equal(t, http.StatusOK, rec.Code)
	key, ok := principal.(authz.APIKeyPrincipal)
	require.True(t, ok)
	assert.Equal(t, "key-1", key.Key.ID)
	assert.Empty(t, *h.events)
}

func TestAuthenticatorMissingToken(t *testing.T) {
	h := newAuthHarness(&testutils.MockQuerier{})

	req := httptest.NewRequest(http.MethodGet, "/accounts/acc-1", nil)
	rec := h.serve(t, req, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, *h.events, 1)
	assert.Equal(t, "token.rejected", (*h.events)[0].Event)
	assert.Equal(t, audit.ActorUser, (*h.events)[0].ActorType)
}

func TestAuthenticatorRejectedToken(t *testing.T) {
	// The JWKS cache is never initialized, so validation fails before any
	// network or key lookup happens.
	h := newAuthHarness(&testutils.MockQuerier{})

	req := httptest.NewRequest(http.MethodGet, "/accounts/acc-1", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := h.serve(t, req, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, *h.events, 1)
	assert.Equal(t, "token.rejected", (*h.events)[0].Event)
}

func TestAuthenticatorPublicEndpoints(t *testing.T) {
	h := newAuthHarness(&testutils.MockQuerier{})

	for _, path := range []string{"/health", "/version", "/metrics", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := h.serve(t, req, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Empty(t, *h.events)
}
