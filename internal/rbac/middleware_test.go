package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schooldesk/schooldesk/internal/observability"
	"github.com/schooldesk/schooldesk/internal/platform/httpx"
	"github.com/schooldesk/schooldesk/internal/shared"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, target string, id *shared.Identity) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if id != nil {
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) httpx.Envelope {
	t.Helper()
	var env httpx.Envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return env
}

func TestRequirePermission(t *testing.T) {
	m := Middleware{Metrics: observability.NewMetrics()}
	mw := m.RequirePermission(ResourceLessons, PermissionDelete)

	assert.Equal(t, http.StatusNoContent, serve(t, mw, "/api/lessons/1", principal(RoleTeacher)).Code)

	rr := serve(t, mw, "/api/lessons/1", principal(RoleStudent))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "Access denied", env.Message)
}

func TestRequireMissingIdentity(t *testing.T) {
	m := Middleware{}
	rr := serve(t, m.RequireRole(RoleAdministrator), "/api/users", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Authentication required", decodeEnvelope(t, rr).Message)
}

func TestRequireRole(t *testing.T) {
	m := Middleware{}
	mw := m.RequireRole(RoleAdministrator, RoleLibrarian)
	assert.Equal(t, http.StatusNoContent, serve(t, mw, "/x", principal(RoleLibrarian)).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, mw, "/x", principal(RoleTeacher)).Code)
}

func TestRequireRoute(t *testing.T) {
	m := Middleware{Guard: NewGuard(DenyUnguarded)}
	mw := m.RequireRoute()
	assert.Equal(t, http.StatusNoContent, serve(t, mw, "/dashboard/transport", principal(RoleDriver)).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, mw, "/dashboard/transport", principal(RoleStudent)).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, mw, "/dashboard/unknown", principal(RoleAdministrator)).Code)
}
