package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schooldesk/schooldesk/internal/shared"
)

func newAccessRouter(guard Guard) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(nil, guard, Middleware{Guard: guard})
	r.Route("/api/access", h.MountRoutes)
	return r
}

func get(t *testing.T, router http.Handler, target string, id *shared.Identity) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if id != nil {
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

func TestPermissionsEndpoint(t *testing.T) {
	router := newAccessRouter(NewGuard(AllowUnguarded))

	rr, body := get(t, router, "/api/access/permissions", principal(RoleLibrarian))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "librarian", data["role"])
	perms := data["permissions"].(map[string]any)
	assert.Len(t, perms["books"], 4)
	assert.Empty(t, perms["users"])

	rr, body = get(t, router, "/api/access/permissions", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, false, body["success"])
}

func TestRouteCheckEndpoint(t *testing.T) {
	router := newAccessRouter(NewGuard(AllowUnguarded))

	rr, body := get(t, router, "/api/access/routes/check?path=/dashboard/staff-management/", principal(RoleStaff))
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "/dashboard/staff-management", data["path"])
	assert.Equal(t, false, data["allowed"])
	assert.Equal(t, true, data["guarded"])

	_, body = get(t, router, "/api/access/routes/check?path=/dashboard/news", principal(RoleStaff))
	data = body["data"].(map[string]any)
	assert.Equal(t, true, data["allowed"])
	assert.Equal(t, false, data["guarded"])

	rr, _ = get(t, router, "/api/access/routes/check", principal(RoleStaff))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRoutesEndpointIsAdministratorOnly(t *testing.T) {
	router := newAccessRouter(NewGuard(DenyUnguarded))

	rr, _ := get(t, router, "/api/access/routes", principal(RoleTeacher))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, body := get(t, router, "/api/access/routes", principal(RoleAdministrator))
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "deny", data["unguarded_policy"])
	assert.Contains(t, data["routes"], "/dashboard/settings")
}

func TestRolesEndpoint(t *testing.T) {
	router := newAccessRouter(NewGuard(AllowUnguarded))
	rr, body := get(t, router, "/api/access/roles", principal(RoleDriver))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["data"], len(AllRoles()))
}
