package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/schooldesk/schooldesk/internal/platform/httpx"
	"github.com/schooldesk/schooldesk/internal/shared"
)

// Handler exposes the permission, profile and route tables to the dashboard.
type Handler struct {
	logger *slog.Logger
	guard  Guard
	rbac   Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, guard Guard, rbac Middleware) *Handler {
	return &Handler{logger: logger, guard: guard, rbac: rbac}
}

// MountRoutes registers access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.permissions)
	r.Get("/roles", h.profiles)
	r.Get("/routes/check", h.checkRoute)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(RoleAdministrator))
		r.Get("/routes", h.routes)
	})
}

type permissionsResponse struct {
	Role        Role                      `json:"role"`
	Profile     Profile                   `json:"profile"`
	Permissions map[Resource][]Permission `json:"permissions"`
}

type routeCheckResponse struct {
	Path    string `json:"path"`
	Allowed bool   `json:"allowed"`
	Guarded bool   `json:"guarded"`
}

type routesResponse struct {
	Policy UnguardedPolicy       `json:"unguarded_policy"`
	Routes map[string]RouteGuard `json:"routes"`
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	role := Role(id.Role)
	httpx.OK(w, http.StatusOK, permissionsResponse{
		Role:        role,
		Profile:     ProfileFor(role),
		Permissions: PermissionsFor(role),
	}, "")
}

func (h *Handler) profiles(w http.ResponseWriter, r *http.Request) {
	if shared.IdentityFromContext(r.Context()) == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.OK(w, http.StatusOK, Profiles(), "")
}

func (h *Handler) checkRoute(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("path"))
	if raw == "" {
		httpx.Fail(w, http.StatusBadRequest, "path is required")
		return
	}
	route := CleanRoute(raw)
	_, guarded := LookupRoute(route)
	httpx.OK(w, http.StatusOK, routeCheckResponse{
		Path:    route,
		Allowed: h.guard.CanAccessRoute(id, route),
		Guarded: guarded,
	}, "")
}

func (h *Handler) routes(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, routesResponse{Policy: h.guard.Policy(), Routes: Routes()}, "")
}
