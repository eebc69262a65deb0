package rbac

import (
	"log/slog"
	"net/http"

	"github.com/schooldesk/schooldesk/internal/observability"
	"github.com/schooldesk/schooldesk/internal/platform/httpx"
	"github.com/schooldesk/schooldesk/internal/shared"
)

const accessDeniedMessage = "Access denied"

// Middleware enforces the permission and route tables on HTTP handlers. It
// expects the identity middleware to have resolved the bearer token first.
type Middleware struct {
	Guard   Guard
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequirePermission admits callers whose role grants perm on res.
func (m Middleware) RequirePermission(res Resource, perm Permission) func(http.Handler) http.Handler {
	return m.require("permission", func(r *http.Request, id *shared.Identity) bool {
		return HasPermission(id, res, perm)
	})
}

// RequireRole admits callers holding one of roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := append([]Role(nil), roles...)
	return m.require("role", func(r *http.Request, id *shared.Identity) bool {
		return HasRole(id, allowed...)
	})
}

// RequireRoute guards the request path with the route guard table.
func (m Middleware) RequireRoute() func(http.Handler) http.Handler {
	return m.require("route", func(r *http.Request, id *shared.Identity) bool {
		return m.Guard.CanAccessRoute(id, r.URL.Path)
	})
}

func (m Middleware) require(reason string, allow func(*http.Request, *shared.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := shared.IdentityFromContext(r.Context())
			if id == nil {
				m.Metrics.AuthzDenied("unauthenticated")
				httpx.Fail(w, http.StatusUnauthorized, shared.UserSafeMessage(shared.ErrUnauthenticated))
				return
			}
			if !allow(r, id) {
				m.Metrics.AuthzDenied(reason)
				if m.Logger != nil {
					m.Logger.Info("access denied",
						slog.String("reason", reason),
						slog.String("path", r.URL.Path),
						slog.Int64("user_id", id.UserID),
						slog.String("role", id.Role))
				}
				httpx.Fail(w, http.StatusForbidden, accessDeniedMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
