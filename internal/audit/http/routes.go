package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/schooldesk/schooldesk/internal/platform/httpx"
	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
)

const rateWindow = time.Minute

// MountRoutes registers the audit timeline and CSV export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleAdministrator))
		r.Get("/", h.handleTimeline)
		r.Group(func(r chi.Router) {
			if h.exportLimit > 0 {
				r.Use(httprate.Limit(h.exportLimit, rateWindow,
					httprate.WithKeyFuncs(rateLimitKey),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						httpx.Fail(w, http.StatusTooManyRequests, "Too many exports, try again shortly")
					}),
				))
			}
			r.Get("/export.csv", h.handleExport)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if id := shared.IdentityFromContext(r.Context()); id != nil && id.UserID > 0 {
		return "user:" + strconv.FormatInt(id.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
