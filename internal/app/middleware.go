package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/schooldesk/schooldesk/internal/observability"
	"github.com/schooldesk/schooldesk/internal/platform/httpx"
	"github.com/schooldesk/schooldesk/internal/shared"
)

// IdentityResolver turns a bearer token into the identity of a live session.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*shared.Identity, error)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger   *slog.Logger
	Config   *Config
	Sessions IdentityResolver
	Metrics  *observability.Metrics
}

// MiddlewareStack installs the SchoolDesk middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	globalLimit := 120
	if cfg.Config != nil && cfg.Config.GlobalRateLimit > 0 {
		globalLimit = cfg.Config.GlobalRateLimit
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					httpx.Fail(w, http.StatusBadRequest, "")
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(globalLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		IdentityMiddleware(cfg.Sessions, cfg.Logger, cfg.Metrics),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// IdentityMiddleware resolves the bearer token and stores the identity in the
// request context. Requests without a usable token continue anonymously; the
// handlers and rbac middleware decide whether that is acceptable.
func IdentityMiddleware(sessions IdentityResolver, logger *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := shared.BearerToken(r)
			if token == "" || sessions == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, shared.ErrInvalidToken), errors.Is(err, shared.ErrSessionNotFound), errors.Is(err, shared.ErrUnauthenticated):
					metrics.SessionEvent("rejected")
				default:
					if logger != nil {
						logger.Error("resolve session", slog.Any("error", err))
					}
					httpx.RespondError(w, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
		})
	}
}
