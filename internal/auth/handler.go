package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/schooldesk/schooldesk/internal/observability"
	"github.com/schooldesk/schooldesk/internal/platform/httpx"
	"github.com/schooldesk/schooldesk/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	metrics    *observability.Metrics
	validator  *validator.Validate
	loginLimit int
}

// NewHandler constructs a Handler instance. loginLimit caps login and signup
// attempts per IP per minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		service:    service,
		metrics:    metrics,
		validator:  validator.New(),
		loginLimit: loginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.loginLimit > 0 {
			r.Use(httprate.LimitByIP(h.loginLimit, time.Minute))
		}
		r.Post("/login", h.handleLogin)
		r.Post("/signup", h.handleSignup)
	})
	r.Get("/me", h.handleMe)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password, sessionMeta(r))
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
		}
		h.metrics.SessionEvent("login_failed")
		httpx.RespondError(w, err)
		return
	}
	h.metrics.SessionEvent("issued")
	httpx.OK(w, http.StatusOK, result, "Welcome back")
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Signup(r.Context(), req.Name, req.Email, req.Password, sessionMeta(r))
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			httpx.Fail(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		h.logger.Error("signup", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.SessionEvent("issued")
	httpx.OK(w, http.StatusCreated, result, "Account created")
}

// handleMe is the identity-refresh endpoint. Clients treat its 401 as the
// end of the session.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	user, err := h.service.CurrentUser(r.Context(), id)
	if err != nil {
		if !errors.Is(err, shared.ErrUnauthenticated) {
			h.logger.Error("current user", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, user, "")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		// Already revoked or expired: signing out again succeeds.
		if shared.BearerToken(r) != "" {
			httpx.OK(w, http.StatusOK, nil, "Signed out")
			return
		}
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.service.Logout(r.Context(), id); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.SessionEvent("revoked")
	httpx.OK(w, http.StatusOK, nil, "Signed out")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Fail(w, http.StatusBadRequest, validationMessage(fieldErrs[0]))
			return false
		}
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Email must be a valid address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

func sessionMeta(r *http.Request) SessionMeta {
	return SessionMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
