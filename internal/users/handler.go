package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/schooldesk/schooldesk/internal/platform/httpx"
	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequirePermission(rbac.ResourceUsers, rbac.PermissionRead)).Get("/", h.listUsers)
	r.With(h.rbac.RequirePermission(rbac.ResourceUsers, rbac.PermissionUpdate)).Patch("/{id}/role", h.changeRole)
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r)
	q := r.URL.Query()
	var role rbac.Role
	if raw := strings.TrimSpace(q.Get("role")); raw != "" {
		parsed, err := rbac.ParseRole(raw)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "Unknown role")
			return
		}
		role = parsed
	}
	result, err := h.service.ListUsers(r.Context(), ListFilter{
		Search:  q.Get("search"),
		Role:    role,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		if errors.Is(err, rbac.ErrUnknownRole) {
			httpx.Fail(w, http.StatusBadRequest, "Unknown role")
			return
		}
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, result, "")
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "role is required")
		return
	}

	change, err := h.service.ChangeRole(r.Context(), shared.IdentityFromContext(r.Context()), userID, req.Role)
	switch {
	case err == nil:
		httpx.OK(w, http.StatusOK, change, "Role updated")
	case errors.Is(err, rbac.ErrUnknownRole):
		httpx.Fail(w, http.StatusBadRequest, "Unknown role")
	case errors.Is(err, ErrSelfRoleChange):
		httpx.Fail(w, http.StatusForbidden, "You cannot change your own role")
	default:
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("change role failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
