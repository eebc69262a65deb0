package users

import (
	"errors"
	"time"

	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
)

// ErrSelfRoleChange is returned when an administrator tries to change their own role.
var ErrSelfRoleChange = errors.New("cannot change your own role")

// AuditActionRoleUpdate tags audit rows written by role changes.
const AuditActionRoleUpdate = "users.role.update"

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      rbac.Role `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows a user listing.
type ListFilter struct {
	Search  string
	Role    rbac.Role
	Page    int
	PerPage int
}

// ListResult is one page of users.
type ListResult struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

// RoleChange describes an applied role assignment.
type RoleChange struct {
	UserID          int64     `json:"user_id"`
	From            rbac.Role `json:"from"`
	To              rbac.Role `json:"to"`
	RevokedSessions int       `json:"revoked_sessions"`
}
