package auth

import (
	"errors"
	"time"

	"github.com/schooldesk/schooldesk/internal/rbac"
)

// ErrEmailTaken occurs when signing up with an email that already has an account.
var ErrEmailTaken = errors.New("email already registered")

// DefaultSignupRole is assigned to self-registered accounts.
const DefaultSignupRole = rbac.RoleStudent

// User represents an account able to sign in to the dashboard.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         rbac.Role `json:"role"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewUser carries the fields required to create an account.
type NewUser struct {
	Email        string
	Name         string
	Role         rbac.Role
	PasswordHash string
}

// SessionMeta describes the client that opened a session.
type SessionMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is returned by login and signup.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
