// Package client is the dashboard's view of the API: it owns the bearer
// token, tracks the session state and answers permission queries for the
// signed-in user.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/schooldesk/schooldesk/internal/rbac"
)

// ErrNoToken is returned by Refresh when no token is stored.
var ErrNoToken = errors.New("client: no session token")

// State is a step of the session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateNoToken
	StateLoadingUser
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNoToken:
		return "no_token"
	case StateLoadingUser:
		return "loading_user"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// UnauthorizedPolicy decides what a 401 from an endpoint other than
// IdentityPath does to the session. A 401 from IdentityPath always ends it.
type UnauthorizedPolicy int

const (
	// KeepSessionOnUnauthorized reports the 401 to the caller and leaves the
	// token and state untouched. Only the identity endpoint decides whether
	// the session is still valid.
	KeepSessionOnUnauthorized UnauthorizedPolicy = iota
	// EndSessionOnUnauthorized treats any 401 as the end of the session.
	EndSessionOnUnauthorized
)

// User is the signed-in account as returned by the identity endpoint.
type User struct {
	ID       int64     `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     rbac.Role `json:"role"`
	IsActive bool      `json:"is_active"`
}

// GetID returns the user ID.
func (u *User) GetID() int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// RoleName returns the user's role.
func (u *User) RoleName() string {
	if u == nil {
		return ""
	}
	return string(u.Role)
}

// Options configures a Session.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      TokenStore
	Guard      rbac.Guard
	// NonIdentityUnauthorized defaults to KeepSessionOnUnauthorized.
	NonIdentityUnauthorized UnauthorizedPolicy
	// OnChange is called after every state transition, outside the lock.
	OnChange func(State, *User)
	Logger   *slog.Logger
}

// Session holds the token, the current user and the lifecycle state.
type Session struct {
	baseURL  string
	http     *http.Client
	store    TokenStore
	guard    rbac.Guard
	policy   UnauthorizedPolicy
	onChange func(State, *User)
	logger   *slog.Logger
	refresh  singleflight.Group

	mu    sync.RWMutex
	state State
	token string
	user  *User
}

// New constructs a Session in StateUninitialized. Call Init to load the
// stored token.
func New(opts Options) *Session {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryTokenStore("")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     httpClient,
		store:    store,
		guard:    opts.Guard,
		policy:   opts.NonIdentityUnauthorized,
		onChange: opts.OnChange,
		logger:   logger,
	}
}

// Init reads the stored token and, when one exists, loads the user.
func (s *Session) Init(ctx context.Context) error {
	token, err := s.store.Load()
	if err != nil {
		return err
	}
	if token == "" {
		s.transition(StateNoToken, "", nil)
		return nil
	}
	s.transition(StateLoadingUser, token, nil)
	_, err = s.Refresh(ctx)
	return err
}

// Refresh re-fetches the current user. Concurrent calls share one request.
// A 401 clears the token and moves to StateUnauthenticated; other failures
// leave the session as it was.
func (s *Session) Refresh(ctx context.Context) (*User, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNoToken
	}
	v, err, _ := s.refresh.Do(token, func() (any, error) {
		var user User
		if err := s.send(ctx, http.MethodGet, IdentityPath, token, nil, &user); err != nil {
			if IsUnauthorized(err) {
				s.endSession(token)
			}
			return nil, err
		}
		s.mu.Lock()
		if s.token != token {
			s.mu.Unlock()
			return nil, fmt.Errorf("client: session changed during refresh")
		}
		s.state = StateAuthenticated
		s.user = &user
		s.mu.Unlock()
		s.notify(StateAuthenticated, &user)
		return &user, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*User), nil
}

type authResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login signs in and stores the new token.
func (s *Session) Login(ctx context.Context, email, password string) (*User, error) {
	var result authResult
	err := s.send(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return nil, err
	}
	return s.adopt(result)
}

// Signup creates an account and signs in. The server assigns the role.
func (s *Session) Signup(ctx context.Context, name, email, password string) (*User, error) {
	var result authResult
	err := s.send(ctx, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return nil, err
	}
	return s.adopt(result)
}

// Logout tells the server to revoke the session and clears local state
// whatever the server answers.
func (s *Session) Logout(ctx context.Context) error {
	if token := s.Token(); token != "" {
		if err := s.send(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil); err != nil {
			s.logger.Debug("logout request failed", slog.Any("error", err))
		}
	}
	err := s.store.Clear()
	s.transition(StateUnauthenticated, "", nil)
	return err
}

// Do sends an authenticated request and decodes the envelope data into out.
// Failures are returned as *APIError. A 401 from IdentityPath ends the
// session; any other 401 is handled per the NonIdentityUnauthorized option.
func (s *Session) Do(ctx context.Context, method, path string, body, out any) error {
	token := s.Token()
	err := s.send(ctx, method, path, token, body, out)
	if err != nil && IsUnauthorized(err) && token != "" {
		if endpoint, _, _ := strings.Cut(path, "?"); endpoint == IdentityPath || s.policy == EndSessionOnUnauthorized {
			s.endSession(token)
		}
	}
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the bearer token, or "" when there is none.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a user is loaded.
func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// HasPermission reports whether the signed-in user may perform perm on res.
func (s *Session) HasPermission(res rbac.Resource, perm rbac.Permission) bool {
	return rbac.HasPermission(s.principal(), res, perm)
}

// CanCreate reports create permission on res.
func (s *Session) CanCreate(res rbac.Resource) bool { return rbac.CanCreate(s.principal(), res) }

// CanRead reports read permission on res.
func (s *Session) CanRead(res rbac.Resource) bool { return rbac.CanRead(s.principal(), res) }

// CanUpdate reports update permission on res.
func (s *Session) CanUpdate(res rbac.Resource) bool { return rbac.CanUpdate(s.principal(), res) }

// CanDelete reports delete permission on res.
func (s *Session) CanDelete(res rbac.Resource) bool { return rbac.CanDelete(s.principal(), res) }

// HasRole reports whether the signed-in user holds one of roles.
func (s *Session) HasRole(roles ...rbac.Role) bool {
	return rbac.HasRole(s.principal(), roles...)
}

// CanAccessRoute reports whether the dashboard should show route. The answer
// is advisory; the API enforces access on every request.
func (s *Session) CanAccessRoute(route string) bool {
	return s.guard.CanAccessRoute(s.principal(), route)
}

func (s *Session) principal() rbac.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated || s.user == nil {
		return nil
	}
	return s.user
}

func (s *Session) adopt(result authResult) (*User, error) {
	if result.Token == "" || result.User == nil {
		return nil, errors.New("client: auth response missing token or user")
	}
	if err := s.store.Save(result.Token); err != nil {
		return nil, err
	}
	s.transition(StateAuthenticated, result.Token, result.User)
	return s.User(), nil
}

// endSession clears the session if token is still the active one.
func (s *Session) endSession(token string) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.user = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()
	if err := s.store.Clear(); err != nil {
		s.logger.Warn("clear token", slog.Any("error", err))
	}
	s.notify(StateUnauthenticated, nil)
}

func (s *Session) transition(state State, token string, user *User) {
	s.mu.Lock()
	s.state = state
	s.token = token
	s.user = user
	s.mu.Unlock()
	s.notify(state, user)
}

func (s *Session) notify(state State, user *User) {
	if s.onChange != nil {
		s.onChange(state, user)
	}
}
