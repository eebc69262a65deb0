package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/schooldesk/schooldesk/internal/app"
	"github.com/schooldesk/schooldesk/internal/auth"
	"github.com/schooldesk/schooldesk/internal/client"
	"github.com/schooldesk/schooldesk/internal/observability"
	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
	"github.com/schooldesk/schooldesk/internal/users"
	"github.com/schooldesk/schooldesk/jobs"
	_ "github.com/schooldesk/schooldesk/testing"
)

const password = "password123"

// memStore backs both the auth and users repositories.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*auth.User
	audit  []string
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, users: map[int64]*auth.User{}}
}

func (m *memStore) seed(t *testing.T, email string, role rbac.Role) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := m.CreateUser(context.Background(), auth.NewUser{Email: email, Name: email, Role: role, PasswordHash: string(hash)})
	require.NoError(t, err)
	return u.ID
}

func (m *memStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memStore) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateUser(ctx context.Context, in auth.NewUser) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, in.Email) {
			return nil, auth.ErrEmailTaken
		}
	}
	u := &auth.User{ID: m.nextID, Email: in.Email, Name: in.Name, Role: in.Role, PasswordHash: in.PasswordHash, IsActive: true, CreatedAt: time.Now()}
	m.users[u.ID] = u
	m.nextID++
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error { return nil }

func (m *memStore) ListUsers(ctx context.Context, filter users.ListFilter) ([]users.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []users.User
	for id := int64(1); id < m.nextID; id++ {
		u, ok := m.users[id]
		if !ok || (filter.Role != "" && u.Role != filter.Role) {
			continue
		}
		out = append(out, users.User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, IsActive: u.IsActive})
	}
	return out, len(out), nil
}

func (m *memStore) UpdateRole(ctx context.Context, actorID, userID int64, role rbac.Role) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	previous := u.Role
	u.Role = role
	m.audit = append(m.audit, fmt.Sprintf("%s %d %s->%s", users.AuditActionRoleUpdate, userID, previous, role))
	return previous, nil
}

type stack struct {
	store  *memStore
	server *httptest.Server
}

func newStack(t *testing.T, policy rbac.UnguardedPolicy) *stack {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	store := newMemStore()
	metrics := observability.NewMetrics()
	sessions := shared.NewSessionManager(redisClient, "e2e-secret", time.Hour)
	guard := rbac.NewGuard(policy)
	mw := rbac.Middleware{Guard: guard, Metrics: metrics}

	router := app.NewRouter(app.RouterParams{
		Config:        &app.Config{AppEnv: "test", GlobalRateLimit: 1000},
		Sessions:      sessions,
		AuthHandler:   auth.NewHandler(nil, auth.NewService(store, sessions, nil), metrics, 0),
		AccessHandler: rbac.NewHandler(nil, guard, mw),
		UsersHandler:  users.NewHandler(nil, users.NewService(store, sessions, nil, nil), mw),
		JobHandler:    jobs.NewHandler(nil, nil),
		Metrics:       metrics,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &stack{store: store, server: srv}
}

func (s *stack) call(t *testing.T, method, path, token string, body any) (int, json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env.Data
}

func (s *stack) login(t *testing.T, email string) string {
	t.Helper()
	status, data := s.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status)
	var result auth.LoginResult
	require.NoError(t, json.Unmarshal(data, &result))
	return result.Token
}

func TestRoleChangeFlow(t *testing.T) {
	s := newStack(t, rbac.AllowUnguarded)
	s.store.seed(t, "admin@school.test", rbac.RoleAdministrator)
	studentID := s.store.seed(t, "pupil@school.test", rbac.RoleStudent)

	adminToken := s.login(t, "admin@school.test")
	studentToken := s.login(t, "pupil@school.test")

	status, data := s.call(t, http.MethodGet, "/api/access/permissions", studentToken, nil)
	require.Equal(t, http.StatusOK, status)
	var perms struct {
		Role        rbac.Role                           `json:"role"`
		Permissions map[rbac.Resource][]rbac.Permission `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(data, &perms))
	assert.Equal(t, rbac.RoleStudent, perms.Role)
	assert.Len(t, perms.Permissions, len(rbac.AllResources()))
	assert.Empty(t, perms.Permissions[rbac.ResourceUsers])

	status, data = s.call(t, http.MethodGet, "/api/access/routes/check?path=/dashboard/staff-management", studentToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"path":"/dashboard/staff-management","allowed":false,"guarded":true}`, string(data))

	status, _ = s.call(t, http.MethodGet, "/api/access/routes", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.call(t, http.MethodGet, "/api/access/routes", adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.call(t, http.MethodGet, "/api/users/", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, data = s.call(t, http.MethodPatch, fmt.Sprintf("/api/users/%d/role", studentID), adminToken, map[string]string{"role": "teacher"})
	require.Equal(t, http.StatusOK, status)
	var change users.RoleChange
	require.NoError(t, json.Unmarshal(data, &change))
	assert.Equal(t, rbac.RoleStudent, change.From)
	assert.Equal(t, rbac.RoleTeacher, change.To)
	assert.Equal(t, 1, change.RevokedSessions)
	assert.Len(t, s.store.audit, 1)

	status, _ = s.call(t, http.MethodGet, "/api/auth/me", studentToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	teacherToken := s.login(t, "pupil@school.test")
	status, data = s.call(t, http.MethodGet, "/api/access/permissions", teacherToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &perms))
	assert.Equal(t, rbac.RoleTeacher, perms.Role)
	assert.ElementsMatch(t, rbac.AllPermissions(), perms.Permissions[rbac.ResourceLessons])
}

func TestClientSessionAgainstServer(t *testing.T) {
	s := newStack(t, rbac.AllowUnguarded)
	s.store.seed(t, "admin@school.test", rbac.RoleAdministrator)
	staffID := s.store.seed(t, "staff@school.test", rbac.RoleStaff)
	adminToken := s.login(t, "admin@school.test")

	store := client.NewMemoryTokenStore("")
	sess := client.New(client.Options{BaseURL: s.server.URL, Store: store, HTTPClient: s.server.Client()})
	require.NoError(t, sess.Init(context.Background()))
	_, err := sess.Login(context.Background(), "staff@school.test", password)
	require.NoError(t, err)

	assert.True(t, sess.CanRead(rbac.ResourceVehicles))
	assert.False(t, sess.CanAccessRoute("/dashboard/staff-management"))

	status, _ := s.call(t, http.MethodPatch, fmt.Sprintf("/api/users/%d/role", staffID), adminToken, map[string]string{"role": "driver"})
	require.Equal(t, http.StatusOK, status)

	// The revoked token now gets 401 from a data endpoint; that alone keeps the session.
	err = sess.Do(context.Background(), http.MethodGet, "/api/users/", nil, nil)
	require.True(t, client.IsUnauthorized(err))
	token, _ := store.Load()
	assert.NotEmpty(t, token)
	assert.True(t, sess.IsAuthenticated())

	// The identity endpoint ends it.
	_, err = sess.Refresh(context.Background())
	require.True(t, client.IsUnauthorized(err))
	token, _ = store.Load()
	assert.Empty(t, token)
	assert.Equal(t, client.StateUnauthenticated, sess.State())
}

func TestUnguardedRoutePolicy(t *testing.T) {
	for _, tc := range []struct {
		policy  rbac.UnguardedPolicy
		allowed bool
	}{
		{rbac.AllowUnguarded, true},
		{rbac.DenyUnguarded, false},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			s := newStack(t, tc.policy)
			s.store.seed(t, "driver@school.test", rbac.RoleDriver)
			token := s.login(t, "driver@school.test")

			status, data := s.call(t, http.MethodGet, "/api/access/routes/check?path=/dashboard/new-page", token, nil)
			require.Equal(t, http.StatusOK, status)
			var result struct {
				Allowed bool `json:"allowed"`
				Guarded bool `json:"guarded"`
			}
			require.NoError(t, json.Unmarshal(data, &result))
			assert.Equal(t, tc.allowed, result.Allowed)
			assert.False(t, result.Guarded)
		})
	}
}

func TestHealthAndNotFound(t *testing.T) {
	s := newStack(t, rbac.AllowUnguarded)

	status, _ := s.call(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.call(t, http.MethodGet, "/api/jobs/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.call(t, http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
