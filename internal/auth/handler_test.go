package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/schooldesk/schooldesk/internal/auth"
	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
	_ "github.com/schooldesk/schooldesk/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	nextID   int64
	sessions map[string]int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: map[string]*auth.User{}, sessions: map[string]int64{}, nextID: 1}
}

func (s *stubRepo) add(t *testing.T, email, password string, role rbac.Role) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	user := &auth.User{ID: s.nextID, Email: email, Name: "Test User", Role: role, PasswordHash: string(hash), IsActive: true}
	s.nextID++
	s.users[email] = user
	return user
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateUser(ctx context.Context, in auth.NewUser) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[in.Email]; ok {
		return nil, auth.ErrEmailTaken
	}
	user := &auth.User{ID: s.nextID, Email: in.Email, Name: in.Name, Role: in.Role, PasswordHash: in.PasswordHash, IsActive: true}
	s.nextID++
	s.users[in.Email] = user
	return user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type fixture struct {
	repo     *stubRepo
	sessions *shared.SessionManager
	router   chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newStubRepo()
	sessions := shared.NewSessionManager(client, "test-secret", time.Hour)
	handler := auth.NewHandler(nil, auth.NewService(repo, sessions, nil), nil, 0)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id, err := sessions.Resolve(req.Context(), shared.BearerToken(req)); err == nil {
				req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/auth", handler.MountRoutes)
	return &fixture{repo: repo, sessions: sessions, router: r}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var result struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotEmpty(t, result.Token)
	return result.Token
}

func TestLoginAndMe(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "teacher@school.test", "password123", rbac.RoleTeacher)

	token := f.login(t, "teacher@school.test", "password123")

	rec, env := f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	var user auth.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, rbac.RoleTeacher, user.Role)
	assert.Equal(t, "teacher@school.test", user.Email)
	assert.NotContains(t, string(env.Data), "password")
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "teacher@school.test", "password123", rbac.RoleTeacher)

	rec, env := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "teacher@school.test", "password": "wrongpass1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid email or password", env.Message)

	rec, _ = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@school.test", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginInactiveUser(t *testing.T) {
	f := newFixture(t)
	user := f.repo.add(t, "gone@school.test", "password123", rbac.RoleStaff)
	user.IsActive = false

	rec, _ := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "gone@school.test", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "not-an-email", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email must be a valid address", env.Message)

	rec, _ = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.test", "password": "x", "extra": "field"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupAssignsStudentRole(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "New Pupil", "email": "Pupil@School.test", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)

	var result struct {
		Token string    `json:"token"`
		User  auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, rbac.RoleStudent, result.User.Role)
	assert.Equal(t, "pupil@school.test", result.User.Email)

	id, err := f.sessions.Resolve(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, string(rbac.RoleStudent), id.Role)
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "taken@school.test", "password123", rbac.RoleStudent)

	rec, env := f.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Other", "email": "taken@school.test", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
}

func TestMeRequiresSession(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", env.Message)

	rec, _ = f.do(t, http.MethodGet, "/api/auth/me", "garbage.token.value", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRejectsDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	user := f.repo.add(t, "staff@school.test", "password123", rbac.RoleStaff)
	token := f.login(t, "staff@school.test", "password123")

	user.IsActive = false
	rec, _ := f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	f.repo.add(t, "driver@school.test", "password123", rbac.RoleDriver)
	token := f.login(t, "driver@school.test", "password123")
	require.Len(t, f.repo.sessions, 1)

	rec, env := f.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Empty(t, f.repo.sessions)

	rec, _ = f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Signed out", env.Message)

	rec, _ = f.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newStubRepo()
	sessions := shared.NewSessionManager(client, "test-secret", time.Hour)
	handler := auth.NewHandler(nil, auth.NewService(repo, sessions, nil), nil, 2)
	r := chi.NewRouter()
	r.Route("/api/auth", handler.MountRoutes)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"a@b.test","password":"password123"}`))
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
