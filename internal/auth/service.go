package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/schooldesk/schooldesk/internal/shared"
)

// Sessions issues and revokes bearer-token sessions.
type Sessions interface {
	Issue(ctx context.Context, id shared.Identity) (shared.IssuedSession, error)
	Revoke(ctx context.Context, id *shared.Identity) error
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	sessions Sessions
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, sessions Sessions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sessions: sessions, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("auth lookup", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and opens a session.
func (s *Service) Login(ctx context.Context, email, password string, meta SessionMeta) (LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	return s.startSession(ctx, user, meta)
}

// Signup creates an account with the default role and opens a session.
// Roles other than the default are only assigned by administrators.
func (s *Service) Signup(ctx context.Context, name, email, password string, meta SessionMeta) (LoginResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, NewUser{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		Role:         DefaultSignupRole,
		PasswordHash: string(hash),
	})
	if err != nil {
		return LoginResult{}, err
	}
	return s.startSession(ctx, user, meta)
}

// CurrentUser reloads the account behind a session. Missing or deactivated
// accounts end the session.
func (s *Service) CurrentUser(ctx context.Context, id *shared.Identity) (*User, error) {
	if id == nil {
		return nil, shared.ErrUnauthenticated
	}
	user, err := s.repo.FindByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrUnauthenticated
	}
	return user, nil
}

// Logout revokes the session and drops its audit record.
func (s *Service) Logout(ctx context.Context, id *shared.Identity) error {
	if id == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, id); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	if err := s.repo.DeleteSession(ctx, id.SessionID); err != nil {
		s.logger.Warn("remove session record", slog.Any("error", err))
	}
	return nil
}

func (s *Service) startSession(ctx context.Context, user *User, meta SessionMeta) (LoginResult, error) {
	issued, err := s.sessions.Issue(ctx, shared.Identity{
		UserID: user.ID,
		Role:   string(user.Role),
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue session: %w", err)
	}
	if err := s.repo.CreateSession(ctx, issued.Identity.SessionID, user.ID, issued.ExpiresAt, meta.IP, meta.UserAgent); err != nil {
		s.logger.Warn("register session", slog.Any("error", err))
	}
	return LoginResult{Token: issued.Token, ExpiresAt: issued.ExpiresAt, User: user}, nil
}
