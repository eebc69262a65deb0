package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
	UpdateRole(ctx context.Context, actorID, userID int64, role rbac.Role) (rbac.Role, error)
}

// SessionRevoker ends every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID int64) (int, error)
}

// RevocationQueue schedules a session revocation for later.
type RevocationQueue interface {
	EnqueueRevokeUser(ctx context.Context, userID int64) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	sessions SessionRevoker
	queue    RevocationQueue
	logger   *slog.Logger
}

// NewService builds Service instance. queue may be nil.
func NewService(repo RepositoryPort, sessions SessionRevoker, queue RevocationQueue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sessions: sessions, queue: queue, logger: logger}
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return ListResult{}, fmt.Errorf("%w: %q", rbac.ErrUnknownRole, filter.Role)
	}
	pagination := shared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = pagination.Page, pagination.PerPage

	users, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if users == nil {
		users = []User{}
	}
	return ListResult{Users: users, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// ChangeRole assigns a new role. A session's role is fixed when it is issued,
// so the user's sessions are revoked and the new role applies from the next
// login.
func (s *Service) ChangeRole(ctx context.Context, actor *shared.Identity, userID int64, raw string) (RoleChange, error) {
	if actor == nil {
		return RoleChange{}, shared.ErrUnauthenticated
	}
	role, err := rbac.ParseRole(raw)
	if err != nil {
		return RoleChange{}, err
	}
	if actor.UserID == userID {
		return RoleChange{}, ErrSelfRoleChange
	}
	previous, err := s.repo.UpdateRole(ctx, actor.UserID, userID, role)
	if err != nil {
		return RoleChange{}, err
	}
	change := RoleChange{UserID: userID, From: previous, To: role}
	if previous == role {
		return change, nil
	}

	revoked, err := s.sessions.RevokeUser(ctx, userID)
	if err != nil {
		s.logger.Warn("revoke sessions after role change", slog.Int64("user_id", userID), slog.Any("error", err))
		if s.queue == nil {
			return change, fmt.Errorf("users: revoke sessions: %w", err)
		}
		if qerr := s.queue.EnqueueRevokeUser(ctx, userID); qerr != nil {
			return change, fmt.Errorf("users: revoke sessions: %w", qerr)
		}
		return change, nil
	}
	change.RevokedSessions = revoked
	s.logger.Info("role changed",
		slog.Int64("actor_id", actor.UserID),
		slog.Int64("user_id", userID),
		slog.String("from", string(previous)),
		slog.String("to", string(role)),
		slog.Int("revoked_sessions", revoked))
	return change, nil
}
