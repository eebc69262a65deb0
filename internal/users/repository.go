package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schooldesk/schooldesk/internal/platform/db"
	"github.com/schooldesk/schooldesk/internal/rbac"
	"github.com/schooldesk/schooldesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns one page of users matching filter and the total match count.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	where, args := listConditions(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := shared.NewPagination(filter.Page, filter.PerPage, 0).Offset()
	args = append(args, filter.PerPage, offset)
	query := `SELECT id, email, name, role, is_active, created_at, updated_at FROM users` + where +
		fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		var role string
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, 0, err
		}
		user.Role = rbac.Role(role)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateRole assigns role to the user and records the change in audit_logs
// within one transaction. It returns the previous role.
func (r *Repository) UpdateRole(ctx context.Context, actorID, userID int64, role rbac.Role) (rbac.Role, error) {
	var previous string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&previous); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if previous == string(role) {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, string(role)); err != nil {
			return err
		}
		return shared.RecordAudit(ctx, tx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditActionRoleUpdate,
			Entity:   "user",
			EntityID: strconv.FormatInt(userID, 10),
			Meta:     map[string]any{"from": previous, "to": string(role)},
		})
	})
	if err != nil {
		return "", err
	}
	return rbac.Role(previous), nil
}

func listConditions(filter ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		clauses = append(clauses, fmt.Sprintf("(lower(name) LIKE $%d OR lower(email) LIKE $%d)", len(args), len(args)))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
