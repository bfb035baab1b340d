package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/persistence"
	"github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// UserRepository reads directory users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// FindActiveByRole returns the first active user holding role in departmentID,
	// or nil when there is none.
	FindActiveByRole(ctx context.Context, role domain.Role, departmentID string) (*domain.User, error)
}

const userColumns = `id, name, email, role, department_id, active_flag, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, errorutil.NewNotFound("user", map[string]any{"id": id})
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	user, err := scanUser(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errorutil.NewNotFound("user", map[string]any{"id": id})
	}
	return user, err
}

func (r *userRepository) FindActiveByRole(ctx context.Context, role domain.Role, departmentID string) (*domain.User, error) {
	if !validID(departmentID) {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users
        WHERE role=$1 AND department_id=$2 AND active_flag
        ORDER BY created_at ASC LIMIT 1`
	user, err := scanUser(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, role, departmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.DepartmentID,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
