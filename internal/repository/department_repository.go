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

// DepartmentRepository reads departments maintained by the directory.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	const query = `
        SELECT id, name, is_active, created_at, updated_at
        FROM departments WHERE id=$1`
	if !validID(id) {
		return nil, errorutil.NewNotFound("department", map[string]any{"id": id})
	}
	var dept domain.Department
	if err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&dept.ID,
		&dept.Name,
		&dept.IsActive,
		&dept.CreatedAt,
		&dept.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorutil.NewNotFound("department", map[string]any{"id": id})
		}
		return nil, err
	}
	return &dept, nil
}
