package service

import (
	"context"
	"errors"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/repository"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// Directory is the lookup surface the lifecycle needs from user/department administration.
type Directory interface {
	UserExists(ctx context.Context, id string) (bool, error)
	DepartmentExists(ctx context.Context, id string) (bool, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	// FindActiveUser returns nil, nil when nobody holds role in the department.
	FindActiveUser(ctx context.Context, role domain.Role, departmentID string) (*domain.User, error)
}

// DirectoryService answers directory queries from the local user and department tables.
type DirectoryService struct {
	departments repository.DepartmentRepository
	users       repository.UserRepository
}

// NewDirectoryService constructs the service.
func NewDirectoryService(departments repository.DepartmentRepository, users repository.UserRepository) *DirectoryService {
	return &DirectoryService{departments: departments, users: users}
}

// UserExists reports whether id is an active user.
func (d *DirectoryService) UserExists(ctx context.Context, id string) (bool, error) {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Active, nil
}

// DepartmentExists reports whether id is an active department.
func (d *DirectoryService) DepartmentExists(ctx context.Context, id string) (bool, error) {
	dept, err := d.departments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return dept.IsActive, nil
}

// GetUser loads a directory user.
func (d *DirectoryService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return d.users.GetByID(ctx, id)
}

// FindActiveUser returns the first active user with role in departmentID.
func (d *DirectoryService) FindActiveUser(ctx context.Context, role domain.Role, departmentID string) (*domain.User, error) {
	return d.users.FindActiveByRole(ctx, role, departmentID)
}
