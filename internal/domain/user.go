package domain

import "time"

// User is a directory entry for staff who submit or approve requisitions.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
