package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role identifies who may sign off an approval step.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleFinance  Role = "FINANCE"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleFinance, RoleAdmin:
		return true
	}
	return false
}

// ApprovalRule maps an amount range, optionally scoped to a department, to an
// ordered list of approver roles. A nil DepartmentID applies globally and a nil
// MaxAmount leaves the range open-ended.
type ApprovalRule struct {
	ID                string
	Name              string
	MinAmount         decimal.Decimal
	MaxAmount         *decimal.Decimal
	RequiredApprovers []Role
	DepartmentID      *string
	CreatedAt         time.Time
}

// Matches reports whether the rule covers amount for departmentID.
func (r ApprovalRule) Matches(amount decimal.Decimal, departmentID string) bool {
	if amount.LessThan(r.MinAmount) {
		return false
	}
	if r.MaxAmount != nil && amount.GreaterThan(*r.MaxAmount) {
		return false
	}
	if r.DepartmentID != nil && *r.DepartmentID != departmentID {
		return false
	}
	return true
}

// StepStatus is the decision state of an approval step.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
)

// ApprovalStep is one required sign-off in a requisition's routing chain.
type ApprovalStep struct {
	ID              string
	RequisitionID   string
	StepNumber      int
	RequiredRole    Role
	AssignedUserID  *string
	Status          StepStatus
	DecidedByID     *string
	ApproverComment *string
	ApprovedAt      *time.Time
	CreatedAt       time.Time
}

// StepDecision is the outcome a caller applies to a pending step.
type StepDecision struct {
	Status    StepStatus
	UserID    string
	Comment   *string
	DecidedAt time.Time
}
