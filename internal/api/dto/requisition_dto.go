package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/requisition-service/internal/domain"
)

// CreateRequisitionRequest payload. DepartmentID defaults to the caller's department.
type CreateRequisitionRequest struct {
	DepartmentID          string              `json:"department_id"`
	Title                 string              `json:"title"`
	Description           string              `json:"description"`
	BusinessJustification string              `json:"business_justification"`
	EstimatedCost         decimal.Decimal     `json:"estimated_cost"`
	Currency              string              `json:"currency"`
	UrgencyLevel          domain.UrgencyLevel `json:"urgency_level"`
}

// UpdateDraftRequest payload; omitted fields are unchanged.
type UpdateDraftRequest struct {
	Title                 *string              `json:"title"`
	Description           *string              `json:"description"`
	BusinessJustification *string              `json:"business_justification"`
	EstimatedCost         *decimal.Decimal     `json:"estimated_cost"`
	Currency              *string              `json:"currency"`
	UrgencyLevel          *domain.UrgencyLevel `json:"urgency_level"`
}

// ApproveRequisitionRequest payload.
type ApproveRequisitionRequest struct {
	ApprovedCost *decimal.Decimal `json:"approved_cost"`
}

// RejectRequisitionRequest payload.
type RejectRequisitionRequest struct {
	Reason string `json:"reason"`
}

// RecordPaymentRequest payload.
type RecordPaymentRequest struct {
	ActualCostPaid   decimal.Decimal `json:"actual_cost_paid"`
	PaymentDate      *time.Time      `json:"payment_date"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
	PaymentComment   *string         `json:"payment_comment"`
}

// StepDecisionRequest payload for approving or rejecting a step.
type StepDecisionRequest struct {
	Comment *string `json:"comment"`
}

// RequisitionResponse represents a requisition.
type RequisitionResponse struct {
	ID                    string                   `json:"id"`
	ReferenceNumber       string                   `json:"reference_number"`
	SubmitterID           string                   `json:"submitter_id"`
	DepartmentID          string                   `json:"department_id"`
	Title                 string                   `json:"title"`
	Description           string                   `json:"description"`
	BusinessJustification string                   `json:"business_justification"`
	Status                domain.RequisitionStatus `json:"status"`
	EstimatedCost         decimal.Decimal          `json:"estimated_cost"`
	ApprovedCost          *decimal.Decimal         `json:"approved_cost"`
	ActualCostPaid        *decimal.Decimal         `json:"actual_cost_paid"`
	Currency              string                   `json:"currency"`
	UrgencyLevel          domain.UrgencyLevel      `json:"urgency_level"`
	PaymentMethod         *string                  `json:"payment_method"`
	PaymentReference      *string                  `json:"payment_reference"`
	PaymentDate           *time.Time               `json:"payment_date"`
	PaymentComment        *string                  `json:"payment_comment"`
	SubmittedAt           *time.Time               `json:"submitted_at"`
	ClosedAt              *time.Time               `json:"closed_at"`
	CreatedAt             time.Time                `json:"created_at"`
	UpdatedAt             time.Time                `json:"updated_at"`
}

// ApprovalStepResponse represents one step of the chain.
type ApprovalStepResponse struct {
	ID              string            `json:"id"`
	RequisitionID   string            `json:"requisition_id"`
	StepNumber      int               `json:"step_number"`
	RequiredRole    domain.Role       `json:"required_role"`
	AssignedUserID  *string           `json:"assigned_user_id"`
	Status          domain.StepStatus `json:"status"`
	DecidedByID     *string           `json:"decided_by_id"`
	ApproverComment *string           `json:"approver_comment"`
	ApprovedAt      *time.Time        `json:"approved_at"`
}

// StepDecisionResponse is returned after deciding a step.
type StepDecisionResponse struct {
	Step        ApprovalStepResponse `json:"step"`
	Requisition RequisitionResponse  `json:"requisition"`
	Finalized   bool                 `json:"finalized"`
}

// StepStatusResponse answers the aggregate predicates.
type StepStatusResponse struct {
	AllApproved bool `json:"all_approved"`
	AnyRejected bool `json:"any_rejected"`
}

// AuditEntryResponse represents one ledger row.
type AuditEntryResponse struct {
	ID            string            `json:"id"`
	Sequence      int64             `json:"sequence"`
	UserID        string            `json:"user_id"`
	ChangeType    domain.ChangeType `json:"change_type"`
	FieldName     *string           `json:"field_name,omitempty"`
	PreviousValue *string           `json:"previous_value,omitempty"`
	NewValue      *string           `json:"new_value,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// FinancialSummaryResponse is the money view of a requisition.
type FinancialSummaryResponse struct {
	RequisitionID    string                   `json:"requisition_id"`
	Status           domain.RequisitionStatus `json:"status"`
	Currency         string                   `json:"currency"`
	EstimatedCost    decimal.Decimal          `json:"estimated_cost"`
	ApprovedCost     *decimal.Decimal         `json:"approved_cost"`
	ActualCostPaid   *decimal.Decimal         `json:"actual_cost_paid"`
	Variance         *decimal.Decimal         `json:"variance"`
	ExceedsThreshold bool                     `json:"exceeds_threshold"`
	PaymentMethod    *string                  `json:"payment_method"`
	PaymentReference *string                  `json:"payment_reference"`
	PaymentDate      *time.Time               `json:"payment_date"`
	PaymentComment   *string                  `json:"payment_comment"`
}
