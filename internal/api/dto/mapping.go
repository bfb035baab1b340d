package dto

import "github.com/spec-kit/requisition-service/internal/domain"

// NewRequisitionResponse maps the aggregate.
func NewRequisitionResponse(req *domain.Requisition) RequisitionResponse {
	return RequisitionResponse{
		ID:                    req.ID,
		ReferenceNumber:       req.ReferenceNumber,
		SubmitterID:           req.SubmitterID,
		DepartmentID:          req.DepartmentID,
		Title:                 req.Title,
		Description:           req.Description,
		BusinessJustification: req.BusinessJustification,
		Status:                req.Status,
		EstimatedCost:         req.EstimatedCost,
		ApprovedCost:          req.ApprovedCost,
		ActualCostPaid:        req.ActualCostPaid,
		Currency:              req.Currency,
		UrgencyLevel:          req.UrgencyLevel,
		PaymentMethod:         req.PaymentMethod,
		PaymentReference:      req.PaymentReference,
		PaymentDate:           req.PaymentDate,
		PaymentComment:        req.PaymentComment,
		SubmittedAt:           req.SubmittedAt,
		ClosedAt:              req.ClosedAt,
		CreatedAt:             req.CreatedAt,
		UpdatedAt:             req.UpdatedAt,
	}
}

// NewApprovalStepResponse maps a step.
func NewApprovalStepResponse(step *domain.ApprovalStep) ApprovalStepResponse {
	return ApprovalStepResponse{
		ID:              step.ID,
		RequisitionID:   step.RequisitionID,
		StepNumber:      step.StepNumber,
		RequiredRole:    step.RequiredRole,
		AssignedUserID:  step.AssignedUserID,
		Status:          step.Status,
		DecidedByID:     step.DecidedByID,
		ApproverComment: step.ApproverComment,
		ApprovedAt:      step.ApprovedAt,
	}
}

// NewAuditEntryResponse maps a ledger row.
func NewAuditEntryResponse(entry *domain.AuditTrailEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:            entry.ID,
		Sequence:      entry.Sequence,
		UserID:        entry.UserID,
		ChangeType:    entry.ChangeType,
		FieldName:     entry.FieldName,
		PreviousValue: entry.PreviousValue,
		NewValue:      entry.NewValue,
		Metadata:      entry.Metadata,
		Timestamp:     entry.Timestamp,
	}
}

// NewFinancialSummaryResponse maps the read model.
func NewFinancialSummaryResponse(s *domain.FinancialSummary) FinancialSummaryResponse {
	return FinancialSummaryResponse{
		RequisitionID:    s.RequisitionID,
		Status:           s.Status,
		Currency:         s.Currency,
		EstimatedCost:    s.EstimatedCost,
		ApprovedCost:     s.ApprovedCost,
		ActualCostPaid:   s.ActualCostPaid,
		Variance:         s.Variance,
		ExceedsThreshold: s.ExceedsThreshold,
		PaymentMethod:    s.PaymentMethod,
		PaymentReference: s.PaymentReference,
		PaymentDate:      s.PaymentDate,
		PaymentComment:   s.PaymentComment,
	}
}
