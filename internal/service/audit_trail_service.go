package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/repository"
)

// SystemActor is recorded as the user for entries no person triggered.
const SystemActor = "system"

// AuditTrailLedger appends one immutable entry per logical event. It exposes no
// way to change or remove an entry once written.
type AuditTrailLedger struct {
	store repository.AuditTrailStore
}

// PaymentAuditDetails is the payload of a payment entry.
type PaymentAuditDetails struct {
	ApprovedCost     decimal.Decimal
	ActualCostPaid   decimal.Decimal
	Variance         decimal.Decimal
	ExceedsThreshold bool
	PaymentMethod    string
	PaymentReference string
	Comment          *string
}

// NewAuditTrailLedger constructs the ledger.
func NewAuditTrailLedger(store repository.AuditTrailStore) *AuditTrailLedger {
	return &AuditTrailLedger{store: store}
}

// RecordCreation documents a new requisition.
func (l *AuditTrailLedger) RecordCreation(ctx context.Context, req *domain.Requisition, userID string) error {
	status := string(req.Status)
	return l.append(ctx, &domain.AuditTrailEntry{
		RequisitionID: req.ID,
		UserID:        userID,
		ChangeType:    domain.ChangeCreated,
		NewValue:      &status,
		Metadata: map[string]any{
			"reference_number": req.ReferenceNumber,
			"estimated_cost":   req.EstimatedCost.String(),
			"currency":         req.Currency,
			"department_id":    req.DepartmentID,
		},
	})
}

// RecordFieldUpdate documents a single field edit.
func (l *AuditTrailLedger) RecordFieldUpdate(ctx context.Context, requisitionID, userID, field, previous, next string) error {
	return l.append(ctx, &domain.AuditTrailEntry{
		RequisitionID: requisitionID,
		UserID:        userID,
		ChangeType:    domain.ChangeFieldUpdate,
		FieldName:     &field,
		PreviousValue: &previous,
		NewValue:      &next,
	})
}

// RecordStatusChange documents a lifecycle transition; reason may be empty.
func (l *AuditTrailLedger) RecordStatusChange(ctx context.Context, requisitionID, userID string, from, to domain.RequisitionStatus, reason string) error {
	field := "status"
	prev, next := string(from), string(to)
	entry := &domain.AuditTrailEntry{
		RequisitionID: requisitionID,
		UserID:        userID,
		ChangeType:    domain.ChangeStatus,
		FieldName:     &field,
		PreviousValue: &prev,
		NewValue:      &next,
	}
	if reason != "" {
		entry.Metadata = map[string]any{"reason": reason}
	}
	return l.append(ctx, entry)
}

// RecordApproval documents a step sign-off.
func (l *AuditTrailLedger) RecordApproval(ctx context.Context, step *domain.ApprovalStep, userID string, comment *string) error {
	metadata := map[string]any{
		"step_id":       step.ID,
		"step_number":   step.StepNumber,
		"required_role": string(step.RequiredRole),
	}
	if comment != nil {
		metadata["comment"] = *comment
	}
	next := string(domain.StepApproved)
	return l.append(ctx, &domain.AuditTrailEntry{
		RequisitionID: step.RequisitionID,
		UserID:        userID,
		ChangeType:    domain.ChangeApproval,
		NewValue:      &next,
		Metadata:      metadata,
	})
}

// RecordRejection documents a step rejection.
func (l *AuditTrailLedger) RecordRejection(ctx context.Context, step *domain.ApprovalStep, userID, comment string) error {
	next := string(domain.StepRejected)
	return l.append(ctx, &domain.AuditTrailEntry{
		RequisitionID: step.RequisitionID,
		UserID:        userID,
		ChangeType:    domain.ChangeRejection,
		NewValue:      &next,
		Metadata: map[string]any{
			"step_id":       step.ID,
			"step_number":   step.StepNumber,
			"required_role": string(step.RequiredRole),
			"comment":       comment,
		},
	})
}

// RecordPayment documents the recorded payment and its variance.
func (l *AuditTrailLedger) RecordPayment(ctx context.Context, requisitionID, userID string, details PaymentAuditDetails) error {
	field := "actual_cost_paid"
	paid := details.ActualCostPaid.String()
	metadata := map[string]any{
		"approved_cost":     details.ApprovedCost.String(),
		"actual_cost_paid":  paid,
		"variance":          details.Variance.String(),
		"exceeds_threshold": details.ExceedsThreshold,
		"payment_method":    details.PaymentMethod,
		"payment_reference": details.PaymentReference,
	}
	if details.Comment != nil {
		metadata["comment"] = *details.Comment
	}
	return l.append(ctx, &domain.AuditTrailEntry{
		RequisitionID: requisitionID,
		UserID:        userID,
		ChangeType:    domain.ChangePayment,
		FieldName:     &field,
		NewValue:      &paid,
		Metadata:      metadata,
	})
}

// RecordNotification documents a notification trigger handed to the notification subsystem.
func (l *AuditTrailLedger) RecordNotification(ctx context.Context, requisitionID, notificationType, message string) error {
	return l.append(ctx, &domain.AuditTrailEntry{
		RequisitionID: requisitionID,
		UserID:        SystemActor,
		ChangeType:    domain.ChangeNotification,
		NewValue:      &message,
		Metadata:      map[string]any{"type": notificationType},
	})
}

// GetRequisitionAuditTrail returns every entry for the requisition, oldest first.
func (l *AuditTrailLedger) GetRequisitionAuditTrail(ctx context.Context, requisitionID string) ([]domain.AuditTrailEntry, error) {
	entries, err := l.store.ListByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.AuditTrailEntry{}
	}
	return entries, nil
}

func (l *AuditTrailLedger) append(ctx context.Context, entry *domain.AuditTrailEntry) error {
	if err := l.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append %s audit entry: %w", entry.ChangeType, err)
	}
	return nil
}
