package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/observability"
	"github.com/spec-kit/requisition-service/internal/repository"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// DefaultVarianceThreshold is the overpayment fraction tolerated without a comment.
var DefaultVarianceThreshold = decimal.RequireFromString("0.10")

// PaymentValidation is the outcome of comparing a payment against the approved cost.
type PaymentValidation struct {
	IsValid          bool
	Variance         decimal.Decimal
	ExceedsThreshold bool
}

// ValidatePaymentAmount compares actual against approved. Variance is the absolute
// fraction of the approved cost; only overpayment beyond threshold is flagged.
func ValidatePaymentAmount(approvedCost, actualCostPaid, threshold decimal.Decimal) PaymentValidation {
	if !approvedCost.IsPositive() {
		exceeds := actualCostPaid.IsPositive()
		return PaymentValidation{IsValid: !exceeds, Variance: decimal.Zero, ExceedsThreshold: exceeds}
	}
	signed := actualCostPaid.Sub(approvedCost).Div(approvedCost)
	exceeds := signed.IsPositive() && signed.GreaterThan(threshold)
	return PaymentValidation{
		IsValid:          !exceeds,
		Variance:         signed.Abs(),
		ExceedsThreshold: exceeds,
	}
}

// PaymentInput carries the fields recorded with a payment.
type PaymentInput struct {
	ActualCostPaid   decimal.Decimal
	PaymentDate      *time.Time
	PaymentMethod    string
	PaymentReference string
	PaymentComment   *string
	// VarianceThreshold overrides the configured threshold for this payment.
	VarianceThreshold *decimal.Decimal
}

// FinancialTrackingService records payments against approved requisitions.
type FinancialTrackingService struct {
	requisitions repository.RequisitionRepository
	ledger       *AuditTrailLedger
	logger       *zap.Logger
	threshold    decimal.Decimal
}

// FinancialDependencies bundles collaborators.
type FinancialDependencies struct {
	RequisitionRepo   repository.RequisitionRepository
	Ledger            *AuditTrailLedger
	Logger            *zap.Logger
	// VarianceThreshold is the tolerated overpayment fraction; nil means
	// DefaultVarianceThreshold. Zero flags every overpayment.
	VarianceThreshold *decimal.Decimal
}

// NewFinancialTrackingService creates the service.
func NewFinancialTrackingService(deps FinancialDependencies) *FinancialTrackingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := DefaultVarianceThreshold
	if deps.VarianceThreshold != nil {
		threshold = *deps.VarianceThreshold
	}
	return &FinancialTrackingService{
		requisitions: deps.RequisitionRepo,
		ledger:       deps.Ledger,
		logger:       logger,
		threshold:    threshold,
	}
}

// Threshold returns the configured variance threshold.
func (s *FinancialTrackingService) Threshold() decimal.Decimal {
	return s.threshold
}

// ValidatePaymentAmount applies the configured threshold.
func (s *FinancialTrackingService) ValidatePaymentAmount(approvedCost, actualCostPaid decimal.Decimal) PaymentValidation {
	return ValidatePaymentAmount(approvedCost, actualCostPaid, s.threshold)
}

// RecordPayment stores the payment and moves the requisition from APPROVED to PAID
// in a single guarded write.
func (s *FinancialTrackingService) RecordPayment(ctx context.Context, requisitionID, actorID string, input PaymentInput) (*domain.Requisition, error) {
	req, err := s.requisitions.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := domain.ValidateTransition(req.Status, domain.StatusPaid); err != nil {
		return nil, err
	}
	if err := validatePaymentInput(input); err != nil {
		return nil, err
	}
	threshold := s.threshold
	if input.VarianceThreshold != nil {
		threshold = *input.VarianceThreshold
	}

	approved := req.EstimatedCost
	if req.ApprovedCost != nil {
		approved = *req.ApprovedCost
	}
	check := ValidatePaymentAmount(approved, input.ActualCostPaid, threshold)
	comment := normalizeComment(input.PaymentComment)
	if check.ExceedsThreshold && comment == nil {
		return nil, apperrors.NewPaymentVarianceCommentRequired(check.Variance.StringFixed(4))
	}

	updated, err := s.requisitions.RecordPayment(ctx, req.ID, domain.PaymentRecord{
		ActualCostPaid:   input.ActualCostPaid,
		PaymentDate:      input.PaymentDate.UTC(),
		PaymentMethod:    strings.TrimSpace(input.PaymentMethod),
		PaymentReference: strings.TrimSpace(input.PaymentReference),
		PaymentComment:   comment,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.audit(req.ID, s.ledger.RecordPayment(ctx, req.ID, actorID, PaymentAuditDetails{
		ApprovedCost:     approved,
		ActualCostPaid:   input.ActualCostPaid,
		Variance:         check.Variance,
		ExceedsThreshold: check.ExceedsThreshold,
		PaymentMethod:    strings.TrimSpace(input.PaymentMethod),
		PaymentReference: strings.TrimSpace(input.PaymentReference),
		Comment:          comment,
	}))
	s.audit(req.ID, s.ledger.RecordStatusChange(ctx, req.ID, actorID, req.Status, updated.Status, ""))
	return updated, nil
}

func validatePaymentInput(input PaymentInput) error {
	switch {
	case !input.ActualCostPaid.IsPositive():
		return apperrors.NewFieldError("actual_cost_paid", "actual cost paid must be greater than zero")
	case input.PaymentDate == nil || input.PaymentDate.IsZero():
		return apperrors.NewFieldError("payment_date", "payment date is required")
	case strings.TrimSpace(input.PaymentMethod) == "":
		return apperrors.NewFieldError("payment_method", "payment method is required")
	case strings.TrimSpace(input.PaymentReference) == "":
		return apperrors.NewFieldError("payment_reference", "payment reference is required")
	case input.VarianceThreshold != nil && input.VarianceThreshold.IsNegative():
		return apperrors.NewFieldError("variance_threshold", "variance threshold must not be negative")
	}
	return nil
}

// GetFinancialSummary returns the money view of a requisition.
func (s *FinancialTrackingService) GetFinancialSummary(ctx context.Context, requisitionID string) (*domain.FinancialSummary, error) {
	req, err := s.requisitions.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	summary := &domain.FinancialSummary{
		RequisitionID:    req.ID,
		Status:           req.Status,
		Currency:         req.Currency,
		EstimatedCost:    req.EstimatedCost,
		ApprovedCost:     req.ApprovedCost,
		ActualCostPaid:   req.ActualCostPaid,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		PaymentDate:      req.PaymentDate,
		PaymentComment:   req.PaymentComment,
	}
	if req.ApprovedCost != nil && req.ActualCostPaid != nil {
		check := s.ValidatePaymentAmount(*req.ApprovedCost, *req.ActualCostPaid)
		variance := check.Variance
		summary.Variance = &variance
		summary.ExceedsThreshold = check.ExceedsThreshold
	}
	return summary, nil
}

// audit logs ledger failures; the write it documents has already committed.
func (s *FinancialTrackingService) audit(requisitionID string, err error) {
	if err != nil {
		observability.RequisitionLogger(s.logger, requisitionID, "").Warn("payment audit append failed", zap.Error(err))
	}
}
