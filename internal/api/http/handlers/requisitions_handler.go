package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/requisition-service/internal/api/dto"
	"github.com/spec-kit/requisition-service/internal/auth"
	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/service"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// RequisitionLifecycle is the orchestrator surface the HTTP layer drives.
type RequisitionLifecycle interface {
	CreateRequisition(ctx context.Context, input service.CreateRequisitionInput, submitterID, departmentID string) (*domain.Requisition, error)
	UpdateDraft(ctx context.Context, id, actorID string, patch service.DraftPatch) (*domain.Requisition, error)
	SubmitRequisition(ctx context.Context, id, actorID string) (*domain.Requisition, error)
	TransitionToUnderReview(ctx context.Context, id, actorID string) (*domain.Requisition, error)
	ApproveRequisition(ctx context.Context, id, actorID string, approvedCost *decimal.Decimal) (*domain.Requisition, error)
	RejectRequisition(ctx context.Context, id, actorID, reason string) (*domain.Requisition, error)
	CloseRequisition(ctx context.Context, id, actorID string) (*domain.Requisition, error)
	RecordPayment(ctx context.Context, id, actorID string, input service.PaymentInput) (*domain.Requisition, error)
	ApproveStep(ctx context.Context, stepID, actorID string, comment *string) (*service.StepOutcome, error)
	RejectStep(ctx context.Context, stepID, actorID, comment string) (*service.StepOutcome, error)
	GetRequisition(ctx context.Context, id string) (*domain.Requisition, error)
	GetApprovalSteps(ctx context.Context, id string) ([]domain.ApprovalStep, error)
	GetAuditTrail(ctx context.Context, id string) ([]domain.AuditTrailEntry, error)
}

// FinancialQueries exposes the read side of financial tracking.
type FinancialQueries interface {
	GetFinancialSummary(ctx context.Context, requisitionID string) (*domain.FinancialSummary, error)
}

// StepPredicates exposes the aggregate step predicates.
type StepPredicates interface {
	AllStepsApproved(ctx context.Context, requisitionID string) (bool, error)
	AnyStepRejected(ctx context.Context, requisitionID string) (bool, error)
}

// RequisitionsHandler serves requisition endpoints.
type RequisitionsHandler struct {
	lifecycle RequisitionLifecycle
	finance   FinancialQueries
	steps     StepPredicates
}

// NewRequisitionsHandler constructs handler.
func NewRequisitionsHandler(lifecycle RequisitionLifecycle, finance FinancialQueries, steps StepPredicates) *RequisitionsHandler {
	return &RequisitionsHandler{lifecycle: lifecycle, finance: finance, steps: steps}
}

// Create POST /requisitions.
func (h *RequisitionsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequisitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	departmentID := strings.TrimSpace(req.DepartmentID)
	if departmentID == "" {
		departmentID = principal.DepartmentID
	}
	if departmentID == "" {
		return apperrors.NewFieldError("department_id", "department_id required")
	}

	created, err := h.lifecycle.CreateRequisition(c.UserContext(), service.CreateRequisitionInput{
		Title:                 req.Title,
		Description:           req.Description,
		BusinessJustification: req.BusinessJustification,
		EstimatedCost:         req.EstimatedCost,
		Currency:              req.Currency,
		UrgencyLevel:          req.UrgencyLevel,
	}, principal.UserID, departmentID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewRequisitionResponse(created)})
}

// Get GET /requisitions/:id.
func (h *RequisitionsHandler) Get(c *fiber.Ctx) error {
	req, err := h.lifecycle.GetRequisition(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequisitionResponse(req)})
}

// UpdateDraft PATCH /requisitions/:id.
func (h *RequisitionsHandler) UpdateDraft(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.lifecycle.UpdateDraft(c.UserContext(), c.Params("id"), principal.UserID, service.DraftPatch{
		Title:                 req.Title,
		Description:           req.Description,
		BusinessJustification: req.BusinessJustification,
		EstimatedCost:         req.EstimatedCost,
		Currency:              req.Currency,
		UrgencyLevel:          req.UrgencyLevel,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequisitionResponse(updated)})
}

// Submit POST /requisitions/:id/submit.
func (h *RequisitionsHandler) Submit(c *fiber.Ctx) error {
	return h.transition(c, h.lifecycle.SubmitRequisition)
}

// Review POST /requisitions/:id/review.
func (h *RequisitionsHandler) Review(c *fiber.Ctx) error {
	return h.transition(c, h.lifecycle.TransitionToUnderReview)
}

// Close POST /requisitions/:id/close.
func (h *RequisitionsHandler) Close(c *fiber.Ctx) error {
	return h.transition(c, h.lifecycle.CloseRequisition)
}

// Approve POST /requisitions/:id/approve.
func (h *RequisitionsHandler) Approve(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ApproveRequisitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	updated, err := h.lifecycle.ApproveRequisition(c.UserContext(), c.Params("id"), principal.UserID, req.ApprovedCost)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequisitionResponse(updated)})
}

// Reject POST /requisitions/:id/reject.
func (h *RequisitionsHandler) Reject(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RejectRequisitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	updated, err := h.lifecycle.RejectRequisition(c.UserContext(), c.Params("id"), principal.UserID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequisitionResponse(updated)})
}

// RecordPayment POST /requisitions/:id/payment.
func (h *RequisitionsHandler) RecordPayment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RecordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.lifecycle.RecordPayment(c.UserContext(), c.Params("id"), principal.UserID, service.PaymentInput{
		ActualCostPaid:   req.ActualCostPaid,
		PaymentDate:      req.PaymentDate,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		PaymentComment:   req.PaymentComment,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequisitionResponse(updated)})
}

// FinancialSummary GET /requisitions/:id/financial-summary.
func (h *RequisitionsHandler) FinancialSummary(c *fiber.Ctx) error {
	summary, err := h.finance.GetFinancialSummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewFinancialSummaryResponse(summary)})
}

// AuditTrail GET /requisitions/:id/audit-trail.
func (h *RequisitionsHandler) AuditTrail(c *fiber.Ctx) error {
	entries, err := h.lifecycle.GetAuditTrail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, dto.NewAuditEntryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Steps GET /requisitions/:id/steps.
func (h *RequisitionsHandler) Steps(c *fiber.Ctx) error {
	steps, err := h.lifecycle.GetApprovalSteps(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ApprovalStepResponse, 0, len(steps))
	for i := range steps {
		items = append(items, dto.NewApprovalStepResponse(&steps[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// StepStatus GET /requisitions/:id/steps/status.
func (h *RequisitionsHandler) StepStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.lifecycle.GetRequisition(c.UserContext(), id); err != nil {
		return err
	}
	all, err := h.steps.AllStepsApproved(c.UserContext(), id)
	if err != nil {
		return err
	}
	rejected, err := h.steps.AnyStepRejected(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StepStatusResponse{AllApproved: all, AnyRejected: rejected}})
}

func (h *RequisitionsHandler) transition(c *fiber.Ctx, apply func(ctx context.Context, id, actorID string) (*domain.Requisition, error)) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	updated, err := apply(c.UserContext(), c.Params("id"), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRequisitionResponse(updated)})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}
