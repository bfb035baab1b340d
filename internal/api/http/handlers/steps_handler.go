package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/requisition-service/internal/api/dto"
	"github.com/spec-kit/requisition-service/internal/service"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// StepsHandler serves approval step decisions.
type StepsHandler struct {
	lifecycle RequisitionLifecycle
}

// NewStepsHandler constructs handler.
func NewStepsHandler(lifecycle RequisitionLifecycle) *StepsHandler {
	return &StepsHandler{lifecycle: lifecycle}
}

// Approve POST /steps/:id/approve.
func (h *StepsHandler) Approve(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	req, err := parseDecision(c)
	if err != nil {
		return err
	}
	outcome, err := h.lifecycle.ApproveStep(c.UserContext(), c.Params("id"), principal.UserID, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stepDecisionResponse(outcome)})
}

// Reject POST /steps/:id/reject.
func (h *StepsHandler) Reject(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	req, err := parseDecision(c)
	if err != nil {
		return err
	}
	comment := ""
	if req.Comment != nil {
		comment = *req.Comment
	}
	outcome, err := h.lifecycle.RejectStep(c.UserContext(), c.Params("id"), principal.UserID, comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stepDecisionResponse(outcome)})
}

func parseDecision(c *fiber.Ctx) (dto.StepDecisionRequest, error) {
	var req dto.StepDecisionRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, apperrors.NewValidationError("invalid payload", nil)
	}
	return req, nil
}

func stepDecisionResponse(outcome *service.StepOutcome) dto.StepDecisionResponse {
	return dto.StepDecisionResponse{
		Step:        dto.NewApprovalStepResponse(outcome.Step),
		Requisition: dto.NewRequisitionResponse(outcome.Requisition),
		Finalized:   outcome.Finalized,
	}
}
