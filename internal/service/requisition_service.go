package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/events"
	"github.com/spec-kit/requisition-service/internal/observability"
	"github.com/spec-kit/requisition-service/internal/persistence"
	"github.com/spec-kit/requisition-service/internal/repository"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// RequisitionLifecycleService orchestrates requisitions from draft to close.
// Each mutation validates the transition, writes conditionally on the expected
// prior status, then audits and notifies once the write has committed.
type RequisitionLifecycleService struct {
	requisitions    repository.RequisitionRepository
	directory       Directory
	workflow        *ApprovalWorkflowEngine
	finance         *FinancialTrackingService
	ledger          *AuditTrailLedger
	tx              persistence.Transactor
	dispatcher      events.Dispatcher
	logger          *zap.Logger
	defaultCurrency string
	now             func() time.Time
}

// RequisitionDependencies bundles collaborators.
type RequisitionDependencies struct {
	RequisitionRepo repository.RequisitionRepository
	Directory       Directory
	Workflow        *ApprovalWorkflowEngine
	Finance         *FinancialTrackingService
	Ledger          *AuditTrailLedger
	Transactor      persistence.Transactor
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	DefaultCurrency string
	Clock           func() time.Time
}

// NewRequisitionLifecycleService creates the service.
func NewRequisitionLifecycleService(deps RequisitionDependencies) *RequisitionLifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	return &RequisitionLifecycleService{
		requisitions:    deps.RequisitionRepo,
		directory:       deps.Directory,
		workflow:        deps.Workflow,
		finance:         deps.Finance,
		ledger:          deps.Ledger,
		tx:              deps.Transactor,
		dispatcher:      deps.Dispatcher,
		logger:          logger,
		defaultCurrency: currency,
		now:             clock,
	}
}

// CreateRequisitionInput holds the caller-supplied fields of a new requisition.
type CreateRequisitionInput struct {
	Title                 string
	Description           string
	BusinessJustification string
	EstimatedCost         decimal.Decimal
	Currency              string
	UrgencyLevel          domain.UrgencyLevel
}

// DraftPatch lists draft fields to change; nil fields are left alone.
type DraftPatch struct {
	Title                 *string
	Description           *string
	BusinessJustification *string
	EstimatedCost         *decimal.Decimal
	Currency              *string
	UrgencyLevel          *domain.UrgencyLevel
}

// StepOutcome is the result of deciding a step, including the requisition as it
// stands after any aggregate transition.
type StepOutcome struct {
	Step        *domain.ApprovalStep
	Requisition *domain.Requisition
	Finalized   bool
}

// CreateRequisition stores a new DRAFT requisition for submitterID.
func (s *RequisitionLifecycleService) CreateRequisition(ctx context.Context, input CreateRequisitionInput, submitterID, departmentID string) (*domain.Requisition, error) {
	if !input.EstimatedCost.IsPositive() {
		return nil, apperrors.NewFieldError("estimated_cost", "estimated cost must be greater than zero")
	}
	urgency := input.UrgencyLevel
	if urgency == "" {
		urgency = domain.UrgencyMedium
	}
	urgency = domain.UrgencyLevel(strings.ToUpper(string(urgency)))
	if !urgency.Valid() {
		return nil, apperrors.NewFieldError("urgency_level", fmt.Sprintf("unknown urgency level %q", input.UrgencyLevel))
	}
	currency, err := s.normalizeCurrency(input.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.ensureDepartment(ctx, departmentID); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, submitterID); err != nil {
		return nil, err
	}

	req := &domain.Requisition{
		ReferenceNumber:       generateReferenceNumber(),
		SubmitterID:           submitterID,
		DepartmentID:          departmentID,
		Title:                 strings.TrimSpace(input.Title),
		Description:           strings.TrimSpace(input.Description),
		BusinessJustification: strings.TrimSpace(input.BusinessJustification),
		Status:                domain.StatusDraft,
		EstimatedCost:         input.EstimatedCost,
		Currency:              currency,
		UrgencyLevel:          urgency,
	}
	if err := s.requisitions.Create(ctx, req); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.audit(req.ID, s.ledger.RecordCreation(ctx, req, submitterID))
	return req, nil
}

// UpdateDraft edits a requisition that is still in DRAFT. Only its submitter may edit it.
func (s *RequisitionLifecycleService) UpdateDraft(ctx context.Context, id, actorID string, patch DraftPatch) (*domain.Requisition, error) {
	req, err := s.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.SubmitterID != actorID {
		return nil, apperrors.NewForbidden("only the submitter may edit a draft")
	}
	if req.Status != domain.StatusDraft {
		return nil, apperrors.NewValidationError("only draft requisitions can be edited",
			map[string]any{"status": string(req.Status)})
	}

	type change struct{ field, previous, next string }
	var changes []change
	updated := *req

	if patch.Title != nil {
		if v := strings.TrimSpace(*patch.Title); v != req.Title {
			changes = append(changes, change{"title", req.Title, v})
			updated.Title = v
		}
	}
	if patch.Description != nil {
		if v := strings.TrimSpace(*patch.Description); v != req.Description {
			changes = append(changes, change{"description", req.Description, v})
			updated.Description = v
		}
	}
	if patch.BusinessJustification != nil {
		if v := strings.TrimSpace(*patch.BusinessJustification); v != req.BusinessJustification {
			changes = append(changes, change{"business_justification", req.BusinessJustification, v})
			updated.BusinessJustification = v
		}
	}
	if patch.EstimatedCost != nil {
		if !patch.EstimatedCost.IsPositive() {
			return nil, apperrors.NewFieldError("estimated_cost", "estimated cost must be greater than zero")
		}
		if !patch.EstimatedCost.Equal(req.EstimatedCost) {
			changes = append(changes, change{"estimated_cost", req.EstimatedCost.String(), patch.EstimatedCost.String()})
			updated.EstimatedCost = *patch.EstimatedCost
		}
	}
	if patch.Currency != nil {
		currency, err := s.normalizeCurrency(*patch.Currency)
		if err != nil {
			return nil, err
		}
		if currency != req.Currency {
			changes = append(changes, change{"currency", req.Currency, currency})
			updated.Currency = currency
		}
	}
	if patch.UrgencyLevel != nil {
		urgency := domain.UrgencyLevel(strings.ToUpper(string(*patch.UrgencyLevel)))
		if !urgency.Valid() {
			return nil, apperrors.NewFieldError("urgency_level", fmt.Sprintf("unknown urgency level %q", *patch.UrgencyLevel))
		}
		if urgency != req.UrgencyLevel {
			changes = append(changes, change{"urgency_level", string(req.UrgencyLevel), string(urgency)})
			updated.UrgencyLevel = urgency
		}
	}

	if len(changes) == 0 {
		return req, nil
	}
	saved, err := s.requisitions.UpdateDraft(ctx, &updated)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, c := range changes {
		s.audit(id, s.ledger.RecordFieldUpdate(ctx, id, actorID, c.field, c.previous, c.next))
	}
	return saved, nil
}

// SubmitRequisition moves a complete draft to SUBMITTED.
func (s *RequisitionLifecycleService) SubmitRequisition(ctx context.Context, id, actorID string) (*domain.Requisition, error) {
	req, err := s.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.SubmitterID != actorID {
		return nil, apperrors.NewForbidden("only the submitter may submit a requisition")
	}
	if missing := missingRequiredFields(req); len(missing) > 0 {
		return nil, apperrors.NewMissingRequiredFields(missing)
	}
	updated, err := s.transition(ctx, req, domain.StatusSubmitted)
	if err != nil {
		return nil, err
	}
	s.audit(id, s.ledger.RecordStatusChange(ctx, id, actorID, req.Status, updated.Status, ""))
	s.publish(ctx, events.Event{
		Type:          events.EventRequisitionSubmitted,
		RequisitionID: id,
		ActorID:       actorID,
		Payload: events.SubmittedPayload{
			ReferenceNumber: updated.ReferenceNumber,
			DepartmentID:    updated.DepartmentID,
			EstimatedCost:   updated.EstimatedCost,
			Currency:        updated.Currency,
		},
	})
	return updated, nil
}

// TransitionToUnderReview starts review and creates the approval chain. The
// status change and the steps commit together.
func (s *RequisitionLifecycleService) TransitionToUnderReview(ctx context.Context, id, actorID string) (*domain.Requisition, error) {
	req, err := s.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(req.Status, domain.StatusUnderReview); err != nil {
		return nil, err
	}

	var (
		updated *domain.Requisition
		steps   []domain.ApprovalStep
	)
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = s.transition(txCtx, req, domain.StatusUnderReview)
		if err != nil {
			return err
		}
		roles, err := s.workflow.DetermineApprovers(txCtx, updated.EstimatedCost, updated.DepartmentID)
		if err != nil {
			return err
		}
		steps, err = s.workflow.CreateApprovalSteps(txCtx, updated.ID, updated.DepartmentID, roles)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit(id, s.ledger.RecordStatusChange(ctx, id, actorID, req.Status, updated.Status,
		fmt.Sprintf("routed to %d approval step(s)", len(steps))))
	return updated, nil
}

// ApproveRequisition approves a requisition under review. approvedCost defaults
// to the estimated cost.
func (s *RequisitionLifecycleService) ApproveRequisition(ctx context.Context, id, actorID string, approvedCost *decimal.Decimal) (*domain.Requisition, error) {
	req, err := s.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(req.Status, domain.StatusApproved); err != nil {
		return nil, err
	}
	cost := req.EstimatedCost
	if approvedCost != nil {
		cost = *approvedCost
	}
	if !cost.IsPositive() {
		return nil, apperrors.NewFieldError("approved_cost", "approved cost must be greater than zero")
	}

	updated, err := s.requisitions.Approve(ctx, id, cost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.audit(id, s.ledger.RecordStatusChange(ctx, id, actorID, req.Status, updated.Status, ""))
	s.publishApproved(ctx, updated, actorID)
	return updated, nil
}

// RejectRequisition rejects a requisition under review.
func (s *RequisitionLifecycleService) RejectRequisition(ctx context.Context, id, actorID, reason string) (*domain.Requisition, error) {
	req, err := s.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, req, domain.StatusRejected)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	s.audit(id, s.ledger.RecordStatusChange(ctx, id, actorID, req.Status, updated.Status, reason))
	s.publishRejected(ctx, updated, actorID, reason)
	return updated, nil
}

// CloseRequisition closes a paid requisition.
func (s *RequisitionLifecycleService) CloseRequisition(ctx context.Context, id, actorID string) (*domain.Requisition, error) {
	req, err := s.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(req.Status, domain.StatusClosed); err != nil {
		return nil, err
	}
	updated, err := s.requisitions.Close(ctx, id, s.now().UTC())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.audit(id, s.ledger.RecordStatusChange(ctx, id, actorID, req.Status, updated.Status, ""))
	return updated, nil
}

// RecordPayment records the payment of an approved requisition and notifies.
func (s *RequisitionLifecycleService) RecordPayment(ctx context.Context, id, actorID string, input PaymentInput) (*domain.Requisition, error) {
	updated, err := s.finance.RecordPayment(ctx, id, actorID, input)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:          events.EventRequisitionPaid,
		RequisitionID: id,
		ActorID:       actorID,
		Payload:       events.PaidPayload{Amount: input.ActualCostPaid, Currency: updated.Currency},
	})
	return updated, nil
}

// ApproveStep signs off a step. When it was the last pending step the
// requisition is approved at its estimated cost in the same transaction.
func (s *RequisitionLifecycleService) ApproveStep(ctx context.Context, stepID, actorID string, comment *string) (*StepOutcome, error) {
	step, req, err := s.loadDecidableStep(ctx, stepID, domain.StatusApproved)
	if err != nil {
		return nil, err
	}

	outcome := &StepOutcome{Requisition: req}
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		decided, err := s.workflow.ApproveStep(txCtx, step.ID, actorID, comment)
		if err != nil {
			return err
		}
		outcome.Step = decided
		done, err := s.workflow.AllStepsApproved(txCtx, req.ID)
		if err != nil || !done {
			return err
		}
		approved, err := s.requisitions.Approve(txCtx, req.ID, req.EstimatedCost)
		if err != nil {
			return apperrors.MapError(err)
		}
		outcome.Requisition = approved
		outcome.Finalized = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(req.ID, s.ledger.RecordApproval(ctx, outcome.Step, actorID, outcome.Step.ApproverComment))
	if outcome.Finalized {
		s.audit(req.ID, s.ledger.RecordStatusChange(ctx, req.ID, actorID, req.Status, outcome.Requisition.Status,
			"all approval steps approved"))
		s.publishApproved(ctx, outcome.Requisition, actorID)
	}
	return outcome, nil
}

// RejectStep rejects a step and with it the requisition, in one transaction.
func (s *RequisitionLifecycleService) RejectStep(ctx context.Context, stepID, actorID, comment string) (*StepOutcome, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, apperrors.NewRejectionCommentRequired()
	}
	step, req, err := s.loadDecidableStep(ctx, stepID, domain.StatusRejected)
	if err != nil {
		return nil, err
	}

	outcome := &StepOutcome{Requisition: req}
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		decided, err := s.workflow.RejectStep(txCtx, step.ID, actorID, comment)
		if err != nil {
			return err
		}
		outcome.Step = decided
		rejected, err := s.workflow.AnyStepRejected(txCtx, req.ID)
		if err != nil || !rejected {
			return err
		}
		updated, err := s.requisitions.TransitionStatus(txCtx, req.ID, req.Status, domain.StatusRejected)
		if err != nil {
			return apperrors.MapError(err)
		}
		outcome.Requisition = updated
		outcome.Finalized = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(comment)
	s.audit(req.ID, s.ledger.RecordRejection(ctx, outcome.Step, actorID, reason))
	if outcome.Finalized {
		s.audit(req.ID, s.ledger.RecordStatusChange(ctx, req.ID, actorID, req.Status, outcome.Requisition.Status, reason))
		s.publishRejected(ctx, outcome.Requisition, actorID, reason)
	}
	return outcome, nil
}

// loadDecidableStep checks that the requisition is under review and every earlier
// step is approved.
func (s *RequisitionLifecycleService) loadDecidableStep(ctx context.Context, stepID string, target domain.RequisitionStatus) (*domain.ApprovalStep, *domain.Requisition, error) {
	step, err := s.workflow.GetStep(ctx, stepID)
	if err != nil {
		return nil, nil, err
	}
	req, err := s.GetRequisition(ctx, step.RequisitionID)
	if err != nil {
		return nil, nil, err
	}
	if err := domain.ValidateTransition(req.Status, target); err != nil {
		return nil, nil, err
	}
	if step.Status != domain.StepPending {
		return nil, nil, apperrors.NewStepAlreadyDecided(step.ID, string(step.Status))
	}

	steps, err := s.workflow.GetApprovalSteps(ctx, req.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, other := range steps {
		if other.StepNumber < step.StepNumber && other.Status != domain.StepApproved {
			return nil, nil, apperrors.NewValidationError("earlier approval steps must be approved first",
				map[string]any{"blocking_step": other.StepNumber})
		}
	}
	return step, req, nil
}

// GetRequisition loads a requisition.
func (s *RequisitionLifecycleService) GetRequisition(ctx context.Context, id string) (*domain.Requisition, error) {
	req, err := s.requisitions.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return req, nil
}

// GetApprovalSteps returns the approval chain of an existing requisition.
func (s *RequisitionLifecycleService) GetApprovalSteps(ctx context.Context, id string) ([]domain.ApprovalStep, error) {
	if _, err := s.GetRequisition(ctx, id); err != nil {
		return nil, err
	}
	return s.workflow.GetApprovalSteps(ctx, id)
}

// GetAuditTrail returns the ledger of an existing requisition.
func (s *RequisitionLifecycleService) GetAuditTrail(ctx context.Context, id string) ([]domain.AuditTrailEntry, error) {
	if _, err := s.GetRequisition(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.GetRequisitionAuditTrail(ctx, id)
}

// transition validates and applies a plain status change guarded on the current status.
func (s *RequisitionLifecycleService) transition(ctx context.Context, req *domain.Requisition, to domain.RequisitionStatus) (*domain.Requisition, error) {
	if err := domain.ValidateTransition(req.Status, to); err != nil {
		return nil, err
	}
	updated, err := s.requisitions.TransitionStatus(ctx, req.ID, req.Status, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return updated, nil
}

func (s *RequisitionLifecycleService) ensureDepartment(ctx context.Context, id string) error {
	ok, err := s.directory.DepartmentExists(ctx, id)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !ok {
		return apperrors.NewReferentialIntegrityError("department", id)
	}
	return nil
}

func (s *RequisitionLifecycleService) ensureUser(ctx context.Context, id string) error {
	ok, err := s.directory.UserExists(ctx, id)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !ok {
		return apperrors.NewReferentialIntegrityError("user", id)
	}
	return nil
}

func (s *RequisitionLifecycleService) normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		return s.defaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", apperrors.NewFieldError("currency", "currency must be a three-letter ISO code")
	}
	return currency, nil
}

func missingRequiredFields(req *domain.Requisition) []string {
	var missing []string
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(req.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(req.BusinessJustification) == "" {
		missing = append(missing, "business_justification")
	}
	return missing
}

func generateReferenceNumber() string {
	return "REQ-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *RequisitionLifecycleService) publishApproved(ctx context.Context, req *domain.Requisition, actorID string) {
	payload := events.ApprovedPayload{ApproverID: actorID}
	if req.ApprovedCost != nil {
		payload.ApprovedCost = *req.ApprovedCost
	}
	s.publish(ctx, events.Event{
		Type:          events.EventRequisitionApproved,
		RequisitionID: req.ID,
		ActorID:       actorID,
		Payload:       payload,
	})
}

func (s *RequisitionLifecycleService) publishRejected(ctx context.Context, req *domain.Requisition, actorID, reason string) {
	s.publish(ctx, events.Event{
		Type:          events.EventRequisitionRejected,
		RequisitionID: req.ID,
		ActorID:       actorID,
		Payload:       events.RejectedPayload{Reason: reason},
	})
}

// publish hands a trigger to the dispatcher. Failures never unwind the committed change.
func (s *RequisitionLifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		observability.RequisitionLogger(s.logger, event.RequisitionID, event.ActorID).
			Warn("notification dispatch failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func (s *RequisitionLifecycleService) audit(requisitionID string, err error) {
	if err != nil {
		observability.RequisitionLogger(s.logger, requisitionID, "").Warn("audit append failed", zap.Error(err))
	}
}
