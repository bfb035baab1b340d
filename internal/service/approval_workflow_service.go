package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/repository"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// DefaultApprovers is the chain used when no rule covers a requisition.
var DefaultApprovers = []domain.Role{domain.RoleFinance}

// ApprovalWorkflowEngine resolves approval chains and applies per-step decisions.
// It never moves the requisition itself; callers combine the aggregate
// predicates with the lifecycle transitions.
type ApprovalWorkflowEngine struct {
	rules     repository.ApprovalRuleRepository
	steps     repository.ApprovalStepRepository
	directory Directory
	logger    *zap.Logger
	now       func() time.Time
}

// ApprovalWorkflowDependencies bundles collaborators.
type ApprovalWorkflowDependencies struct {
	RuleRepo  repository.ApprovalRuleRepository
	StepRepo  repository.ApprovalStepRepository
	Directory Directory
	Logger    *zap.Logger
	Clock     func() time.Time
}

// NewApprovalWorkflowEngine creates the engine.
func NewApprovalWorkflowEngine(deps ApprovalWorkflowDependencies) *ApprovalWorkflowEngine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ApprovalWorkflowEngine{
		rules:     deps.RuleRepo,
		steps:     deps.StepRepo,
		directory: deps.Directory,
		logger:    logger,
		now:       clock,
	}
}

// DetermineApprovers returns the ordered approver roles for amount in departmentID.
func (e *ApprovalWorkflowEngine) DetermineApprovers(ctx context.Context, amount decimal.Decimal, departmentID string) ([]domain.Role, error) {
	rules, err := e.rules.ListApplicable(ctx, departmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	rule, ok := selectRule(rules, amount, departmentID)
	if !ok {
		return append([]domain.Role(nil), DefaultApprovers...), nil
	}
	return append([]domain.Role(nil), rule.RequiredApprovers...), nil
}

// selectRule picks the matching rule with the highest minimum amount. Exact ties
// go to the department-scoped rule, then to the oldest.
func selectRule(rules []domain.ApprovalRule, amount decimal.Decimal, departmentID string) (domain.ApprovalRule, bool) {
	matching := make([]domain.ApprovalRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Matches(amount, departmentID) {
			matching = append(matching, rule)
		}
	}
	if len(matching) == 0 {
		return domain.ApprovalRule{}, false
	}
	sort.SliceStable(matching, func(i, j int) bool {
		a, b := matching[i], matching[j]
		if !a.MinAmount.Equal(b.MinAmount) {
			return a.MinAmount.GreaterThan(b.MinAmount)
		}
		if (a.DepartmentID != nil) != (b.DepartmentID != nil) {
			return a.DepartmentID != nil
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return matching[0], true
}

// CreateApprovalSteps materializes the chain for a requisition entering review.
// Steps are numbered from 1 in role order and written as one batch.
func (e *ApprovalWorkflowEngine) CreateApprovalSteps(ctx context.Context, requisitionID, departmentID string, roles []domain.Role) ([]domain.ApprovalStep, error) {
	if len(roles) == 0 {
		return nil, apperrors.NewValidationError("at least one approver role is required", nil)
	}
	for _, role := range roles {
		if !role.Valid() {
			return nil, apperrors.NewInvalidRole(string(role))
		}
	}

	batch := make([]*domain.ApprovalStep, 0, len(roles))
	for i, role := range roles {
		step := &domain.ApprovalStep{
			RequisitionID: requisitionID,
			StepNumber:    i + 1,
			RequiredRole:  role,
			Status:        domain.StepPending,
		}
		step.AssignedUserID = e.findAssignee(ctx, role, departmentID)
		batch = append(batch, step)
	}

	if err := e.steps.CreateBatch(ctx, batch); err != nil {
		return nil, apperrors.MapError(err)
	}

	created := make([]domain.ApprovalStep, 0, len(batch))
	for _, step := range batch {
		created = append(created, *step)
	}
	return created, nil
}

// findAssignee leaves the step unassigned when the directory has nobody or is unreachable.
func (e *ApprovalWorkflowEngine) findAssignee(ctx context.Context, role domain.Role, departmentID string) *string {
	if e.directory == nil {
		return nil
	}
	user, err := e.directory.FindActiveUser(ctx, role, departmentID)
	if err != nil {
		e.logger.Warn("approver lookup failed",
			zap.String("role", string(role)),
			zap.String("department_id", departmentID),
			zap.Error(err))
		return nil
	}
	if user == nil {
		return nil
	}
	id := user.ID
	return &id
}

// GetStep loads a single approval step.
func (e *ApprovalWorkflowEngine) GetStep(ctx context.Context, stepID string) (*domain.ApprovalStep, error) {
	step, err := e.steps.GetByID(ctx, stepID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return step, nil
}

// ApproveStep signs off a pending step on behalf of userID.
func (e *ApprovalWorkflowEngine) ApproveStep(ctx context.Context, stepID, userID string, comment *string) (*domain.ApprovalStep, error) {
	return e.decide(ctx, stepID, userID, domain.StepApproved, normalizeComment(comment))
}

// RejectStep rejects a pending step; comment must not be blank.
func (e *ApprovalWorkflowEngine) RejectStep(ctx context.Context, stepID, userID, comment string) (*domain.ApprovalStep, error) {
	trimmed := strings.TrimSpace(comment)
	if trimmed == "" {
		return nil, apperrors.NewRejectionCommentRequired()
	}
	return e.decide(ctx, stepID, userID, domain.StepRejected, &trimmed)
}

func (e *ApprovalWorkflowEngine) decide(ctx context.Context, stepID, userID string, status domain.StepStatus, comment *string) (*domain.ApprovalStep, error) {
	step, err := e.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status != domain.StepPending {
		return nil, apperrors.NewStepAlreadyDecided(step.ID, string(step.Status))
	}
	if err := e.assertCanAct(ctx, step, userID); err != nil {
		return nil, err
	}

	decided, err := e.steps.Decide(ctx, step.ID, domain.StepDecision{
		Status:    status,
		UserID:    userID,
		Comment:   comment,
		DecidedAt: e.now().UTC(),
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return decided, nil
}

// assertCanAct allows the assignee of an assigned step, or any active holder of
// the required role when the step is unassigned.
func (e *ApprovalWorkflowEngine) assertCanAct(ctx context.Context, step *domain.ApprovalStep, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewUnauthorized("approver identity required")
	}
	if step.AssignedUserID != nil {
		if *step.AssignedUserID != userID {
			return apperrors.NewForbidden("step is assigned to another approver")
		}
		return nil
	}
	if e.directory == nil {
		return apperrors.NewForbidden("approver cannot be verified")
	}
	user, err := e.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewForbidden("approver is not a known user")
		}
		return apperrors.MapError(err)
	}
	if !user.Active || user.Role != step.RequiredRole {
		return apperrors.NewForbidden(fmt.Sprintf("step requires an active %s approver", step.RequiredRole))
	}
	return nil
}

// GetApprovalSteps lists the chain for a requisition in step order.
func (e *ApprovalWorkflowEngine) GetApprovalSteps(ctx context.Context, requisitionID string) ([]domain.ApprovalStep, error) {
	steps, err := e.steps.ListByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	if steps == nil {
		steps = []domain.ApprovalStep{}
	}
	return steps, nil
}

// AllStepsApproved is false for a requisition that has no steps yet.
func (e *ApprovalWorkflowEngine) AllStepsApproved(ctx context.Context, requisitionID string) (bool, error) {
	steps, err := e.GetApprovalSteps(ctx, requisitionID)
	if err != nil {
		return false, err
	}
	if len(steps) == 0 {
		return false, nil
	}
	for _, step := range steps {
		if step.Status != domain.StepApproved {
			return false, nil
		}
	}
	return true, nil
}

// AnyStepRejected reports whether any step in the chain was rejected.
func (e *ApprovalWorkflowEngine) AnyStepRejected(ctx context.Context, requisitionID string) (bool, error) {
	steps, err := e.GetApprovalSteps(ctx, requisitionID)
	if err != nil {
		return false, err
	}
	for _, step := range steps {
		if step.Status == domain.StepRejected {
			return true, nil
		}
	}
	return false, nil
}

func normalizeComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// SeedRules stores rules only when no rule exists yet and reports how many were written.
func (e *ApprovalWorkflowEngine) SeedRules(ctx context.Context, rules []domain.ApprovalRule) (int, error) {
	if len(rules) == 0 {
		return 0, nil
	}
	existing, err := e.rules.Count(ctx)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if existing > 0 {
		e.logger.Info("approval rules already present, skipping seed", zap.Int("existing", existing))
		return 0, nil
	}
	for i := range rules {
		if err := e.rules.Create(ctx, &rules[i]); err != nil {
			return i, apperrors.MapError(err)
		}
	}
	return len(rules), nil
}
