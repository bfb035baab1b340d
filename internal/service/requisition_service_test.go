package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/events"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

type lifecycleFixture struct {
	reqs       *memRequisitions
	steps      *memSteps
	rules      *memRules
	audit      *memAudit
	dir        *fakeDirectory
	tx         *inlineTx
	dispatcher *recordingDispatcher
	service    *RequisitionLifecycleService
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		reqs:       newMemRequisitions(),
		steps:      newMemSteps(),
		rules:      &memRules{},
		audit:      &memAudit{},
		dir:        newFakeDirectory(),
		tx:         &inlineTx{},
		dispatcher: &recordingDispatcher{},
	}
	f.dir.departments["dept-ops"] = true
	f.dir.addUser("emp-1", domain.RoleEmployee, "dept-ops")
	f.dir.addUser("mgr-1", domain.RoleManager, "dept-ops")
	f.dir.addUser("fin-1", domain.RoleFinance, "dept-ops")

	ledger := NewAuditTrailLedger(f.audit)
	workflow := NewApprovalWorkflowEngine(ApprovalWorkflowDependencies{
		RuleRepo:  f.rules,
		StepRepo:  f.steps,
		Directory: f.dir,
		Clock:     fixedClock,
	})
	finance := NewFinancialTrackingService(FinancialDependencies{
		RequisitionRepo:   f.reqs,
		Ledger:            ledger,
		VarianceThreshold: ptr(dec("0.10")),
	})
	f.service = NewRequisitionLifecycleService(RequisitionDependencies{
		RequisitionRepo: f.reqs,
		Directory:       f.dir,
		Workflow:        workflow,
		Finance:         finance,
		Ledger:          ledger,
		Transactor:      f.tx,
		Dispatcher:      f.dispatcher,
		DefaultCurrency: "usd",
		Clock:           fixedClock,
	})
	return f
}

func (f *lifecycleFixture) create(t *testing.T, cost string) *domain.Requisition {
	t.Helper()
	req, err := f.service.CreateRequisition(context.Background(), CreateRequisitionInput{
		Title:                 "Laptops",
		Description:           "Two developer laptops",
		BusinessJustification: "New hires",
		EstimatedCost:         dec(cost),
	}, "emp-1", "dept-ops")
	require.NoError(t, err)
	return req
}

func (f *lifecycleFixture) underReview(t *testing.T, cost string) *domain.Requisition {
	t.Helper()
	ctx := context.Background()
	req := f.create(t, cost)
	_, err := f.service.SubmitRequisition(ctx, req.ID, "emp-1")
	require.NoError(t, err)
	req, err = f.service.TransitionToUnderReview(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	return req
}

func TestCreateRequisitionDefaults(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, "1000")

	assert.Equal(t, domain.StatusDraft, req.Status)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, domain.UrgencyMedium, req.UrgencyLevel)
	assert.True(t, strings.HasPrefix(req.ReferenceNumber, "REQ-"))
	assert.Len(t, req.ReferenceNumber, 12)
	assert.Nil(t, req.ApprovedCost)
	assert.Nil(t, req.ActualCostPaid)
	assert.Equal(t, []domain.ChangeType{domain.ChangeCreated}, f.audit.changeTypes(req.ID))
}

func TestCreateRequisitionValidation(t *testing.T) {
	tests := []struct {
		name   string
		input  CreateRequisitionInput
		user   string
		dept   string
		target error
	}{
		{"unknown department", CreateRequisitionInput{EstimatedCost: dec("10")}, "emp-1", "dept-x", apperrors.ErrReferentialIntegrity},
		{"unknown submitter", CreateRequisitionInput{EstimatedCost: dec("10")}, "ghost", "dept-ops", apperrors.ErrReferentialIntegrity},
		{"zero cost", CreateRequisitionInput{EstimatedCost: dec("0")}, "emp-1", "dept-ops", apperrors.ErrValidation},
		{"bad urgency", CreateRequisitionInput{EstimatedCost: dec("10"), UrgencyLevel: "SOON"}, "emp-1", "dept-ops", apperrors.ErrValidation},
		{"bad currency", CreateRequisitionInput{EstimatedCost: dec("10"), Currency: "DOLLARS"}, "emp-1", "dept-ops", apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLifecycleFixture()
			_, err := f.service.CreateRequisition(context.Background(), tt.input, tt.user, tt.dept)
			assert.ErrorIs(t, err, tt.target)
			assert.Empty(t, f.reqs.items)
		})
	}
}

func TestSubmitRequiresFields(t *testing.T) {
	for _, field := range []string{"title", "description", "business_justification"} {
		t.Run(field, func(t *testing.T) {
			f := newLifecycleFixture()
			req := f.create(t, "100")
			stored := *req
			switch field {
			case "title":
				stored.Title = ""
			case "description":
				stored.Description = " "
			case "business_justification":
				stored.BusinessJustification = ""
			}
			f.reqs.put(stored)

			_, err := f.service.SubmitRequisition(context.Background(), req.ID, "emp-1")
			require.ErrorIs(t, err, apperrors.ErrMissingRequiredFields)
			var domainErr *apperrors.DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, []string{field}, domainErr.Details["fields"])

			current, _ := f.reqs.GetByID(context.Background(), req.ID)
			assert.Equal(t, domain.StatusDraft, current.Status)
			assert.Empty(t, f.dispatcher.published)
		})
	}
}

func TestSubmitOnlyBySubmitter(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, "100")
	_, err := f.service.SubmitRequisition(context.Background(), req.ID, "mgr-1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestUpdateDraftRecordsEachChangedField(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, "100")
	ctx := context.Background()

	urgency := domain.UrgencyHigh
	updated, err := f.service.UpdateDraft(ctx, req.ID, "emp-1", DraftPatch{
		Title:         ptr("Laptops (x3)"),
		Description:   ptr(req.Description),
		EstimatedCost: ptr(dec("150")),
		UrgencyLevel:  &urgency,
	})
	require.NoError(t, err)
	assert.Equal(t, "Laptops (x3)", updated.Title)
	assert.True(t, updated.EstimatedCost.Equal(dec("150")))
	assert.Equal(t, domain.UrgencyHigh, updated.UrgencyLevel)

	entries, err := f.service.GetAuditTrail(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	var fields []string
	for _, e := range entries[1:] {
		assert.Equal(t, domain.ChangeFieldUpdate, e.ChangeType)
		fields = append(fields, *e.FieldName)
	}
	assert.Equal(t, []string{"title", "estimated_cost", "urgency_level"}, fields)
	assert.Equal(t, "100", *entries[2].PreviousValue)

	_, err = f.service.SubmitRequisition(ctx, req.ID, "emp-1")
	require.NoError(t, err)
	_, err = f.service.UpdateDraft(ctx, req.ID, "emp-1", DraftPatch{Title: ptr("late edit")})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestTransitionToUnderReviewCreatesSteps(t *testing.T) {
	f := newLifecycleFixture()
	f.rules.rules = []domain.ApprovalRule{{
		MinAmount:         dec("0"),
		RequiredApprovers: []domain.Role{domain.RoleManager, domain.RoleFinance},
	}}
	req := f.underReview(t, "500")

	assert.Equal(t, domain.StatusUnderReview, req.Status)
	assert.Equal(t, 1, f.tx.calls)
	steps, err := f.service.GetApprovalSteps(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, domain.RoleManager, steps[0].RequiredRole)
	assert.Equal(t, "mgr-1", *steps[0].AssignedUserID)
	assert.Equal(t, "fin-1", *steps[1].AssignedUserID)

	_, err = f.service.TransitionToUnderReview(context.Background(), req.ID, "mgr-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTransitionToUnderReviewRollsBackOnRuleFailure(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, "500")
	_, err := f.service.SubmitRequisition(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)

	f.rules.err = errors.New("rules unavailable")
	_, err = f.service.TransitionToUnderReview(context.Background(), req.ID, "mgr-1")
	require.Error(t, err)
	// inlineTx has no rollback, so only assert nothing was audited for the failed call.
	assert.Equal(t, []domain.ChangeType{domain.ChangeCreated, domain.ChangeStatus}, f.audit.changeTypes(req.ID))
}

func TestEndToEndLifecycle(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	req := f.underReview(t, "1000")

	approved, err := f.service.ApproveRequisition(ctx, req.ID, "fin-1", ptr(dec("900")))
	require.NoError(t, err)
	assert.True(t, approved.ApprovedCost.Equal(dec("900")))

	paid, err := f.service.RecordPayment(ctx, req.ID, "fin-1", validPayment("900"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.True(t, paid.ApprovedCost.Equal(dec("900")))
	assert.True(t, paid.ActualCostPaid.Equal(dec("900")))

	_, err = f.service.ApproveRequisition(ctx, req.ID, "fin-1", nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	closed, err := f.service.CloseRequisition(ctx, req.ID, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, fixedNow, *closed.ClosedAt)

	assert.Equal(t, []events.EventType{
		events.EventRequisitionSubmitted,
		events.EventRequisitionApproved,
		events.EventRequisitionPaid,
	}, f.dispatcher.types())

	entries, err := f.service.GetAuditTrail(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChangeType{
		domain.ChangeCreated,
		domain.ChangeStatus,
		domain.ChangeStatus,
		domain.ChangeStatus,
		domain.ChangePayment,
		domain.ChangeStatus,
		domain.ChangeStatus,
	}, f.audit.changeTypes(req.ID))
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func TestApproveRequisitionDefaultsToEstimate(t *testing.T) {
	f := newLifecycleFixture()
	req := f.underReview(t, "1000")
	approved, err := f.service.ApproveRequisition(context.Background(), req.ID, "fin-1", nil)
	require.NoError(t, err)
	assert.True(t, approved.ApprovedCost.Equal(dec("1000")))
}

func TestRejectRequisitionIsTerminal(t *testing.T) {
	f := newLifecycleFixture()
	req := f.underReview(t, "1000")
	ctx := context.Background()

	rejected, err := f.service.RejectRequisition(ctx, req.ID, "fin-1", "not in budget")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)

	_, err = f.service.ApproveRequisition(ctx, req.ID, "fin-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = f.service.CloseRequisition(ctx, req.ID, "fin-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	last := f.dispatcher.published[len(f.dispatcher.published)-1]
	assert.Equal(t, events.EventRequisitionRejected, last.Type)
	assert.Equal(t, "not in budget", last.Payload.(events.RejectedPayload).Reason)
}

func TestStaleTransitionIsConcurrencyConflict(t *testing.T) {
	f := newLifecycleFixture()
	req := f.create(t, "100")
	_, err := f.service.SubmitRequisition(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)

	_, err = f.reqs.TransitionStatus(context.Background(), req.ID, domain.StatusDraft, domain.StatusSubmitted)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
}

func TestStepDecisionsFinalizeRequisition(t *testing.T) {
	f := newLifecycleFixture()
	f.rules.rules = []domain.ApprovalRule{{
		MinAmount:         dec("0"),
		RequiredApprovers: []domain.Role{domain.RoleManager, domain.RoleFinance},
	}}
	req := f.underReview(t, "750")
	ctx := context.Background()
	first := f.steps.byNumber(req.ID, 1)
	second := f.steps.byNumber(req.ID, 2)

	_, err := f.service.ApproveStep(ctx, second.ID, "fin-1", nil)
	require.ErrorIs(t, err, apperrors.ErrValidation, "step 2 waits for step 1")

	outcome, err := f.service.ApproveStep(ctx, first.ID, "mgr-1", ptr("ok"))
	require.NoError(t, err)
	assert.False(t, outcome.Finalized)
	assert.Equal(t, domain.StatusUnderReview, outcome.Requisition.Status)

	outcome, err = f.service.ApproveStep(ctx, second.ID, "fin-1", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Finalized)
	assert.Equal(t, domain.StatusApproved, outcome.Requisition.Status)
	assert.True(t, outcome.Requisition.ApprovedCost.Equal(dec("750")))

	_, err = f.service.ApproveStep(ctx, second.ID, "fin-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	types := f.audit.changeTypes(req.ID)
	assert.Equal(t, domain.ChangeApproval, types[len(types)-3])
	assert.Equal(t, domain.ChangeApproval, types[len(types)-2])
	assert.Equal(t, domain.ChangeStatus, types[len(types)-1])
}

func TestRejectStepRejectsRequisition(t *testing.T) {
	f := newLifecycleFixture()
	req := f.underReview(t, "300")
	ctx := context.Background()
	step := f.steps.byNumber(req.ID, 1)

	_, err := f.service.RejectStep(ctx, step.ID, "fin-1", "")
	require.ErrorIs(t, err, apperrors.ErrRejectionComment)

	outcome, err := f.service.RejectStep(ctx, step.ID, "fin-1", "vendor not approved")
	require.NoError(t, err)
	assert.True(t, outcome.Finalized)
	assert.Equal(t, domain.StatusRejected, outcome.Requisition.Status)
	assert.Equal(t, "vendor not approved", *outcome.Step.ApproverComment)

	last := f.dispatcher.published[len(f.dispatcher.published)-1]
	assert.Equal(t, events.EventRequisitionRejected, last.Type)
}

func TestNotificationFailureDoesNotUnwind(t *testing.T) {
	f := newLifecycleFixture()
	f.dispatcher.err = errors.New("broker down")
	req := f.create(t, "100")

	submitted, err := f.service.SubmitRequisition(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, submitted.Status)
}

func TestQueriesOnMissingRequisition(t *testing.T) {
	f := newLifecycleFixture()
	_, err := f.service.GetApprovalSteps(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.service.GetAuditTrail(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.service.SubmitRequisition(context.Background(), "missing", "emp-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
