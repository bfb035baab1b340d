package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/requisition-service/internal/domain"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

func newTestEngine(rules *memRules, steps *memSteps, dir *fakeDirectory) *ApprovalWorkflowEngine {
	return NewApprovalWorkflowEngine(ApprovalWorkflowDependencies{
		RuleRepo:  rules,
		StepRepo:  steps,
		Directory: dir,
		Clock:     fixedClock,
	})
}

func TestDetermineApprovers(t *testing.T) {
	engineering := "dept-eng"
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rules := &memRules{rules: []domain.ApprovalRule{
		{Name: "small", MinAmount: dec("0"), MaxAmount: ptr(dec("1000")), RequiredApprovers: []domain.Role{domain.RoleManager}, CreatedAt: base},
		{Name: "medium", MinAmount: dec("1000.01"), MaxAmount: ptr(dec("10000")), RequiredApprovers: []domain.Role{domain.RoleManager, domain.RoleFinance}, CreatedAt: base},
		{Name: "eng", MinAmount: dec("500"), RequiredApprovers: []domain.Role{domain.RoleAdmin}, DepartmentID: &engineering, CreatedAt: base},
		{Name: "eng large tie", MinAmount: dec("1000.01"), RequiredApprovers: []domain.Role{domain.RoleFinance, domain.RoleAdmin}, DepartmentID: &engineering, CreatedAt: base.Add(time.Hour)},
	}}
	engine := newTestEngine(rules, newMemSteps(), newFakeDirectory())

	tests := []struct {
		name   string
		amount string
		dept   string
		want   []domain.Role
	}{
		{"lower bound inclusive", "0", "dept-ops", []domain.Role{domain.RoleManager}},
		{"upper bound inclusive", "1000", "dept-ops", []domain.Role{domain.RoleManager}},
		{"next band", "1000.01", "dept-ops", []domain.Role{domain.RoleManager, domain.RoleFinance}},
		{"no rule falls back to finance", "50000", "dept-ops", []domain.Role{domain.RoleFinance}},
		{"highest minimum wins", "800", "dept-eng", []domain.Role{domain.RoleAdmin}},
		{"exact tie prefers department rule", "5000", "dept-eng", []domain.Role{domain.RoleFinance, domain.RoleAdmin}},
		{"open ended department rule", "90000", "dept-eng", []domain.Role{domain.RoleFinance, domain.RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.DetermineApprovers(context.Background(), dec(tt.amount), tt.dept)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetermineApproversReturnsCopy(t *testing.T) {
	engine := newTestEngine(&memRules{}, newMemSteps(), newFakeDirectory())
	got, err := engine.DetermineApprovers(context.Background(), dec("10"), "dept")
	require.NoError(t, err)
	got[0] = domain.RoleAdmin
	assert.Equal(t, []domain.Role{domain.RoleFinance}, DefaultApprovers)
}

func TestCreateApprovalStepsAssignsDirectoryUsers(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("mgr-1", domain.RoleManager, "dept-ops")
	steps := newMemSteps()
	engine := newTestEngine(&memRules{}, steps, dir)

	reqID := uuid.NewString()
	created, err := engine.CreateApprovalSteps(context.Background(), reqID, "dept-ops",
		[]domain.Role{domain.RoleManager, domain.RoleFinance})
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, 1, created[0].StepNumber)
	assert.Equal(t, domain.RoleManager, created[0].RequiredRole)
	require.NotNil(t, created[0].AssignedUserID)
	assert.Equal(t, "mgr-1", *created[0].AssignedUserID)
	assert.Equal(t, domain.StepPending, created[0].Status)

	assert.Equal(t, 2, created[1].StepNumber)
	assert.Nil(t, created[1].AssignedUserID)
}

func TestCreateApprovalStepsLookupFailureLeavesUnassigned(t *testing.T) {
	dir := newFakeDirectory()
	dir.lookupErr = errors.New("directory down")
	engine := newTestEngine(&memRules{}, newMemSteps(), dir)

	created, err := engine.CreateApprovalSteps(context.Background(), uuid.NewString(), "dept", []domain.Role{domain.RoleFinance})
	require.NoError(t, err)
	assert.Nil(t, created[0].AssignedUserID)
}

func TestCreateApprovalStepsRejectsUnknownRole(t *testing.T) {
	steps := newMemSteps()
	engine := newTestEngine(&memRules{}, steps, newFakeDirectory())
	reqID := uuid.NewString()

	_, err := engine.CreateApprovalSteps(context.Background(), reqID, "dept",
		[]domain.Role{domain.RoleManager, domain.Role("CEO")})
	require.ErrorIs(t, err, apperrors.ErrInvalidRole)

	listed, err := engine.GetApprovalSteps(context.Background(), reqID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestCreateApprovalStepsIsAllOrNothing(t *testing.T) {
	steps := newMemSteps()
	steps.failStep = 2
	engine := newTestEngine(&memRules{}, steps, newFakeDirectory())
	reqID := uuid.NewString()

	_, err := engine.CreateApprovalSteps(context.Background(), reqID, "dept",
		[]domain.Role{domain.RoleManager, domain.RoleFinance, domain.RoleAdmin})
	require.Error(t, err)

	listed, err := engine.GetApprovalSteps(context.Background(), reqID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func seedSteps(t *testing.T, engine *ApprovalWorkflowEngine, reqID string, roles ...domain.Role) []domain.ApprovalStep {
	t.Helper()
	created, err := engine.CreateApprovalSteps(context.Background(), reqID, "dept-ops", roles)
	require.NoError(t, err)
	return created
}

func TestApproveStepConcurrentlyHasOneWinner(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("fin-1", domain.RoleFinance, "dept-ops")
	steps := newMemSteps()
	engine := newTestEngine(&memRules{}, steps, dir)
	reqID := uuid.NewString()
	step := seedSteps(t, engine, reqID, domain.RoleFinance)[0]

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		failure []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.ApproveStep(context.Background(), step.ID, "fin-1", nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			failure = append(failure, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, failure, callers-1)
	for _, err := range failure {
		assert.True(t, errors.Is(err, apperrors.ErrConcurrencyConflict) || errors.Is(err, apperrors.ErrStepAlreadyDecided), err.Error())
	}
	final, err := engine.GetStep(context.Background(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepApproved, final.Status)
}

func TestApproveStepRecordsDecision(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("mgr-1", domain.RoleManager, "dept-ops")
	engine := newTestEngine(&memRules{}, newMemSteps(), dir)
	step := seedSteps(t, engine, uuid.NewString(), domain.RoleManager)[0]

	decided, err := engine.ApproveStep(context.Background(), step.ID, "mgr-1", ptr("  looks fine "))
	require.NoError(t, err)
	assert.Equal(t, domain.StepApproved, decided.Status)
	require.NotNil(t, decided.ApproverComment)
	assert.Equal(t, "looks fine", *decided.ApproverComment)
	require.NotNil(t, decided.ApprovedAt)
	assert.Equal(t, fixedNow, *decided.ApprovedAt)

	_, err = engine.ApproveStep(context.Background(), step.ID, "mgr-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrStepAlreadyDecided)
}

func TestRejectStepRequiresComment(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("fin-1", domain.RoleFinance, "dept-ops")
	engine := newTestEngine(&memRules{}, newMemSteps(), dir)
	step := seedSteps(t, engine, uuid.NewString(), domain.RoleFinance)[0]

	for _, comment := range []string{"", "   "} {
		_, err := engine.RejectStep(context.Background(), step.ID, "fin-1", comment)
		assert.ErrorIs(t, err, apperrors.ErrRejectionComment)
	}

	decided, err := engine.RejectStep(context.Background(), step.ID, "fin-1", "over budget")
	require.NoError(t, err)
	assert.Equal(t, domain.StepRejected, decided.Status)
	assert.Equal(t, "over budget", *decided.ApproverComment)
}

func TestStepAuthorization(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("mgr-1", domain.RoleManager, "dept-ops")
	dir.addUser("mgr-2", domain.RoleManager, "dept-other")
	dir.addUser("emp-1", domain.RoleEmployee, "dept-ops")
	dir.users["fin-off"] = domain.User{ID: "fin-off", Role: domain.RoleFinance, Active: false}
	engine := newTestEngine(&memRules{}, newMemSteps(), dir)
	steps := seedSteps(t, engine, uuid.NewString(), domain.RoleManager, domain.RoleFinance)

	_, err := engine.ApproveStep(context.Background(), steps[0].ID, "mgr-2", nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "assigned step belongs to mgr-1")

	_, err = engine.ApproveStep(context.Background(), steps[1].ID, "emp-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "wrong role")

	_, err = engine.ApproveStep(context.Background(), steps[1].ID, "fin-off", nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "inactive user")

	_, err = engine.ApproveStep(context.Background(), steps[1].ID, "ghost", nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "unknown user")
}

func TestAggregatePredicates(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("mgr-1", domain.RoleManager, "dept-ops")
	dir.addUser("fin-1", domain.RoleFinance, "dept-ops")
	engine := newTestEngine(&memRules{}, newMemSteps(), dir)
	ctx := context.Background()

	empty := uuid.NewString()
	all, err := engine.AllStepsApproved(ctx, empty)
	require.NoError(t, err)
	assert.False(t, all, "no steps is not approval")

	reqID := uuid.NewString()
	steps := seedSteps(t, engine, reqID, domain.RoleManager, domain.RoleFinance)

	_, err = engine.ApproveStep(ctx, steps[0].ID, "mgr-1", nil)
	require.NoError(t, err)
	all, err = engine.AllStepsApproved(ctx, reqID)
	require.NoError(t, err)
	assert.False(t, all)

	_, err = engine.RejectStep(ctx, steps[1].ID, "fin-1", "duplicate purchase")
	require.NoError(t, err)
	rejected, err := engine.AnyStepRejected(ctx, reqID)
	require.NoError(t, err)
	assert.True(t, rejected)
}

func TestSeedRulesOnlyIntoEmptyTable(t *testing.T) {
	rules := &memRules{}
	engine := newTestEngine(rules, newMemSteps(), newFakeDirectory())
	seed := []domain.ApprovalRule{
		{Name: "all", MinAmount: dec("0"), RequiredApprovers: []domain.Role{domain.RoleFinance}},
	}

	n, err := engine.SeedRules(context.Background(), seed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotEmpty(t, seed[0].ID)

	n, err = engine.SeedRules(context.Background(), seed)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, rules.rules, 1)
}
