package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/events"
	apperrors "github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memRequisitions struct {
	mu    sync.Mutex
	items map[string]domain.Requisition
}

func newMemRequisitions() *memRequisitions {
	return &memRequisitions{items: map[string]domain.Requisition{}}
}

func (m *memRequisitions) Create(_ context.Context, req *domain.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = uuid.NewString()
	req.CreatedAt = fixedNow
	req.UpdatedAt = fixedNow
	m.items[req.ID] = *req
	return nil
}

func (m *memRequisitions) GetByID(_ context.Context, id string) (*domain.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return nil, apperrors.NewNotFound("requisition", map[string]any{"id": id})
	}
	return &req, nil
}

// guarded applies mutate only while the stored status equals expected.
func (m *memRequisitions) guarded(id string, expected domain.RequisitionStatus, mutate func(*domain.Requisition)) (*domain.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok || req.Status != expected {
		return nil, apperrors.NewConcurrencyConflict("requisition", id)
	}
	mutate(&req)
	m.items[id] = req
	return &req, nil
}

func (m *memRequisitions) UpdateDraft(_ context.Context, req *domain.Requisition) (*domain.Requisition, error) {
	return m.guarded(req.ID, domain.StatusDraft, func(stored *domain.Requisition) {
		stored.Title = req.Title
		stored.Description = req.Description
		stored.BusinessJustification = req.BusinessJustification
		stored.EstimatedCost = req.EstimatedCost
		stored.Currency = req.Currency
		stored.UrgencyLevel = req.UrgencyLevel
	})
}

func (m *memRequisitions) TransitionStatus(_ context.Context, id string, from, to domain.RequisitionStatus) (*domain.Requisition, error) {
	return m.guarded(id, from, func(stored *domain.Requisition) {
		stored.Status = to
		if to == domain.StatusSubmitted {
			stored.SubmittedAt = ptr(fixedNow)
		}
	})
}

func (m *memRequisitions) Approve(_ context.Context, id string, approvedCost decimal.Decimal) (*domain.Requisition, error) {
	return m.guarded(id, domain.StatusUnderReview, func(stored *domain.Requisition) {
		stored.Status = domain.StatusApproved
		stored.ApprovedCost = &approvedCost
	})
}

func (m *memRequisitions) RecordPayment(_ context.Context, id string, payment domain.PaymentRecord) (*domain.Requisition, error) {
	return m.guarded(id, domain.StatusApproved, func(stored *domain.Requisition) {
		stored.Status = domain.StatusPaid
		stored.ActualCostPaid = &payment.ActualCostPaid
		stored.PaymentDate = &payment.PaymentDate
		stored.PaymentMethod = &payment.PaymentMethod
		stored.PaymentReference = &payment.PaymentReference
		stored.PaymentComment = payment.PaymentComment
	})
}

func (m *memRequisitions) Close(_ context.Context, id string, closedAt time.Time) (*domain.Requisition, error) {
	return m.guarded(id, domain.StatusPaid, func(stored *domain.Requisition) {
		stored.Status = domain.StatusClosed
		stored.ClosedAt = &closedAt
	})
}

func (m *memRequisitions) put(req domain.Requisition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[req.ID] = req
}

type memRules struct {
	rules []domain.ApprovalRule
	err   error
}

func (m *memRules) Create(_ context.Context, rule *domain.ApprovalRule) error {
	rule.ID = uuid.NewString()
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *memRules) Count(context.Context) (int, error) { return len(m.rules), nil }

func (m *memRules) ListApplicable(_ context.Context, departmentID string) ([]domain.ApprovalRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.ApprovalRule
	for _, r := range m.rules {
		if r.DepartmentID == nil || *r.DepartmentID == departmentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memSteps struct {
	mu       sync.Mutex
	items    map[string]domain.ApprovalStep
	failStep int
}

func newMemSteps() *memSteps {
	return &memSteps{items: map[string]domain.ApprovalStep{}}
}

func (m *memSteps) CreateBatch(_ context.Context, steps []*domain.ApprovalStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := map[string]domain.ApprovalStep{}
	for _, step := range steps {
		if m.failStep == step.StepNumber {
			return errors.New("insert failed")
		}
		for _, existing := range m.items {
			if existing.RequisitionID == step.RequisitionID && existing.StepNumber == step.StepNumber {
				return errors.New("duplicate step number")
			}
		}
		step.ID = uuid.NewString()
		step.CreatedAt = fixedNow
		staged[step.ID] = *step
	}
	for id, step := range staged {
		m.items[id] = step
	}
	return nil
}

func (m *memSteps) GetByID(_ context.Context, id string) (*domain.ApprovalStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.items[id]
	if !ok {
		return nil, apperrors.NewNotFound("approval step", map[string]any{"id": id})
	}
	return &step, nil
}

func (m *memSteps) ListByRequisition(_ context.Context, requisitionID string) ([]domain.ApprovalStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ApprovalStep
	for _, step := range m.items {
		if step.RequisitionID == requisitionID {
			out = append(out, step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

func (m *memSteps) Decide(_ context.Context, id string, decision domain.StepDecision) (*domain.ApprovalStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.items[id]
	if !ok || step.Status != domain.StepPending {
		return nil, apperrors.NewConcurrencyConflict("approval step", id)
	}
	step.Status = decision.Status
	step.DecidedByID = &decision.UserID
	step.ApproverComment = decision.Comment
	decidedAt := decision.DecidedAt
	step.ApprovedAt = &decidedAt
	m.items[id] = step
	return &step, nil
}

func (m *memSteps) byNumber(requisitionID string, number int) domain.ApprovalStep {
	steps, _ := m.ListByRequisition(context.Background(), requisitionID)
	for _, step := range steps {
		if step.StepNumber == number {
			return step
		}
	}
	return domain.ApprovalStep{}
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditTrailEntry
	seq     int64
	err     error
}

func (m *memAudit) Append(_ context.Context, entry *domain.AuditTrailEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seq++
	entry.ID = uuid.NewString()
	entry.Sequence = m.seq
	entry.Timestamp = fixedNow.Add(time.Duration(m.seq) * time.Millisecond)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memAudit) ListByRequisition(_ context.Context, requisitionID string) ([]domain.AuditTrailEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditTrailEntry
	for _, e := range m.entries {
		if e.RequisitionID == requisitionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudit) changeTypes(requisitionID string) []domain.ChangeType {
	entries, _ := m.ListByRequisition(context.Background(), requisitionID)
	out := make([]domain.ChangeType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ChangeType)
	}
	return out
}

type fakeDirectory struct {
	departments map[string]bool
	users       map[string]domain.User
	lookupErr   error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{departments: map[string]bool{}, users: map[string]domain.User{}}
}

func (f *fakeDirectory) addUser(id string, role domain.Role, dept string) {
	f.users[id] = domain.User{ID: id, Name: id, Role: role, DepartmentID: &dept, Active: true}
}

func (f *fakeDirectory) UserExists(_ context.Context, id string) (bool, error) {
	u, ok := f.users[id]
	return ok && u.Active, nil
}

func (f *fakeDirectory) DepartmentExists(_ context.Context, id string) (bool, error) {
	return f.departments[id], nil
}

func (f *fakeDirectory) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
	}
	return &u, nil
}

func (f *fakeDirectory) FindActiveUser(_ context.Context, role domain.Role, departmentID string) (*domain.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		u := f.users[id]
		if u.Active && u.Role == role && u.DepartmentID != nil && *u.DepartmentID == departmentID {
			return &u, nil
		}
	}
	return nil, nil
}

// inlineTx runs fn without a real transaction; fakes apply writes immediately.
type inlineTx struct{ calls int }

func (t *inlineTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type recordingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
	err       error
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, event)
	return d.err
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.published))
	for _, e := range d.published {
		out = append(out, e.Type)
	}
	return out
}
