package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/persistence"
	"github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// RequisitionRepository encapsulates requisition persistence. Every status-bearing
// write carries the expected prior status and fails with CONCURRENCY_CONFLICT when
// another writer got there first.
type RequisitionRepository interface {
	Create(ctx context.Context, req *domain.Requisition) error
	GetByID(ctx context.Context, id string) (*domain.Requisition, error)
	UpdateDraft(ctx context.Context, req *domain.Requisition) (*domain.Requisition, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.RequisitionStatus) (*domain.Requisition, error)
	Approve(ctx context.Context, id string, approvedCost decimal.Decimal) (*domain.Requisition, error)
	RecordPayment(ctx context.Context, id string, payment domain.PaymentRecord) (*domain.Requisition, error)
	Close(ctx context.Context, id string, closedAt time.Time) (*domain.Requisition, error)
}

const requisitionColumns = `id, reference_number, submitter_id, department_id, title, description,
        business_justification, status, estimated_cost, approved_cost, actual_cost_paid, currency,
        urgency_level, payment_method, payment_reference, payment_date, payment_comment,
        submitted_at, closed_at, created_at, updated_at`

type requisitionRepository struct {
	pool *pgxpool.Pool
}

// NewRequisitionRepository instantiates repository.
func NewRequisitionRepository(pool *pgxpool.Pool) RequisitionRepository {
	return &requisitionRepository{pool: pool}
}

func (r *requisitionRepository) Create(ctx context.Context, req *domain.Requisition) error {
	const query = `
        INSERT INTO requisitions (reference_number, submitter_id, department_id, title, description,
            business_justification, status, estimated_cost, currency, urgency_level)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		req.ReferenceNumber,
		req.SubmitterID,
		req.DepartmentID,
		req.Title,
		req.Description,
		req.BusinessJustification,
		req.Status,
		req.EstimatedCost,
		req.Currency,
		req.UrgencyLevel,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

func (r *requisitionRepository) GetByID(ctx context.Context, id string) (*domain.Requisition, error) {
	if !validID(id) {
		return nil, errorutil.NewNotFound("requisition", map[string]any{"id": id})
	}
	query := `SELECT ` + requisitionColumns + ` FROM requisitions WHERE id=$1`
	req, err := scanRequisition(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errorutil.NewNotFound("requisition", map[string]any{"id": id})
	}
	return req, err
}

func (r *requisitionRepository) UpdateDraft(ctx context.Context, req *domain.Requisition) (*domain.Requisition, error) {
	query := `
        UPDATE requisitions SET title=$2, description=$3, business_justification=$4,
            estimated_cost=$5, currency=$6, urgency_level=$7, updated_at=NOW()
        WHERE id=$1 AND status='DRAFT'
        RETURNING ` + requisitionColumns
	return r.conditional(ctx, req.ID, query,
		req.ID,
		req.Title,
		req.Description,
		req.BusinessJustification,
		req.EstimatedCost,
		req.Currency,
		req.UrgencyLevel,
	)
}

func (r *requisitionRepository) TransitionStatus(ctx context.Context, id string, from, to domain.RequisitionStatus) (*domain.Requisition, error) {
	query := `
        UPDATE requisitions SET status=$3,
            submitted_at = CASE WHEN $3 = 'SUBMITTED' THEN NOW() ELSE submitted_at END,
            updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING ` + requisitionColumns
	return r.conditional(ctx, id, query, id, string(from), string(to))
}

func (r *requisitionRepository) Approve(ctx context.Context, id string, approvedCost decimal.Decimal) (*domain.Requisition, error) {
	query := `
        UPDATE requisitions SET status='APPROVED', approved_cost=$2, updated_at=NOW()
        WHERE id=$1 AND status='UNDER_REVIEW'
        RETURNING ` + requisitionColumns
	return r.conditional(ctx, id, query, id, approvedCost)
}

func (r *requisitionRepository) RecordPayment(ctx context.Context, id string, payment domain.PaymentRecord) (*domain.Requisition, error) {
	query := `
        UPDATE requisitions SET status='PAID', actual_cost_paid=$2, payment_date=$3,
            payment_method=$4, payment_reference=$5, payment_comment=$6, updated_at=NOW()
        WHERE id=$1 AND status='APPROVED'
        RETURNING ` + requisitionColumns
	return r.conditional(ctx, id, query,
		id,
		payment.ActualCostPaid,
		payment.PaymentDate,
		payment.PaymentMethod,
		payment.PaymentReference,
		payment.PaymentComment,
	)
}

func (r *requisitionRepository) Close(ctx context.Context, id string, closedAt time.Time) (*domain.Requisition, error) {
	query := `
        UPDATE requisitions SET status='CLOSED', closed_at=$2, updated_at=NOW()
        WHERE id=$1 AND status='PAID'
        RETURNING ` + requisitionColumns
	return r.conditional(ctx, id, query, id, closedAt)
}

// conditional runs a guarded UPDATE ... RETURNING; no returned row means the
// precondition no longer held.
func (r *requisitionRepository) conditional(ctx context.Context, id, query string, args ...any) (*domain.Requisition, error) {
	req, err := scanRequisition(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errorutil.NewConcurrencyConflict("requisition", id)
	}
	return req, err
}

func scanRequisition(row pgx.Row) (*domain.Requisition, error) {
	var (
		req          domain.Requisition
		approvedCost decimal.NullDecimal
		actualCost   decimal.NullDecimal
	)
	if err := row.Scan(
		&req.ID,
		&req.ReferenceNumber,
		&req.SubmitterID,
		&req.DepartmentID,
		&req.Title,
		&req.Description,
		&req.BusinessJustification,
		&req.Status,
		&req.EstimatedCost,
		&approvedCost,
		&actualCost,
		&req.Currency,
		&req.UrgencyLevel,
		&req.PaymentMethod,
		&req.PaymentReference,
		&req.PaymentDate,
		&req.PaymentComment,
		&req.SubmittedAt,
		&req.ClosedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.ApprovedCost = nullableDecimal(approvedCost)
	req.ActualCostPaid = nullableDecimal(actualCost)
	return &req, nil
}

func nullableDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
