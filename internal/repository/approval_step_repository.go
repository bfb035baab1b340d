package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/persistence"
	"github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// ApprovalStepRepository stores the routing chain of each requisition.
type ApprovalStepRepository interface {
	// CreateBatch inserts every step of a chain; either all rows commit or none do.
	CreateBatch(ctx context.Context, steps []*domain.ApprovalStep) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalStep, error)
	ListByRequisition(ctx context.Context, requisitionID string) ([]domain.ApprovalStep, error)
	// Decide applies a decision only while the step is still PENDING.
	Decide(ctx context.Context, id string, decision domain.StepDecision) (*domain.ApprovalStep, error)
}

const approvalStepColumns = `id, requisition_id, step_number, required_role, assigned_user_id, status,
        decided_by_id, approver_comment, approved_at, created_at`

type approvalStepRepository struct {
	pool *pgxpool.Pool
	tx   persistence.Transactor
}

// NewApprovalStepRepository builds repository.
func NewApprovalStepRepository(pool *pgxpool.Pool, tx persistence.Transactor) ApprovalStepRepository {
	return &approvalStepRepository{pool: pool, tx: tx}
}

func (r *approvalStepRepository) CreateBatch(ctx context.Context, steps []*domain.ApprovalStep) error {
	const query = `
        INSERT INTO approval_steps (requisition_id, step_number, required_role, assigned_user_id, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		conn := persistence.Conn(ctx, r.pool)
		for _, step := range steps {
			if err := conn.QueryRow(ctx, query,
				step.RequisitionID,
				step.StepNumber,
				step.RequiredRole,
				step.AssignedUserID,
				step.Status,
			).Scan(&step.ID, &step.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *approvalStepRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalStep, error) {
	if !validID(id) {
		return nil, errorutil.NewNotFound("approval step", map[string]any{"id": id})
	}
	query := `SELECT ` + approvalStepColumns + ` FROM approval_steps WHERE id=$1`
	step, err := scanApprovalStep(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errorutil.NewNotFound("approval step", map[string]any{"id": id})
	}
	return step, err
}

func (r *approvalStepRepository) ListByRequisition(ctx context.Context, requisitionID string) ([]domain.ApprovalStep, error) {
	query := `SELECT ` + approvalStepColumns + ` FROM approval_steps WHERE requisition_id=$1 ORDER BY step_number ASC`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ApprovalStep
	for rows.Next() {
		step, err := scanApprovalStep(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *step)
	}
	return result, rows.Err()
}

func (r *approvalStepRepository) Decide(ctx context.Context, id string, decision domain.StepDecision) (*domain.ApprovalStep, error) {
	query := `
        UPDATE approval_steps SET status=$2, decided_by_id=$3, approver_comment=$4, approved_at=$5
        WHERE id=$1 AND status='PENDING'
        RETURNING ` + approvalStepColumns
	step, err := scanApprovalStep(persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		id,
		decision.Status,
		decision.UserID,
		decision.Comment,
		decision.DecidedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errorutil.NewConcurrencyConflict("approval step", id)
	}
	return step, err
}

func scanApprovalStep(row pgx.Row) (*domain.ApprovalStep, error) {
	var step domain.ApprovalStep
	if err := row.Scan(
		&step.ID,
		&step.RequisitionID,
		&step.StepNumber,
		&step.RequiredRole,
		&step.AssignedUserID,
		&step.Status,
		&step.DecidedByID,
		&step.ApproverComment,
		&step.ApprovedAt,
		&step.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &step, nil
}
