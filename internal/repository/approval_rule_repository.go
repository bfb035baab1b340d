package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/persistence"
)

// ApprovalRuleRepository reads and seeds routing rules.
type ApprovalRuleRepository interface {
	Create(ctx context.Context, rule *domain.ApprovalRule) error
	Count(ctx context.Context) (int, error)
	// ListApplicable returns global rules plus those scoped to departmentID.
	ListApplicable(ctx context.Context, departmentID string) ([]domain.ApprovalRule, error)
}

type approvalRuleRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRuleRepository builds repository.
func NewApprovalRuleRepository(pool *pgxpool.Pool) ApprovalRuleRepository {
	return &approvalRuleRepository{pool: pool}
}

func (r *approvalRuleRepository) Create(ctx context.Context, rule *domain.ApprovalRule) error {
	const query = `
        INSERT INTO approval_rules (name, min_amount, max_amount, required_approvers, department_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	var maxAmount decimal.NullDecimal
	if rule.MaxAmount != nil {
		maxAmount = decimal.NewNullDecimal(*rule.MaxAmount)
	}
	roles := make([]string, 0, len(rule.RequiredApprovers))
	for _, role := range rule.RequiredApprovers {
		roles = append(roles, string(role))
	}
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		rule.Name,
		rule.MinAmount,
		maxAmount,
		roles,
		rule.DepartmentID,
	).Scan(&rule.ID, &rule.CreatedAt)
}

func (r *approvalRuleRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM approval_rules`).Scan(&count)
	return count, err
}

func (r *approvalRuleRepository) ListApplicable(ctx context.Context, departmentID string) ([]domain.ApprovalRule, error) {
	const query = `
        SELECT id, name, min_amount, max_amount, required_approvers, department_id, created_at
        FROM approval_rules
        WHERE department_id IS NULL OR department_id::text = $1
        ORDER BY min_amount DESC, created_at ASC`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovalRules(rows)
}

func scanApprovalRules(rows pgx.Rows) ([]domain.ApprovalRule, error) {
	var result []domain.ApprovalRule
	for rows.Next() {
		var (
			rule      domain.ApprovalRule
			maxAmount decimal.NullDecimal
			roles     []string
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.MinAmount,
			&maxAmount,
			&roles,
			&rule.DepartmentID,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		rule.MaxAmount = nullableDecimal(maxAmount)
		for _, role := range roles {
			rule.RequiredApprovers = append(rule.RequiredApprovers, domain.Role(role))
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}
