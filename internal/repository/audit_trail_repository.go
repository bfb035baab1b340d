package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/requisition-service/internal/domain"
	"github.com/spec-kit/requisition-service/internal/persistence"
)

// AuditTrailStore is the ledger's storage surface. It has no update or delete;
// the table additionally rejects both with a trigger.
type AuditTrailStore interface {
	Append(ctx context.Context, entry *domain.AuditTrailEntry) error
	ListByRequisition(ctx context.Context, requisitionID string) ([]domain.AuditTrailEntry, error)
}

type auditTrailRepository struct {
	pool *pgxpool.Pool
}

// NewAuditTrailRepository builds repository.
func NewAuditTrailRepository(pool *pgxpool.Pool) AuditTrailStore {
	return &auditTrailRepository{pool: pool}
}

func (r *auditTrailRepository) Append(ctx context.Context, entry *domain.AuditTrailEntry) error {
	const query = `
        INSERT INTO audit_trail_entries (requisition_id, user_id, change_type, field_name, previous_value, new_value, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, seq, created_at`
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		entry.RequisitionID,
		entry.UserID,
		entry.ChangeType,
		entry.FieldName,
		entry.PreviousValue,
		entry.NewValue,
		entry.Metadata,
	).Scan(&entry.ID, &entry.Sequence, &entry.Timestamp)
}

func (r *auditTrailRepository) ListByRequisition(ctx context.Context, requisitionID string) ([]domain.AuditTrailEntry, error) {
	const query = `
        SELECT id, seq, requisition_id, user_id, change_type, field_name, previous_value, new_value, metadata, created_at
        FROM audit_trail_entries WHERE requisition_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditTrailEntry
	for rows.Next() {
		var entry domain.AuditTrailEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Sequence,
			&entry.RequisitionID,
			&entry.UserID,
			&entry.ChangeType,
			&entry.FieldName,
			&entry.PreviousValue,
			&entry.NewValue,
			&entry.Metadata,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
