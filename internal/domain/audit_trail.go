package domain

import "time"

// ChangeType captures what an audit entry documents.
type ChangeType string

const (
	ChangeCreated      ChangeType = "CREATED"
	ChangeFieldUpdate  ChangeType = "FIELD_UPDATE"
	ChangeStatus       ChangeType = "STATUS_CHANGE"
	ChangeApproval     ChangeType = "APPROVAL"
	ChangeRejection    ChangeType = "REJECTION"
	ChangePayment      ChangeType = "PAYMENT"
	ChangeNotification ChangeType = "NOTIFICATION"
)

// AuditTrailEntry is an immutable ledger row. Timestamp is assigned by storage.
type AuditTrailEntry struct {
	ID            string
	Sequence      int64
	RequisitionID string
	UserID        string
	ChangeType    ChangeType
	FieldName     *string
	PreviousValue *string
	NewValue      *string
	Metadata      map[string]any
	Timestamp     time.Time
}
