package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequisitionSubmitted EventType = "requisition_submitted"
	EventRequisitionApproved  EventType = "requisition_approved"
	EventRequisitionRejected  EventType = "requisition_rejected"
	EventRequisitionPaid      EventType = "requisition_paid"
)

// Event is a notification trigger emitted after a state change has committed.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	RequisitionID string      `json:"requisition_id"`
	ActorID       string      `json:"actor_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

// SubmittedPayload payload.
type SubmittedPayload struct {
	ReferenceNumber string          `json:"reference_number"`
	DepartmentID    string          `json:"department_id"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost"`
	Currency        string          `json:"currency"`
}

// ApprovedPayload payload.
type ApprovedPayload struct {
	ApproverID   string          `json:"approver_id"`
	ApprovedCost decimal.Decimal `json:"approved_cost"`
}

// RejectedPayload payload.
type RejectedPayload struct {
	Reason string `json:"reason"`
}

// PaidPayload payload.
type PaidPayload struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}
