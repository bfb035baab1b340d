package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UrgencyLevel expresses how quickly the spend is needed.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "LOW"
	UrgencyMedium   UrgencyLevel = "MEDIUM"
	UrgencyHigh     UrgencyLevel = "HIGH"
	UrgencyCritical UrgencyLevel = "CRITICAL"
)

// Valid reports whether u is a known urgency level.
func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Requisition is the aggregate for spending requests.
//
// ApprovedCost is set only once the status is APPROVED, PAID or CLOSED and
// ActualCostPaid only once it is PAID or CLOSED.
type Requisition struct {
	ID                    string
	ReferenceNumber       string
	SubmitterID           string
	DepartmentID          string
	Title                 string
	Description           string
	BusinessJustification string
	Status                RequisitionStatus
	EstimatedCost         decimal.Decimal
	ApprovedCost          *decimal.Decimal
	ActualCostPaid        *decimal.Decimal
	Currency              string
	UrgencyLevel          UrgencyLevel
	PaymentMethod         *string
	PaymentReference      *string
	PaymentDate           *time.Time
	PaymentComment        *string
	SubmittedAt           *time.Time
	ClosedAt              *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PaymentRecord is the set of payment fields written together with the PAID transition.
type PaymentRecord struct {
	ActualCostPaid   decimal.Decimal
	PaymentDate      time.Time
	PaymentMethod    string
	PaymentReference string
	PaymentComment   *string
}

// FinancialSummary is the read model over a requisition's money fields.
type FinancialSummary struct {
	RequisitionID    string
	Status           RequisitionStatus
	Currency         string
	EstimatedCost    decimal.Decimal
	ApprovedCost     *decimal.Decimal
	ActualCostPaid   *decimal.Decimal
	Variance         *decimal.Decimal
	ExceedsThreshold bool
	PaymentMethod    *string
	PaymentReference *string
	PaymentDate      *time.Time
	PaymentComment   *string
}
