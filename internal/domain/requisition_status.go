package domain

import (
	"github.com/spec-kit/requisition-service/pkg/util/errorutil"
)

// RequisitionStatus enumerates lifecycle states for requisitions.
type RequisitionStatus string

const (
	StatusDraft       RequisitionStatus = "DRAFT"
	StatusSubmitted   RequisitionStatus = "SUBMITTED"
	StatusUnderReview RequisitionStatus = "UNDER_REVIEW"
	StatusApproved    RequisitionStatus = "APPROVED"
	StatusRejected    RequisitionStatus = "REJECTED"
	StatusPaid        RequisitionStatus = "PAID"
	StatusClosed      RequisitionStatus = "CLOSED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []RequisitionStatus{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusPaid,
	StatusClosed,
}

var allowedTransitions = map[RequisitionStatus][]RequisitionStatus{
	StatusDraft:       {StatusSubmitted},
	StatusSubmitted:   {StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {StatusPaid},
	StatusPaid:        {StatusClosed},
	StatusRejected:    {},
	StatusClosed:      {},
}

// IsTerminal reports whether no transition leaves s.
func (s RequisitionStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IsValidTransition reports whether from -> to is in the transition table.
func IsValidTransition(from, to RequisitionStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedNext returns a copy of the states reachable from `from`.
func AllowedNext(from RequisitionStatus) []RequisitionStatus {
	next := allowedTransitions[from]
	out := make([]RequisitionStatus, len(next))
	copy(out, next)
	return out
}

// ValidateTransition fails with INVALID_STATUS_TRANSITION when from -> to is not allowed.
func ValidateTransition(from, to RequisitionStatus) error {
	if IsValidTransition(from, to) {
		return nil
	}
	next := AllowedNext(from)
	allowed := make([]string, 0, len(next))
	for _, s := range next {
		allowed = append(allowed, string(s))
	}
	return errorutil.NewInvalidTransition(string(from), string(to), allowed)
}
