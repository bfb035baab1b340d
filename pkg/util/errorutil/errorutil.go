package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to callers.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeReferentialIntegrity   = "REFERENTIAL_INTEGRITY"
	CodeInvalidTransition      = "INVALID_STATUS_TRANSITION"
	CodeMissingRequiredFields  = "MISSING_REQUIRED_FIELDS"
	CodeRejectionComment       = "REJECTION_COMMENT_REQUIRED"
	CodePaymentVarianceComment = "PAYMENT_VARIANCE_COMMENT_REQUIRED"
	CodeInvalidRole            = "INVALID_ROLE"
	CodeStepAlreadyDecided     = "STEP_ALREADY_DECIDED"
	CodeConcurrencyConflict    = "CONCURRENCY_CONFLICT"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
)

// Sentinels for errors.Is matching; comparison is by code only.
var (
	ErrValidation             = &DomainError{Code: CodeValidation}
	ErrNotFound               = &DomainError{Code: CodeNotFound}
	ErrReferentialIntegrity   = &DomainError{Code: CodeReferentialIntegrity}
	ErrInvalidTransition      = &DomainError{Code: CodeInvalidTransition}
	ErrMissingRequiredFields  = &DomainError{Code: CodeMissingRequiredFields}
	ErrRejectionComment       = &DomainError{Code: CodeRejectionComment}
	ErrPaymentVarianceComment = &DomainError{Code: CodePaymentVarianceComment}
	ErrInvalidRole            = &DomainError{Code: CodeInvalidRole}
	ErrStepAlreadyDecided     = &DomainError{Code: CodeStepAlreadyDecided}
	ErrConcurrencyConflict    = &DomainError{Code: CodeConcurrencyConflict}
	ErrForbidden              = &DomainError{Code: CodeForbidden}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewFieldError reports a single invalid input field.
func NewFieldError(field, message string) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, map[string]any{"field": field})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewReferentialIntegrityError(resource, id string) error {
	return NewDomainError(CodeReferentialIntegrity,
		fmt.Sprintf("%s %s does not exist or is inactive", resource, id),
		http.StatusUnprocessableEntity,
		map[string]any{"resource": resource, "id": id})
}

// NewInvalidTransition enumerates the states reachable from `from`.
func NewInvalidTransition(from, to string, allowed []string) error {
	if allowed == nil {
		allowed = []string{}
	}
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot transition from %s to %s", from, to),
		http.StatusConflict,
		map[string]any{"from": from, "to": to, "allowed": allowed})
}

func NewMissingRequiredFields(fields []string) error {
	return NewDomainError(CodeMissingRequiredFields, "missing required fields", http.StatusBadRequest,
		map[string]any{"fields": fields})
}

func NewRejectionCommentRequired() error {
	return NewDomainError(CodeRejectionComment, "a comment is required when rejecting", http.StatusBadRequest, nil)
}

func NewPaymentVarianceCommentRequired(variance string) error {
	return NewDomainError(CodePaymentVarianceComment,
		"payment exceeds approved cost beyond threshold; a comment is required",
		http.StatusBadRequest,
		map[string]any{"variance": variance})
}

func NewInvalidRole(role string) error {
	return NewDomainError(CodeInvalidRole, fmt.Sprintf("unknown approver role %q", role), http.StatusBadRequest,
		map[string]any{"role": role})
}

func NewStepAlreadyDecided(stepID, status string) error {
	return NewDomainError(CodeStepAlreadyDecided, "approval step already decided", http.StatusConflict,
		map[string]any{"step_id": stepID, "status": status})
}

func NewConcurrencyConflict(resource, id string) error {
	return NewDomainError(CodeConcurrencyConflict,
		fmt.Sprintf("%s %s was modified concurrently; reload and retry", resource, id),
		http.StatusConflict,
		map[string]any{"resource": resource, "id": id})
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus == 0 {
			withStatus := *domainErr
			withStatus.HTTPStatus = http.StatusInternalServerError
			return &withStatus
		}
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError is ToDomainError for call sites returning a plain error.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
