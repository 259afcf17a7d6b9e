package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Business-rule rejections surfaced by the academic/financial engine.
	ErrScheduleConflict   = New("SCHEDULE_CONFLICT", http.StatusBadRequest, "schedule conflict: student already has a class on the same weekday")
	ErrInvalidTransition  = New("INVALID_TRANSITION", http.StatusBadRequest, "invalid status transition")
	ErrStudentDeleted     = New("STUDENT_DELETED", http.StatusBadRequest, "student is deleted")
	ErrInvoiceHasPayments = New("INVOICE_HAS_PAYMENTS", http.StatusConflict, "invoice has linked payments")
	ErrInvoiceCanceled    = New("INVOICE_CANCELED", http.StatusBadRequest, "canceled invoice cannot be modified")
	ErrInvoicePaid        = New("INVOICE_PAID", http.StatusBadRequest, "paid invoice cannot be modified")
	ErrInvalidDueDate     = New("INVALID_DUE_DATE", http.StatusBadRequest, "due date must not be in the past")
	ErrStalePlan          = New("STALE_PLAN", http.StatusBadRequest, "negotiation plan contains stale due dates")
	ErrOverSettlement     = New("OVER_SETTLEMENT", http.StatusBadRequest, "settled payments would exceed invoice amount")
	ErrNoCurrentTerm      = New("NO_CURRENT_TERM", http.StatusBadRequest, "no current term is set")
	ErrHasDependencies    = New("HAS_DEPENDENCIES", http.StatusConflict, "record has dependent entries")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured detail, e.g.
// the conflicting weekday set of a schedule rejection.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
