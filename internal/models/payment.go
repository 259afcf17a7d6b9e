package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the settlement state of a payment.
type PaymentStatus string

const (
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusSettled    PaymentStatus = "SETTLED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// Valid returns true when the status is a supported value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusAuthorized, PaymentStatusSettled, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// Payment applies money to an invoice. Several payments may settle one
// invoice partially; the sum of SETTLED amounts never exceeds the invoice
// amount (enforced at creation and settlement, not retroactively).
type Payment struct {
	ID          string          `db:"id" json:"id"`
	InvoiceID   string          `db:"invoice_id" json:"invoice_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      PaymentStatus   `db:"status" json:"status"`
	Method      *string         `db:"method" json:"method,omitempty"`
	ProviderRef *string         `db:"provider_ref" json:"provider_ref,omitempty"`
	PaidAt      *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentFilter provides filters for listing payments.
type PaymentFilter struct {
	InvoiceID string
	StudentID string
	Status    PaymentStatus
	Page      int
	PageSize  int
}
