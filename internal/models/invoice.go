package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the persisted state of an invoice. OVERDUE may
// also appear as an effective status derived at read time from a PENDING
// invoice past its due date.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "PENDING"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusOverdue  InvoiceStatus = "OVERDUE"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
)

// Valid returns true when the status is a supported value.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCanceled:
		return true
	default:
		return false
	}
}

// Invoice is a billing document issued to a student. Reference is unique and
// immutable once assigned. FineRate applies once; InterestRate accrues per
// started month of delay, simple, never compounded.
type Invoice struct {
	ID                string          `db:"id" json:"id"`
	Reference         string          `db:"reference" json:"reference"`
	StudentID         string          `db:"student_id" json:"student_id"`
	TermID            *string         `db:"term_id" json:"term_id,omitempty"`
	Description       string          `db:"description" json:"description"`
	DueDate           time.Time       `db:"due_date" json:"due_date"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	FineRate          decimal.Decimal `db:"fine_rate" json:"fine_rate"`
	InterestRate      decimal.Decimal `db:"interest_rate" json:"interest_rate"`
	InstallmentNumber *int            `db:"installment_number" json:"installment_number,omitempty"`
	InstallmentTotal  *int            `db:"installment_total" json:"installment_total,omitempty"`
	Status            InvoiceStatus   `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// InvoiceDetail enriches Invoice with derived financial fields and student
// context for API responses.
type InvoiceDetail struct {
	Invoice
	StudentName     string          `json:"student_name"`
	StudentRA       string          `json:"student_ra"`
	TermCode        *string         `json:"term_code,omitempty"`
	AmountDue       decimal.Decimal `json:"amount_due"`
	EffectiveStatus InvoiceStatus   `json:"effective_status"`
	PaymentsCount   int             `json:"payments_count"`
}

// InvoiceFilter provides filters for listing invoices.
type InvoiceFilter struct {
	StudentID string
	TermID    string
	Status    InvoiceStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentDebtSummary aggregates a student's open invoices for negotiation.
type StudentDebtSummary struct {
	StudentID                string          `json:"student_id"`
	StudentName              string          `json:"student_name"`
	StudentRA                string          `json:"student_ra"`
	PendingInvoices          []InvoiceDetail `json:"pending_invoices"`
	TotalPendingAmount       decimal.Decimal `json:"total_pending_amount"`
	TotalPendingWithFees     decimal.Decimal `json:"total_pending_with_fees"`
	CountPending             int             `json:"count_pending"`
	HasCurrentTermEnrollment bool            `json:"has_current_term_enrollment"`
}

// NegotiationInstallment is one planned installment of a negotiation.
type NegotiationInstallment struct {
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
}

// NegotiationPlan is the previewed shape of a renegotiation: the new
// installment schedule plus the stale invoices it would cancel.
type NegotiationPlan struct {
	StudentID         string                   `json:"student_id"`
	TotalAmount       decimal.Decimal          `json:"total_amount"`
	InstallmentAmount decimal.Decimal          `json:"installment_amount"`
	NumInstallments   int                      `json:"num_installments"`
	Installments      []NegotiationInstallment `json:"installments"`
	PendingToCancel   []string                 `json:"pending_to_cancel"`
}

// NegotiationResult reports what an executed plan created and canceled.
type NegotiationResult struct {
	StudentID       string          `json:"student_id"`
	CreatedInvoices []InvoiceDetail `json:"created_invoices"`
	CanceledIDs     []string        `json:"canceled_invoices"`
	TotalCreated    int             `json:"total_created"`
	TotalCanceled   int             `json:"total_canceled"`
}
