package models

import "time"

// Audit actions recorded by the engine's workflows.
const (
	AuditActionStudentLock       = "STUDENT_LOCK"
	AuditActionStudentGraduate   = "STUDENT_GRADUATE"
	AuditActionStudentReactivate = "STUDENT_REACTIVATE"
	AuditActionStudentDelete     = "STUDENT_DELETE"
	AuditActionEnrollmentCreate  = "ENROLLMENT_CREATE"
	AuditActionEnrollmentDelete  = "ENROLLMENT_DELETE"
	AuditActionInvoiceCancel     = "INVOICE_CANCEL"
	AuditActionInvoiceMarkPaid   = "INVOICE_MARK_PAID"
	AuditActionPaymentSettle     = "PAYMENT_SETTLE"
	AuditActionPaymentRefund     = "PAYMENT_REFUND"
	AuditActionNegotiationExec   = "NEGOTIATION_EXECUTE"
	AuditActionTermSetCurrent    = "TERM_SET_CURRENT"
)

// AuditLog represents an audit trail record. Writing it is best-effort and
// never rolls back the underlying business transaction.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   *string   `db:"entity_id" json:"entity_id,omitempty"`
	Data       []byte    `db:"data" json:"data,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
