package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/campus-core/backoffice-api/internal/models"
)

// PaymentRepository handles persistence of payments. Like the invoice
// repository it can be rebound to a transaction with WithTx.
type PaymentRepository struct {
	q sqlx.ExtContext
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *PaymentRepository) WithTx(tx *sqlx.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, invoice_id, amount, status, method, provider_ref, paid_at, created_at, updated_at`

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := sqlx.GetContext(ctx, r.q, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// List returns payments filtered by the provided criteria.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := `FROM payments p`
	var conditions []string
	var args []interface{}

	if filter.InvoiceID != "" {
		conditions = append(conditions, fmt.Sprintf("p.invoice_id = $%d", len(args)+1))
		args = append(args, filter.InvoiceID)
	}
	if filter.StudentID != "" {
		base = `FROM payments p JOIN invoices i ON i.id = p.invoice_id`
		conditions = append(conditions, fmt.Sprintf("i.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	cols := make([]string, 0, 9)
	for _, c := range strings.Split(paymentColumns, ", ") {
		cols = append(cols, "p."+c)
	}
	query := fmt.Sprintf("SELECT %s %s ORDER BY p.created_at DESC LIMIT %d OFFSET %d",
		strings.Join(cols, ", "), base+clause, size, offset)

	var payments []models.Payment
	if err := sqlx.SelectContext(ctx, r.q, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, invoice_id, amount, status, method, provider_ref, paid_at, created_at, updated_at)
        VALUES (:id, :invoice_id, :amount, :status, :method, :provider_ref, :paid_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// UpdateStatus writes a new payment status, stamping paid_at on settlement.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, paidAt *time.Time) error {
	const query = `UPDATE payments SET status = $2, paid_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, id, status, paidAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// SumSettledByInvoice totals the SETTLED payment amounts for an invoice.
func (r *PaymentRepository) SumSettledByInvoice(ctx context.Context, invoiceID string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1 AND status = $2`
	var total decimal.Decimal
	if err := sqlx.GetContext(ctx, r.q, &total, query, invoiceID, models.PaymentStatusSettled); err != nil {
		return decimal.Zero, fmt.Errorf("sum settled payments: %w", err)
	}
	return total, nil
}

// CountByInvoice counts all payments (any status) linked to an invoice.
func (r *PaymentRepository) CountByInvoice(ctx context.Context, invoiceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM payments WHERE invoice_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.q, &count, query, invoiceID); err != nil {
		return 0, fmt.Errorf("count invoice payments: %w", err)
	}
	return count, nil
}
