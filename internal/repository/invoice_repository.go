package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campus-core/backoffice-api/internal/models"
)

// InvoiceRepository handles persistence of invoices. It runs against the
// pool by default; WithTx rebinds it to a transaction so negotiation
// execution and payment reconciliation commit atomically.
type InvoiceRepository struct {
	q sqlx.ExtContext
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{q: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *InvoiceRepository) WithTx(tx *sqlx.Tx) *InvoiceRepository {
	return &InvoiceRepository{q: tx}
}

const invoiceColumns = `id, reference, student_id, term_id, description, due_date, amount, fine_rate, interest_rate, installment_number, installment_total, status, created_at, updated_at`

// FindByID returns an invoice by its ID.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := fmt.Sprintf("SELECT %s FROM invoices WHERE id = $1", invoiceColumns)
	var invoice models.Invoice
	if err := sqlx.GetContext(ctx, r.q, &invoice, query, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// List returns invoices filtered by the provided criteria. Status filtering
// happens on the stored status; effective OVERDUE is derived by the service.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	base := `FROM invoices`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"due_date":   "due_date",
		"amount":     "amount",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "due_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		invoiceColumns, base+clause, orderBy, order, size, offset)

	var invoices []models.Invoice
	if err := sqlx.SelectContext(ctx, r.q, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// ListOpenByStudent returns the student's PENDING and OVERDUE invoices
// ordered by due date.
func (r *InvoiceRepository) ListOpenByStudent(ctx context.Context, studentID string) ([]models.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE student_id = $1 AND status = ANY($2) ORDER BY due_date ASC`, invoiceColumns)
	open := []string{string(models.InvoiceStatusPending), string(models.InvoiceStatusOverdue)}
	var invoices []models.Invoice
	if err := sqlx.SelectContext(ctx, r.q, &invoices, query, studentID, pq.Array(open)); err != nil {
		return nil, fmt.Errorf("list open invoices: %w", err)
	}
	return invoices, nil
}

// CountOpenByStudentAndTerm counts the student's PENDING/OVERDUE invoices
// within a term.
func (r *InvoiceRepository) CountOpenByStudentAndTerm(ctx context.Context, studentID, termID string) (int, error) {
	const query = `SELECT COUNT(*) FROM invoices WHERE student_id = $1 AND term_id = $2 AND status = ANY($3)`
	open := []string{string(models.InvoiceStatusPending), string(models.InvoiceStatusOverdue)}
	var count int
	if err := sqlx.GetContext(ctx, r.q, &count, query, studentID, termID, pq.Array(open)); err != nil {
		return 0, fmt.Errorf("count open invoices: %w", err)
	}
	return count, nil
}

// Create persists a new invoice, assigning id and reference when absent.
// The reference is unique and immutable once assigned.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.Reference == "" {
		invoice.Reference = newInvoiceReference()
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusPending
	}
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	const query = `INSERT INTO invoices (id, reference, student_id, term_id, description, due_date, amount, fine_rate, interest_rate, installment_number, installment_total, status, created_at, updated_at)
        VALUES (:id, :reference, :student_id, :term_id, :description, :due_date, :amount, :fine_rate, :interest_rate, :installment_number, :installment_total, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// UpdateDescription patches the description only; it is the one field
// editable on a PAID invoice.
func (r *InvoiceRepository) UpdateDescription(ctx context.Context, id, description string) error {
	const query = `UPDATE invoices SET description = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, id, description, time.Now().UTC()); err != nil {
		return fmt.Errorf("update invoice description: %w", err)
	}
	return nil
}

// Update patches the mutable billing fields of an open invoice.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	const query = `UPDATE invoices SET description = $2, due_date = $3, amount = $4, fine_rate = $5, interest_rate = $6, updated_at = $7 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, invoice.ID, invoice.Description, invoice.DueDate, invoice.Amount, invoice.FineRate, invoice.InterestRate, time.Now().UTC()); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

// UpdateStatus writes a new stored status.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	const query = `UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	return nil
}

// UpdateStatusGuarded writes a new status only when the invoice currently
// holds one of the allowed statuses. Returns false when the guard failed.
func (r *InvoiceRepository) UpdateStatusGuarded(ctx context.Context, id string, allowedFrom []models.InvoiceStatus, to models.InvoiceStatus) (bool, error) {
	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}
	const query = `UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`
	res, err := r.q.ExecContext(ctx, query, id, to, time.Now().UTC(), pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("update invoice status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update invoice status: %w", err)
	}
	return rows > 0, nil
}

// Delete removes an invoice. Callers must first verify no payments exist.
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM invoices WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return nil
}

func newInvoiceReference() string {
	return "INV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
