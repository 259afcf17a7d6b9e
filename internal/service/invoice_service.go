package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/internal/repository"
	"github.com/campus-core/backoffice-api/pkg/clock"
	"github.com/campus-core/backoffice-api/pkg/config"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type invoiceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type invoiceTermReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

// CreateInvoiceRequest describes a manual invoice creation payload.
type CreateInvoiceRequest struct {
	StudentID    string           `json:"student_id" validate:"required"`
	TermID       *string          `json:"term_id,omitempty"`
	Description  string           `json:"description" validate:"required"`
	DueDate      time.Time        `json:"due_date" validate:"required"`
	Amount       decimal.Decimal  `json:"amount" validate:"required"`
	FineRate     *decimal.Decimal `json:"fine_rate,omitempty"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
}

// PatchInvoiceRequest carries partial updates for an invoice. A PAID invoice
// accepts description changes only; a CANCELED one accepts none.
type PatchInvoiceRequest struct {
	Description  *string          `json:"description,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	FineRate     *decimal.Decimal `json:"fine_rate,omitempty"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
}

// InvoiceService owns the invoice ledger: creation, edit and deletion
// guards, cancellation, and reconciliation of the stored status against
// settled payments. All money math lives in the pure ledger functions so
// the same figures are produced on every read.
type InvoiceService struct {
	db        *sqlx.DB
	invoices  *repository.InvoiceRepository
	payments  *repository.PaymentRepository
	students  invoiceStudentReader
	terms     invoiceTermReader
	audit     AuditSink
	finance   config.FinanceConfig
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInvoiceService constructs InvoiceService.
func NewInvoiceService(db *sqlx.DB, invoices *repository.InvoiceRepository, payments *repository.PaymentRepository, students invoiceStudentReader, terms invoiceTermReader, audit AuditSink, finance config.FinanceConfig, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *InvoiceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &InvoiceService{
		db:        db,
		invoices:  invoices,
		payments:  payments,
		students:  students,
		terms:     terms,
		audit:     audit,
		finance:   finance,
		clock:     clk,
		validator: validate,
		logger:    logger,
	}
}

// List returns invoices with their derived amount due and effective status.
// Student and term context is not joined at list granularity; use Get for
// the full detail.
func (s *InvoiceService) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, *models.Pagination, error) {
	invoices, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}
	today := s.clock.Today()
	details := make([]models.InvoiceDetail, 0, len(invoices))
	for i := range invoices {
		details = append(details, models.InvoiceDetail{
			Invoice:         invoices[i],
			AmountDue:       AmountDue(&invoices[i], today),
			EffectiveStatus: EffectiveStatus(&invoices[i], today),
		})
	}
	return details, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single invoice enriched with student, term and payment
// context.
func (s *InvoiceService) Get(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	invoice, err := s.findInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(ctx, invoice)
}

// Create issues a new PENDING invoice. The due date must not be in the past
// and the student must exist and not be deleted. Missing fine and interest
// rates fall back to the institutional defaults.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (*models.InvoiceDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}
	if clock.Midnight(req.DueDate).Before(s.clock.Today()) {
		return nil, appErrors.ErrInvalidDueDate
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status == models.StudentStatusDeleted {
		return nil, appErrors.ErrStudentDeleted
	}
	if req.TermID != nil {
		if _, err := s.terms.FindByID(ctx, *req.TermID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
	}

	fineRate := s.finance.DefaultFineRate
	if req.FineRate != nil {
		fineRate = *req.FineRate
	}
	interestRate := s.finance.DefaultInterestRate
	if req.InterestRate != nil {
		interestRate = *req.InterestRate
	}

	invoice := &models.Invoice{
		StudentID:    req.StudentID,
		TermID:       req.TermID,
		Description:  req.Description,
		DueDate:      clock.Midnight(req.DueDate),
		Amount:       req.Amount.Round(2),
		FineRate:     fineRate,
		InterestRate: interestRate,
		Status:       models.InvoiceStatusPending,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
	}
	return s.buildDetail(ctx, invoice)
}

// Patch applies a partial update honouring the edit guards: CANCELED
// invoices are immutable, PAID ones accept a description change only.
func (s *InvoiceService) Patch(ctx context.Context, id string, req PatchInvoiceRequest) (*models.InvoiceDetail, error) {
	invoice, err := s.findInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	if invoice.Status == models.InvoiceStatusCanceled {
		return nil, appErrors.ErrInvoiceCanceled
	}
	billingChange := req.DueDate != nil || req.Amount != nil || req.FineRate != nil || req.InterestRate != nil
	if invoice.Status == models.InvoiceStatusPaid && billingChange {
		return nil, appErrors.Clone(appErrors.ErrInvoicePaid, "paid invoice accepts description changes only")
	}

	if req.Description != nil {
		invoice.Description = *req.Description
	}
	if !billingChange {
		if req.Description != nil {
			if err := s.invoices.UpdateDescription(ctx, id, invoice.Description); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invoice")
			}
		}
		return s.buildDetail(ctx, invoice)
	}

	if req.DueDate != nil {
		if clock.Midnight(*req.DueDate).Before(s.clock.Today()) {
			return nil, appErrors.ErrInvalidDueDate
		}
		invoice.DueDate = clock.Midnight(*req.DueDate)
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
		}
		count, err := s.payments.CountByInvoice(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count payments")
		}
		if count > 0 {
			return nil, appErrors.Clone(appErrors.ErrInvoiceHasPayments, "amount cannot change once payments exist")
		}
		invoice.Amount = req.Amount.Round(2)
	}
	if req.FineRate != nil {
		invoice.FineRate = *req.FineRate
	}
	if req.InterestRate != nil {
		invoice.InterestRate = *req.InterestRate
	}

	if err := s.invoices.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invoice")
	}
	return s.buildDetail(ctx, invoice)
}

// Delete removes an invoice that has no payments. PAID invoices cannot be
// deleted even when their payments were later refunded.
func (s *InvoiceService) Delete(ctx context.Context, id string) error {
	invoice, err := s.findInvoice(ctx, id)
	if err != nil {
		return err
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return appErrors.Clone(appErrors.ErrInvoicePaid, "paid invoice cannot be deleted")
	}
	count, err := s.payments.CountByInvoice(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count payments")
	}
	if count > 0 {
		return appErrors.ErrInvoiceHasPayments
	}
	if err := s.invoices.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete invoice")
	}
	return nil
}

// Cancel voids an open invoice. Invoices with any linked payment must go
// through the refund flow instead. Canceling a CANCELED invoice is a no-op.
func (s *InvoiceService) Cancel(ctx context.Context, id string, actorID *string) (*models.InvoiceDetail, error) {
	invoice, err := s.findInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusCanceled {
		return s.buildDetail(ctx, invoice)
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrInvoicePaid, "paid invoice cannot be canceled")
	}
	count, err := s.payments.CountByInvoice(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count payments")
	}
	if count > 0 {
		return nil, appErrors.ErrInvoiceHasPayments
	}

	ok, err := s.invoices.UpdateStatusGuarded(ctx, id, []models.InvoiceStatus{models.InvoiceStatusPending, models.InvoiceStatusOverdue}, models.InvoiceStatusCanceled)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel invoice")
	}
	if !ok {
		// Lost a race with a concurrent settlement or cancellation.
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice status changed concurrently")
	}

	s.audit.Record(ctx, actorID, models.AuditActionInvoiceCancel, "invoice", &id, map[string]interface{}{
		"reference": invoice.Reference,
	})
	return s.Get(ctx, id)
}

// MarkPaid settles an invoice manually by recording a synthetic SETTLED
// payment for the unsettled principal and reconciling the stored status,
// all in one transaction. Fines and interest are never part of the
// settled sum.
func (s *InvoiceService) MarkPaid(ctx context.Context, id string, actorID *string) (*models.InvoiceDetail, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	invoices := s.invoices.WithTx(tx)
	payments := s.payments.WithTx(tx)

	invoice, err := invoices.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if invoice.Status == models.InvoiceStatusCanceled {
		return nil, appErrors.ErrInvoiceCanceled
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return s.Get(ctx, id)
	}

	settled, err := payments.SumSettledByInvoice(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}
	today := s.clock.Today()
	outstanding := invoice.Amount.Sub(settled)
	if outstanding.IsPositive() {
		now := s.clock.Now()
		method := "MANUAL"
		payment := &models.Payment{
			InvoiceID: id,
			Amount:    outstanding,
			Status:    models.PaymentStatusSettled,
			Method:    &method,
			PaidAt:    &now,
		}
		if err := payments.Create(ctx, payment); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
		}
	}
	if _, err := reconcileInvoice(ctx, invoices, payments, id, today); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}

	s.audit.Record(ctx, actorID, models.AuditActionInvoiceMarkPaid, "invoice", &id, map[string]interface{}{
		"reference": invoice.Reference,
		"amount":    outstanding.String(),
	})
	return s.Get(ctx, id)
}

func (s *InvoiceService) findInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	return invoice, nil
}

func (s *InvoiceService) buildDetail(ctx context.Context, invoice *models.Invoice) (*models.InvoiceDetail, error) {
	detail := &models.InvoiceDetail{
		Invoice:         *invoice,
		AmountDue:       AmountDue(invoice, s.clock.Today()),
		EffectiveStatus: EffectiveStatus(invoice, s.clock.Today()),
	}
	student, err := s.students.FindByID(ctx, invoice.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	detail.StudentName = student.FullName
	detail.StudentRA = student.RA
	if invoice.TermID != nil {
		term, err := s.terms.FindByID(ctx, *invoice.TermID)
		if err == nil {
			detail.TermCode = &term.Code
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
	}
	count, err := s.payments.CountByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count payments")
	}
	detail.PaymentsCount = count
	return detail, nil
}

// reconcileInvoice re-derives and stores the invoice status from the sum of
// its SETTLED payments. Both repositories must be bound to the same
// transaction as the payment mutation that triggered the reconciliation.
func reconcileInvoice(ctx context.Context, invoices *repository.InvoiceRepository, payments *repository.PaymentRepository, invoiceID string, today time.Time) (models.InvoiceStatus, error) {
	invoice, err := invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	settled, err := payments.SumSettledByInvoice(ctx, invoiceID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}
	next := ReconciledStatus(invoice, settled, today)
	if next != invoice.Status {
		if err := invoices.UpdateStatus(ctx, invoiceID, next); err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invoice status")
		}
	}
	return next, nil
}
