package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/internal/repository"
	"github.com/campus-core/backoffice-api/pkg/clock"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

// CreatePaymentRequest describes a payment registration payload. Settle
// marks the payment as SETTLED immediately instead of AUTHORIZED.
type CreatePaymentRequest struct {
	InvoiceID   string          `json:"invoice_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Method      *string         `json:"method,omitempty"`
	ProviderRef *string         `json:"provider_ref,omitempty"`
	Settle      bool            `json:"settle,omitempty"`
}

// PaymentService registers payments against invoices and keeps the invoice
// status reconciled with the sum of settled amounts. Every write that
// changes a SETTLED sum runs in one transaction with the reconciliation.
type PaymentService struct {
	db        *sqlx.DB
	payments  *repository.PaymentRepository
	invoices  *repository.InvoiceRepository
	audit     AuditSink
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(db *sqlx.DB, payments *repository.PaymentRepository, invoices *repository.InvoiceRepository, audit AuditSink, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *PaymentService {
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
	return &PaymentService{db: db, payments: payments, invoices: invoices, audit: audit, clock: clk, validator: validate, logger: logger}
}

// List returns payments with pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single payment.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// Create registers a payment against an open invoice. The invoice must not
// be CANCELED, and a settling payment must not push the settled sum past
// the invoice amount.
func (s *PaymentService) Create(ctx context.Context, req CreatePaymentRequest, actorID *string) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	invoices := s.invoices.WithTx(tx)
	payments := s.payments.WithTx(tx)

	invoice, err := invoices.FindByID(ctx, req.InvoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if invoice.Status == models.InvoiceStatusCanceled {
		return nil, appErrors.Clone(appErrors.ErrInvoiceCanceled, "canceled invoice does not accept payments")
	}

	status := models.PaymentStatusAuthorized
	payment := &models.Payment{
		InvoiceID:   req.InvoiceID,
		Amount:      req.Amount.Round(2),
		Status:      status,
		Method:      req.Method,
		ProviderRef: req.ProviderRef,
	}
	if req.Settle {
		if err := s.checkSettlementRoom(ctx, payments, invoice, payment.Amount); err != nil {
			return nil, err
		}
		now := s.clock.Now()
		payment.Status = models.PaymentStatusSettled
		payment.PaidAt = &now
	}
	if err := payments.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}
	if payment.Status == models.PaymentStatusSettled {
		if _, err := reconcileInvoice(ctx, invoices, payments, invoice.ID, s.clock.Today()); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	if payment.Status == models.PaymentStatusSettled {
		s.audit.Record(ctx, actorID, models.AuditActionPaymentSettle, "payment", &payment.ID, map[string]interface{}{
			"invoice_id": invoice.ID,
			"amount":     payment.Amount.String(),
		})
	}
	return payment, nil
}

// Settle moves an AUTHORIZED payment to SETTLED and reconciles the invoice,
// marking it PAID when the settled sum covers the amount.
func (s *PaymentService) Settle(ctx context.Context, id string, actorID *string) (*models.Payment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	invoices := s.invoices.WithTx(tx)
	payments := s.payments.WithTx(tx)

	payment, err := s.findForUpdate(ctx, payments, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusAuthorized {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
			"from": payment.Status,
			"to":   models.PaymentStatusSettled,
		})
	}
	invoice, err := invoices.FindByID(ctx, payment.InvoiceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if err := s.checkSettlementRoom(ctx, payments, invoice, payment.Amount); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := payments.UpdateStatus(ctx, id, models.PaymentStatusSettled, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle payment")
	}
	if _, err := reconcileInvoice(ctx, invoices, payments, payment.InvoiceID, s.clock.Today()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}

	s.audit.Record(ctx, actorID, models.AuditActionPaymentSettle, "payment", &id, map[string]interface{}{
		"invoice_id": payment.InvoiceID,
		"amount":     payment.Amount.String(),
	})
	return s.Get(ctx, id)
}

// Refund reverses a SETTLED payment. Reconciliation may revert a PAID
// invoice back to PENDING or OVERDUE; a refund is the only path off PAID.
func (s *PaymentService) Refund(ctx context.Context, id string, actorID *string) (*models.Payment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	invoices := s.invoices.WithTx(tx)
	payments := s.payments.WithTx(tx)

	payment, err := s.findForUpdate(ctx, payments, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSettled {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
			"from": payment.Status,
			"to":   models.PaymentStatusRefunded,
		})
	}
	if err := payments.UpdateStatus(ctx, id, models.PaymentStatusRefunded, payment.PaidAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refund payment")
	}
	if _, err := reconcileInvoice(ctx, invoices, payments, payment.InvoiceID, s.clock.Today()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}

	s.audit.Record(ctx, actorID, models.AuditActionPaymentRefund, "payment", &id, map[string]interface{}{
		"invoice_id": payment.InvoiceID,
		"amount":     payment.Amount.String(),
	})
	return s.Get(ctx, id)
}

// Fail marks an AUTHORIZED payment as FAILED. Settled sums are unaffected,
// so no reconciliation runs.
func (s *PaymentService) Fail(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusAuthorized {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
			"from": payment.Status,
			"to":   models.PaymentStatusFailed,
		})
	}
	if err := s.payments.UpdateStatus(ctx, id, models.PaymentStatusFailed, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	return s.Get(ctx, id)
}

func (s *PaymentService) findForUpdate(ctx context.Context, payments *repository.PaymentRepository, id string) (*models.Payment, error) {
	payment, err := payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// checkSettlementRoom rejects a settlement that would push the settled sum
// past the invoice principal. Fines and interest never widen the cap.
func (s *PaymentService) checkSettlementRoom(ctx context.Context, payments *repository.PaymentRepository, invoice *models.Invoice, amount decimal.Decimal) error {
	settled, err := payments.SumSettledByInvoice(ctx, invoice.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}
	if settled.Add(amount).GreaterThan(invoice.Amount) {
		return appErrors.WithDetails(appErrors.ErrOverSettlement, map[string]interface{}{
			"amount":    invoice.Amount.String(),
			"settled":   settled.String(),
			"attempted": amount.String(),
		})
	}
	return nil
}
