package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

type negotiationTermReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
	FindCurrent(ctx context.Context) (*models.Term, error)
}

type enrollmentTermChecker interface {
	ExistsEnrolledInTerm(ctx context.Context, studentID, termID string) (bool, error)
}

// NegotiationRequest parameterises a debt renegotiation plan: the agreed
// total, how many monthly installments and when the first one falls due. The
// total is negotiated with the student and may differ from the sum of the
// open invoices (a discount, or fees folded in).
type NegotiationRequest struct {
	StudentID       string          `json:"student_id" validate:"required"`
	TotalAmount     decimal.Decimal `json:"total_amount" validate:"required"`
	NumInstallments int             `json:"num_installments" validate:"required,min=1,max=48"`
	FirstDueDate    time.Time       `json:"first_due_date" validate:"required"`
}

// NegotiationExecuteRequest is the plan plus the explicit list of open
// invoices the caller agreed to cancel in exchange for the new series.
type NegotiationExecuteRequest struct {
	NegotiationRequest
	CancelPendingIDs []string `json:"cancel_pending_ids" validate:"required,min=1,dive,required"`
}

// GenerateTermInvoicesRequest parameterises batch creation of term tuition
// installments. TermID empty means the current term.
type GenerateTermInvoicesRequest struct {
	StudentID       string          `json:"student_id" validate:"required"`
	TermID          string          `json:"term_id,omitempty"`
	MonthlyAmount   decimal.Decimal `json:"monthly_amount" validate:"required"`
	NumInstallments int             `json:"num_installments" validate:"required,min=1,max=12"`
	FirstDueDate    time.Time       `json:"first_due_date" validate:"required"`
}

// NegotiationService plans and executes debt renegotiations: it consolidates
// a student's open zero-payment invoices into a fresh monthly installment
// series, canceling the originals in the same transaction. It also owns the
// debt summary and term-invoice generation.
type NegotiationService struct {
	db          *sqlx.DB
	invoices    *repository.InvoiceRepository
	payments    *repository.PaymentRepository
	students    invoiceStudentReader
	terms       negotiationTermReader
	enrollments enrollmentTermChecker
	audit       AuditSink
	finance     config.FinanceConfig
	clock       clock.Clock
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewNegotiationService constructs NegotiationService.
func NewNegotiationService(db *sqlx.DB, invoices *repository.InvoiceRepository, payments *repository.PaymentRepository, students invoiceStudentReader, terms negotiationTermReader, enrollments enrollmentTermChecker, audit AuditSink, finance config.FinanceConfig, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *NegotiationService {
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
	return &NegotiationService{
		db:          db,
		invoices:    invoices,
		payments:    payments,
		students:    students,
		terms:       terms,
		enrollments: enrollments,
		audit:       audit,
		finance:     finance,
		clock:       clk,
		validator:   validate,
		logger:      logger,
	}
}

// DebtSummary aggregates a student's open invoices with and without late
// fees, plus whether the student holds a current-term enrollment.
func (s *NegotiationService) DebtSummary(ctx context.Context, studentID string) (*models.StudentDebtSummary, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	open, err := s.invoices.ListOpenByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open invoices")
	}

	today := s.clock.Today()
	summary := &models.StudentDebtSummary{
		StudentID:            studentID,
		StudentName:          student.FullName,
		StudentRA:            student.RA,
		PendingInvoices:      make([]models.InvoiceDetail, 0, len(open)),
		TotalPendingAmount:   decimal.Zero,
		TotalPendingWithFees: decimal.Zero,
	}
	for i := range open {
		due := AmountDue(&open[i], today)
		summary.PendingInvoices = append(summary.PendingInvoices, models.InvoiceDetail{
			Invoice:         open[i],
			StudentName:     student.FullName,
			StudentRA:       student.RA,
			AmountDue:       due,
			EffectiveStatus: EffectiveStatus(&open[i], today),
		})
		summary.TotalPendingAmount = summary.TotalPendingAmount.Add(open[i].Amount)
		summary.TotalPendingWithFees = summary.TotalPendingWithFees.Add(due)
	}
	summary.CountPending = len(open)

	current, err := s.terms.FindCurrent(ctx)
	switch {
	case err == nil:
		enrolled, err := s.enrollments.ExistsEnrolledInTerm(ctx, studentID, current.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		summary.HasCurrentTermEnrollment = enrolled
	case errors.Is(err, sql.ErrNoRows):
		// No current term set; the flag stays false.
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
	}
	return summary, nil
}

// Preview computes the installment plan a renegotiation would create without
// touching any invoice. The series splits the caller's agreed total; the
// response also lists which open invoices are eligible for cancellation.
// Only zero-payment invoices are: ones with payment history must go through
// refunds first.
func (s *NegotiationService) Preview(ctx context.Context, req NegotiationRequest) (*models.NegotiationPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid negotiation payload")
	}
	if !req.TotalAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total amount must be positive")
	}
	if clock.Midnight(req.FirstDueDate).Before(s.clock.Today()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidDueDate, "first due date must not be in the past")
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Status == models.StudentStatusDeleted {
		return nil, appErrors.ErrStudentDeleted
	}

	candidates, err := s.negotiableInvoices(ctx, s.invoices, s.payments, req.StudentID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no negotiable open invoices")
	}

	total := req.TotalAmount.Round(2)
	installments := BuildInstallments(total, req.NumInstallments, clock.Midnight(req.FirstDueDate))
	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
	}
	return &models.NegotiationPlan{
		StudentID:         req.StudentID,
		TotalAmount:       total,
		InstallmentAmount: installments[0].Amount,
		NumInstallments:   req.NumInstallments,
		Installments:      installments,
		PendingToCancel:   ids,
	}, nil
}

// Execute runs a renegotiation in one transaction: re-validates the student
// and the plan dates, cancels exactly the invoices the caller listed and
// creates the installment series. Every listed invoice must belong to the
// student, hold no payments and still be PENDING or OVERDUE; any violation
// or concurrent status change aborts the whole batch.
func (s *NegotiationService) Execute(ctx context.Context, req NegotiationExecuteRequest, actorID *string) (*models.NegotiationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid negotiation payload")
	}
	if !req.TotalAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total amount must be positive")
	}

	today := s.clock.Today()
	firstDue := clock.Midnight(req.FirstDueDate)
	if firstDue.Before(today) {
		return nil, appErrors.WithDetails(appErrors.ErrStalePlan, map[string]interface{}{
			"first_due_date": firstDue.Format("2006-01-02"),
			"today":          today.Format("2006-01-02"),
		})
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Status == models.StudentStatusDeleted {
		return nil, appErrors.ErrStudentDeleted
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	invoices := s.invoices.WithTx(tx)
	payments := s.payments.WithTx(tx)

	total := req.TotalAmount.Round(2)
	installments := BuildInstallments(total, req.NumInstallments, firstDue)
	for _, inst := range installments {
		if clock.Midnight(inst.DueDate).Before(today) {
			return nil, appErrors.WithDetails(appErrors.ErrStalePlan, map[string]interface{}{
				"installment": inst.InstallmentNumber,
				"due_date":    inst.DueDate.Format("2006-01-02"),
			})
		}
	}

	canceled := make([]string, 0, len(req.CancelPendingIDs))
	seen := make(map[string]bool, len(req.CancelPendingIDs))
	for _, id := range req.CancelPendingIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		invoice, err := invoices.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.WithDetails(appErrors.ErrNotFound, map[string]interface{}{
					"invoice_id": id,
					"reason":     "invoice not found",
				})
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
		}
		if invoice.StudentID != req.StudentID {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, map[string]interface{}{
				"invoice_id": id,
				"reason":     "invoice belongs to another student",
			})
		}
		count, err := payments.CountByInvoice(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count payments")
		}
		if count > 0 {
			return nil, appErrors.WithDetails(appErrors.ErrInvoiceHasPayments, map[string]interface{}{
				"invoice_id": id,
			})
		}
		ok, err := invoices.UpdateStatusGuarded(ctx, id, []models.InvoiceStatus{models.InvoiceStatusPending, models.InvoiceStatusOverdue}, models.InvoiceStatusCanceled)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel invoice")
		}
		if !ok {
			return nil, appErrors.WithDetails(appErrors.ErrConflict, map[string]interface{}{
				"invoice_id": id,
				"reason":     "status changed concurrently",
			})
		}
		canceled = append(canceled, id)
	}

	n := len(installments)
	created := make([]models.InvoiceDetail, 0, n)
	for _, inst := range installments {
		number := inst.InstallmentNumber
		totalCount := n
		invoice := &models.Invoice{
			StudentID:         req.StudentID,
			Description:       inst.Description,
			DueDate:           inst.DueDate,
			Amount:            inst.Amount,
			FineRate:          s.finance.DefaultFineRate,
			InterestRate:      s.finance.DefaultInterestRate,
			InstallmentNumber: &number,
			InstallmentTotal:  &totalCount,
			Status:            models.InvoiceStatusPending,
		}
		if err := invoices.Create(ctx, invoice); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create installment invoice")
		}
		created = append(created, models.InvoiceDetail{
			Invoice:         *invoice,
			StudentName:     student.FullName,
			StudentRA:       student.RA,
			AmountDue:       invoice.Amount,
			EffectiveStatus: invoice.Status,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}

	s.audit.Record(ctx, actorID, models.AuditActionNegotiationExec, "student", &req.StudentID, map[string]interface{}{
		"total_amount":     total.String(),
		"num_installments": n,
		"canceled":         canceled,
	})
	s.logger.Info("negotiation executed",
		zap.String("student_id", req.StudentID),
		zap.Int("canceled", len(canceled)),
		zap.Int("created", n))

	return &models.NegotiationResult{
		StudentID:       req.StudentID,
		CreatedInvoices: created,
		CanceledIDs:     canceled,
		TotalCreated:    n,
		TotalCanceled:   len(canceled),
	}, nil
}

// GenerateTermInvoices batch-creates the monthly tuition installments of a
// term. Rejected when the student already holds open invoices for that term.
func (s *NegotiationService) GenerateTermInvoices(ctx context.Context, req GenerateTermInvoicesRequest, actorID *string) ([]models.InvoiceDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	if !req.MonthlyAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "monthly amount must be positive")
	}
	firstDue := clock.Midnight(req.FirstDueDate)
	if firstDue.Before(s.clock.Today()) {
		return nil, appErrors.ErrInvalidDueDate
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Status == models.StudentStatusDeleted {
		return nil, appErrors.ErrStudentDeleted
	}

	var term *models.Term
	if req.TermID != "" {
		term, err = s.terms.FindByID(ctx, req.TermID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
	} else {
		term, err = s.terms.FindCurrent(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNoCurrentTerm
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
		}
	}

	openCount, err := s.invoices.CountOpenByStudentAndTerm(ctx, req.StudentID, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count open invoices")
	}
	if openCount > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has open invoices for this term")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	invoices := s.invoices.WithTx(tx)
	created := make([]models.InvoiceDetail, 0, req.NumInstallments)
	for i := 0; i < req.NumInstallments; i++ {
		number := i + 1
		totalCount := req.NumInstallments
		termID := term.ID
		invoice := &models.Invoice{
			StudentID:         req.StudentID,
			TermID:            &termID,
			Description:       fmt.Sprintf("Tuition %s %d/%d", term.Code, number, totalCount),
			DueDate:           addMonthsClamped(firstDue, i),
			Amount:            req.MonthlyAmount.Round(2),
			FineRate:          s.finance.DefaultFineRate,
			InterestRate:      s.finance.DefaultInterestRate,
			InstallmentNumber: &number,
			InstallmentTotal:  &totalCount,
			Status:            models.InvoiceStatusPending,
		}
		if err := invoices.Create(ctx, invoice); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tuition invoice")
		}
		created = append(created, models.InvoiceDetail{
			Invoice:         *invoice,
			StudentName:     student.FullName,
			StudentRA:       student.RA,
			TermCode:        &term.Code,
			AmountDue:       invoice.Amount,
			EffectiveStatus: invoice.Status,
		})
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return created, nil
}

func (s *NegotiationService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// negotiableInvoices returns the student's PENDING/OVERDUE invoices with no
// payment history.
func (s *NegotiationService) negotiableInvoices(ctx context.Context, invoices *repository.InvoiceRepository, payments *repository.PaymentRepository, studentID string) ([]models.Invoice, error) {
	open, err := invoices.ListOpenByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open invoices")
	}
	out := make([]models.Invoice, 0, len(open))
	for i := range open {
		count, err := payments.CountByInvoice(ctx, open[i].ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count payments")
		}
		if count > 0 {
			continue
		}
		out = append(out, open[i])
	}
	return out, nil
}
