package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/internal/repository"
	"github.com/campus-core/backoffice-api/pkg/clock"
	"github.com/campus-core/backoffice-api/pkg/config"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type stubStudentReader struct {
	students map[string]models.Student
}

func (s *stubStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s.students[id]; ok {
		return &st, nil
	}
	return nil, sql.ErrNoRows
}

type stubTermReader struct {
	current *models.Term
}

func (s *stubTermReader) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if s.current != nil && s.current.ID == id {
		return s.current, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubTermReader) FindCurrent(ctx context.Context) (*models.Term, error) {
	if s.current == nil {
		return nil, sql.ErrNoRows
	}
	return s.current, nil
}

type stubEnrollmentChecker struct {
	enrolled bool
}

func (s *stubEnrollmentChecker) ExistsEnrolledInTerm(ctx context.Context, studentID, termID string) (bool, error) {
	return s.enrolled, nil
}

func newNegotiationFixture(t *testing.T, today time.Time) (*NegotiationService, sqlmock.Sqlmock, func()) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")

	students := &stubStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", RA: "2026001", FullName: "Ana Souza", Status: models.StudentStatusActive},
		"stu-d": {ID: "stu-d", RA: "2026002", FullName: "Gone Student", Status: models.StudentStatusDeleted},
	}}
	terms := &stubTermReader{current: &models.Term{ID: "term-1", Code: "2026.1", IsCurrent: true}}

	svc := NewNegotiationService(db,
		repository.NewInvoiceRepository(db),
		repository.NewPaymentRepository(db),
		students, terms, &stubEnrollmentChecker{enrolled: true},
		NopAuditSink{},
		config.FinanceConfig{
			DefaultFineRate:     decimal.RequireFromString("2.00"),
			DefaultInterestRate: decimal.RequireFromString("1.00"),
		},
		clock.Fixed(today), nil, nil)
	return svc, mock, func() { raw.Close() }
}

func expectOpenInvoices(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE student_id = \\$1 AND status = ANY\\(\\$2\\) ORDER BY due_date ASC").
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnRows(rows)
}

func openInvoiceRows(due time.Time, ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "reference", "student_id", "term_id", "description", "due_date", "amount", "fine_rate", "interest_rate", "installment_number", "installment_total", "status", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, "INV-"+id, "stu-1", nil, "Tuition", due, "450.00", "2.00", "1.00", nil, nil, models.InvoiceStatusPending, due, due)
	}
	return rows
}

func expectPaymentCount(mock sqlmock.Sqlmock, invoiceID string, count int) {
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments WHERE invoice_id = \\$1").
		WithArgs(invoiceID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestNegotiationPreview(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	// Two open invoices due 2026-02-10, each 33 days late: 468.00 apiece.
	expectOpenInvoices(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1", "inv-2"))
	expectPaymentCount(mock, "inv-1", 0)
	expectPaymentCount(mock, "inv-2", 0)

	plan, err := svc.Preview(context.Background(), NegotiationRequest{
		StudentID:       "stu-1",
		TotalAmount:     decimal.RequireFromString("936.00"),
		NumInstallments: 3,
		FirstDueDate:    date(2026, time.April, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, "936.00", plan.TotalAmount.StringFixed(2))
	assert.Equal(t, "312.00", plan.InstallmentAmount.StringFixed(2))
	assert.Len(t, plan.Installments, 3)
	assert.Equal(t, []string{"inv-1", "inv-2"}, plan.PendingToCancel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationPreviewHonorsAgreedTotal(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	// The agreed total carries a discount below the invoice sum; the plan
	// splits what the caller sent, not what the ledger adds up to.
	expectOpenInvoices(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1", "inv-2"))
	expectPaymentCount(mock, "inv-1", 0)
	expectPaymentCount(mock, "inv-2", 0)

	plan, err := svc.Preview(context.Background(), NegotiationRequest{
		StudentID:       "stu-1",
		TotalAmount:     decimal.RequireFromString("600.00"),
		NumInstallments: 3,
		FirstDueDate:    date(2026, time.April, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, "600.00", plan.TotalAmount.StringFixed(2))
	assert.Equal(t, "200.00", plan.InstallmentAmount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationPreviewSkipsInvoicesWithPayments(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	expectOpenInvoices(mock, openInvoiceRows(date(2026, time.April, 1), "inv-1", "inv-2"))
	expectPaymentCount(mock, "inv-1", 1)
	expectPaymentCount(mock, "inv-2", 0)

	plan, err := svc.Preview(context.Background(), NegotiationRequest{
		StudentID:       "stu-1",
		TotalAmount:     decimal.RequireFromString("450.00"),
		NumInstallments: 2,
		FirstDueDate:    date(2026, time.April, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-2"}, plan.PendingToCancel)
	assert.Equal(t, "450.00", plan.TotalAmount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationPreviewPastFirstDueDate(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, _, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	_, err := svc.Preview(context.Background(), NegotiationRequest{
		StudentID:       "stu-1",
		TotalAmount:     decimal.RequireFromString("900.00"),
		NumInstallments: 3,
		FirstDueDate:    date(2026, time.March, 14),
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidDueDate.Code, appErr.Code)
}

func TestNegotiationPreviewDeletedStudent(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, _, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	_, err := svc.Preview(context.Background(), NegotiationRequest{
		StudentID:       "stu-d",
		TotalAmount:     decimal.RequireFromString("900.00"),
		NumInstallments: 3,
		FirstDueDate:    date(2026, time.April, 15),
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrStudentDeleted.Code, appErr.Code)
}

func TestNegotiationPreviewNothingToNegotiate(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	expectOpenInvoices(mock, openInvoiceRows(date(2026, time.April, 1)))

	_, err := svc.Preview(context.Background(), NegotiationRequest{
		StudentID:       "stu-1",
		TotalAmount:     decimal.RequireFromString("900.00"),
		NumInstallments: 3,
		FirstDueDate:    date(2026, time.April, 15),
	})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestNegotiationExecuteRejectsStalePlan(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, _, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	_, err := svc.Execute(context.Background(), NegotiationExecuteRequest{
		NegotiationRequest: NegotiationRequest{
			StudentID:       "stu-1",
			TotalAmount:     decimal.RequireFromString("900.00"),
			NumInstallments: 3,
			FirstDueDate:    date(2026, time.March, 1),
		},
		CancelPendingIDs: []string{"inv-1"},
	}, nil)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrStalePlan.Code, appErr.Code)
}

func TestNegotiationExecuteCancelsOnlyListedInvoices(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	// The caller settles on canceling inv-1 alone; other open invoices of
	// the student are left untouched.
	mock.ExpectBegin()
	expectInvoiceByID(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1"))
	expectPaymentCount(mock, "inv-1", 0)
	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs("inv-1", models.InvoiceStatusCanceled, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Execute(context.Background(), NegotiationExecuteRequest{
		NegotiationRequest: NegotiationRequest{
			StudentID:       "stu-1",
			TotalAmount:     decimal.RequireFromString("600.00"),
			NumInstallments: 2,
			FirstDueDate:    date(2026, time.April, 15),
		},
		CancelPendingIDs: []string{"inv-1"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-1"}, result.CanceledIDs)
	assert.Equal(t, 2, result.TotalCreated)
	require.Len(t, result.CreatedInvoices, 2)
	assert.Equal(t, "300.00", result.CreatedInvoices[0].Amount.StringFixed(2))
	assert.Equal(t, "300.00", result.CreatedInvoices[1].Amount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationExecuteRejectsInvoiceWithPayments(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	mock.ExpectBegin()
	expectInvoiceByID(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1"))
	expectPaymentCount(mock, "inv-1", 1)
	mock.ExpectRollback()

	_, err := svc.Execute(context.Background(), NegotiationExecuteRequest{
		NegotiationRequest: NegotiationRequest{
			StudentID:       "stu-1",
			TotalAmount:     decimal.RequireFromString("450.00"),
			NumInstallments: 2,
			FirstDueDate:    date(2026, time.April, 15),
		},
		CancelPendingIDs: []string{"inv-1"},
	}, nil)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvoiceHasPayments.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationExecuteRejectsForeignInvoice(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "reference", "student_id", "term_id", "description", "due_date", "amount", "fine_rate", "interest_rate", "installment_number", "installment_total", "status", "created_at", "updated_at"}).
		AddRow("inv-9", "INV-inv-9", "stu-other", nil, "Tuition", date(2026, time.February, 10), "450.00", "2.00", "1.00", nil, nil, models.InvoiceStatusPending, today, today)
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id = \\$1").
		WithArgs("inv-9").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := svc.Execute(context.Background(), NegotiationExecuteRequest{
		NegotiationRequest: NegotiationRequest{
			StudentID:       "stu-1",
			TotalAmount:     decimal.RequireFromString("450.00"),
			NumInstallments: 1,
			FirstDueDate:    date(2026, time.April, 15),
		},
		CancelPendingIDs: []string{"inv-9"},
	}, nil)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationExecuteAbortsOnConcurrentCancel(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	mock.ExpectBegin()
	expectInvoiceByID(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1"))
	expectPaymentCount(mock, "inv-1", 0)
	// Guarded cancel matches no row: another writer already moved the status.
	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs("inv-1", models.InvoiceStatusCanceled, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Execute(context.Background(), NegotiationExecuteRequest{
		NegotiationRequest: NegotiationRequest{
			StudentID:       "stu-1",
			TotalAmount:     decimal.RequireFromString("936.00"),
			NumInstallments: 2,
			FirstDueDate:    date(2026, time.April, 15),
		},
		CancelPendingIDs: []string{"inv-1"},
	}, nil)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNegotiationDebtSummary(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newNegotiationFixture(t, today)
	defer cleanup()

	expectOpenInvoices(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1"))

	summary, err := svc.DebtSummary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", summary.StudentName)
	assert.Equal(t, 1, summary.CountPending)
	assert.Equal(t, "450.00", summary.TotalPendingAmount.StringFixed(2))
	assert.Equal(t, "468.00", summary.TotalPendingWithFees.StringFixed(2))
	assert.Equal(t, models.InvoiceStatusOverdue, summary.PendingInvoices[0].EffectiveStatus)
	assert.True(t, summary.HasCurrentTermEnrollment)
	assert.NoError(t, mock.ExpectationsWereMet())
}
