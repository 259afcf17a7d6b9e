package service

import (
	"context"
	"database/sql/driver"
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
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

// decimalArg matches a driver value against a decimal regardless of its
// string rendering ("450" vs "450.00").
type decimalArg string

func (d decimalArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return got.Equal(decimal.RequireFromString(string(d)))
}

func newPaymentFixture(t *testing.T, today time.Time) (*PaymentService, sqlmock.Sqlmock, func()) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")

	svc := NewPaymentService(db,
		repository.NewPaymentRepository(db),
		repository.NewInvoiceRepository(db),
		NopAuditSink{}, clock.Fixed(today), nil, nil)
	return svc, mock, func() { raw.Close() }
}

func expectInvoiceByID(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id = \\$1").
		WithArgs("inv-1").
		WillReturnRows(rows)
}

func expectSettledSum(mock sqlmock.Sqlmock, sum string) {
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments WHERE invoice_id = \\$1 AND status = \\$2").
		WithArgs("inv-1", models.PaymentStatusSettled).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(sum))
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected typed error, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestCreateSettledCapsAtInvoiceAmount(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newPaymentFixture(t, today)
	defer cleanup()

	// 450.00 due 2026-02-10, 33 days late: amount due reads 468.00 but the
	// settled sum may never exceed the 450.00 principal.
	mock.ExpectBegin()
	expectInvoiceByID(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1"))
	expectSettledSum(mock, "0")
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), CreatePaymentRequest{
		InvoiceID: "inv-1",
		Amount:    decimal.RequireFromString("468.00"),
		Settle:    true,
	}, nil)
	assertErrorCode(t, err, appErrors.ErrOverSettlement.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSettledFullPrincipal(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newPaymentFixture(t, today)
	defer cleanup()

	mock.ExpectBegin()
	expectInvoiceByID(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1"))
	expectSettledSum(mock, "0")
	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Reconciliation inside the same transaction marks the invoice PAID.
	expectInvoiceByID(mock, openInvoiceRows(date(2026, time.February, 10), "inv-1"))
	expectSettledSum(mock, "450.00")
	mock.ExpectExec("UPDATE invoices SET status").
		WithArgs("inv-1", models.InvoiceStatusPaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := svc.Create(context.Background(), CreatePaymentRequest{
		InvoiceID: "inv-1",
		Amount:    decimal.RequireFromString("450.00"),
		Settle:    true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSettled, payment.Status)
	require.NotNil(t, payment.PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleRejectsOverRemainingPrincipal(t *testing.T) {
	today := date(2026, time.March, 15)
	svc, mock, cleanup := newPaymentFixture(t, today)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1").
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id", "amount", "status", "method", "provider_ref", "paid_at", "created_at", "updated_at"}).
			AddRow("pay-1", "inv-1", "60.00", models.PaymentStatusAuthorized, nil, nil, nil, time.Now(), time.Now()))
	expectInvoiceByID(mock, openInvoiceRows(date(2026, time.April, 1), "inv-1"))
	expectSettledSum(mock, "400.00")
	mock.ExpectRollback()

	_, err := svc.Settle(context.Background(), "pay-1", nil)
	assertErrorCode(t, err, appErrors.ErrOverSettlement.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
