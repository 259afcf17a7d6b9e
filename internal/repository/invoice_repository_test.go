package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-core/backoffice-api/internal/models"
)

func newInvoiceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestInvoiceRepositoryListOpenByStudent(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	rows := sqlmock.NewRows([]string{"id", "reference", "student_id", "term_id", "description", "due_date", "amount", "fine_rate", "interest_rate", "installment_number", "installment_total", "status", "created_at", "updated_at"}).
		AddRow("inv-1", "INV-A", "stu-1", "term-1", "Tuition", time.Now(), "450.00", "2.00", "1.00", nil, nil, models.InvoiceStatusPending, time.Now(), time.Now()).
		AddRow("inv-2", "INV-B", "stu-1", "term-1", "Tuition", time.Now(), "450.00", "2.00", "1.00", nil, nil, models.InvoiceStatusOverdue, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE student_id = \\$1 AND status = ANY\\(\\$2\\) ORDER BY due_date ASC").
		WithArgs("stu-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	invoices, err := repo.ListOpenByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Len(t, invoices, 2)
	assert.Equal(t, "450.00", invoices[0].Amount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryUpdateStatusGuarded(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)")).
		WithArgs("inv-1", models.InvoiceStatusCanceled, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateStatusGuarded(context.Background(), "inv-1",
		[]models.InvoiceStatus{models.InvoiceStatusPending, models.InvoiceStatusOverdue},
		models.InvoiceStatusCanceled)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryUpdateStatusGuardedMiss(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)")).
		WithArgs("inv-1", models.InvoiceStatusCanceled, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateStatusGuarded(context.Background(), "inv-1",
		[]models.InvoiceStatus{models.InvoiceStatusPending},
		models.InvoiceStatusCanceled)
	require.NoError(t, err)
	assert.False(t, ok, "guard must report no row matched the allowed statuses")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryCreateAssignsReference(t *testing.T) {
	db, mock, cleanup := newInvoiceRepoMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectExec("INSERT INTO invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))

	termID := "term-1"
	invoice := &models.Invoice{StudentID: "stu-1", TermID: &termID, Description: "Tuition", DueDate: time.Now()}
	err := repo.Create(context.Background(), invoice)
	require.NoError(t, err)
	assert.NotEmpty(t, invoice.ID)
	assert.Regexp(t, `^INV-[0-9A-F]{12}$`, invoice.Reference)
	assert.Equal(t, models.InvoiceStatusPending, invoice.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
