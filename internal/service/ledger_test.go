package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/pkg/clock"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openInvoice(amount string, due time.Time) *models.Invoice {
	return &models.Invoice{
		ID:           "inv-1",
		Amount:       decimal.RequireFromString(amount),
		FineRate:     decimal.RequireFromString("2.00"),
		InterestRate: decimal.RequireFromString("1.00"),
		DueDate:      due,
		Status:       models.InvoiceStatusPending,
	}
}

func TestEffectiveStatus(t *testing.T) {
	due := date(2026, time.February, 10)
	inv := openInvoice("450.00", due)

	assert.Equal(t, models.InvoiceStatusPending, EffectiveStatus(inv, due), "due today is not overdue")
	assert.Equal(t, models.InvoiceStatusPending, EffectiveStatus(inv, date(2026, time.February, 9)))
	assert.Equal(t, models.InvoiceStatusOverdue, EffectiveStatus(inv, date(2026, time.February, 11)))

	inv.Status = models.InvoiceStatusPaid
	assert.Equal(t, models.InvoiceStatusPaid, EffectiveStatus(inv, date(2026, time.December, 31)))

	inv.Status = models.InvoiceStatusCanceled
	assert.Equal(t, models.InvoiceStatusCanceled, EffectiveStatus(inv, date(2026, time.December, 31)))
}

func TestEffectiveStatusDueTodayOnNonUTCHost(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("UTC-3", -3*60*60)
	defer func() { time.Local = orig }()

	// DATE columns scan back at UTC midnight; the system clock must compare
	// in the same zone or a due-today invoice starts accruing fees early.
	due := clock.Midnight(time.Now().UTC())
	inv := openInvoice("450.00", due)
	today := clock.System().Today()

	assert.Equal(t, models.InvoiceStatusPending, EffectiveStatus(inv, today))
	assert.Equal(t, "450.00", AmountDue(inv, today).StringFixed(2))
}

func TestAmountDueOnTimeEqualsAmount(t *testing.T) {
	inv := openInvoice("450.00", date(2026, time.February, 10))

	assert.True(t, inv.Amount.Equal(AmountDue(inv, date(2026, time.February, 10))))
	assert.True(t, inv.Amount.Equal(AmountDue(inv, date(2026, time.January, 1))))
}

func TestAmountDueLateFees(t *testing.T) {
	// 450.00 due 2026-02-10, 2% fine, 1% monthly interest. 33 days late on
	// 2026-03-15 bills two started months: 450 + 9.00 + 9.00 = 468.00.
	inv := openInvoice("450.00", date(2026, time.February, 10))

	got := AmountDue(inv, date(2026, time.March, 15))
	assert.Equal(t, "468.00", got.StringFixed(2))
}

func TestAmountDueSingleMonth(t *testing.T) {
	inv := openInvoice("450.00", date(2026, time.February, 10))

	// One day late already bills the fine plus one month of interest.
	got := AmountDue(inv, date(2026, time.February, 11))
	assert.Equal(t, "463.50", got.StringFixed(2))

	// Day 30 still falls inside the first month.
	got = AmountDue(inv, date(2026, time.March, 12))
	assert.Equal(t, "463.50", got.StringFixed(2))
}

func TestAmountDueIsMonotonic(t *testing.T) {
	inv := openInvoice("987.65", date(2026, time.January, 31))

	prev := decimal.Zero
	for day := 0; day < 400; day += 7 {
		today := date(2026, time.January, 31).AddDate(0, 0, day)
		due := AmountDue(inv, today)
		assert.True(t, due.GreaterThanOrEqual(prev), "amount due decreased at day %d", day)
		prev = due
	}
}

func TestAmountDueTerminalStatuses(t *testing.T) {
	inv := openInvoice("450.00", date(2026, time.February, 10))
	inv.Status = models.InvoiceStatusPaid
	assert.True(t, inv.Amount.Equal(AmountDue(inv, date(2026, time.June, 1))), "paid invoices accrue nothing")

	inv.Status = models.InvoiceStatusCanceled
	assert.True(t, inv.Amount.Equal(AmountDue(inv, date(2026, time.June, 1))), "canceled invoices accrue nothing")
}

func TestMonthsOverdue(t *testing.T) {
	cases := []struct {
		days   int
		months int
	}{
		{0, 0},
		{1, 1},
		{29, 1},
		{30, 1},
		{31, 2},
		{33, 2},
		{60, 2},
		{61, 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.months, monthsOverdue(tc.days), "days=%d", tc.days)
	}
}

func TestReconciledStatus(t *testing.T) {
	today := date(2026, time.March, 1)
	inv := openInvoice("100.00", date(2026, time.March, 10))

	// Full settlement yields PAID.
	got := ReconciledStatus(inv, decimal.RequireFromString("100.00"), today)
	assert.Equal(t, models.InvoiceStatusPaid, got)

	// Partial settlement leaves the stored status alone.
	got = ReconciledStatus(inv, decimal.RequireFromString("40.00"), today)
	assert.Equal(t, models.InvoiceStatusPending, got)

	// Refund below the amount reverts PAID; destination depends on the due
	// date.
	inv.Status = models.InvoiceStatusPaid
	got = ReconciledStatus(inv, decimal.RequireFromString("40.00"), today)
	assert.Equal(t, models.InvoiceStatusPending, got)

	got = ReconciledStatus(inv, decimal.RequireFromString("40.00"), date(2026, time.March, 11))
	assert.Equal(t, models.InvoiceStatusOverdue, got)
}
