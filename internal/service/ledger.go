package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/pkg/clock"
)

var hundred = decimal.NewFromInt(100)

// EffectiveStatus derives the invoice status visible to callers. PAID and
// CANCELED are terminal for display. A stored PENDING past its due date is
// viewed as OVERDUE without being persisted; the derivation is pure so the
// stored and effective values can never diverge.
func EffectiveStatus(inv *models.Invoice, today time.Time) models.InvoiceStatus {
	if inv.Status == models.InvoiceStatusPending && clock.Midnight(inv.DueDate).Before(clock.Midnight(today)) {
		return models.InvoiceStatusOverdue
	}
	return inv.Status
}

// AmountDue computes principal plus late fees as of today. The fine applies
// once; interest accrues per started month of delay on the principal only —
// never on the fine or on previously accrued interest.
func AmountDue(inv *models.Invoice, today time.Time) decimal.Decimal {
	if inv.Status == models.InvoiceStatusPaid || inv.Status == models.InvoiceStatusCanceled {
		return inv.Amount
	}
	due := clock.Midnight(inv.DueDate)
	day := clock.Midnight(today)
	// Due today is not yet overdue.
	if !due.Before(day) {
		return inv.Amount
	}

	daysOverdue := clock.DaysBetween(due, day)
	months := monthsOverdue(daysOverdue)

	fine := inv.Amount.Mul(inv.FineRate).Div(hundred)
	interest := inv.Amount.Mul(inv.InterestRate).Div(hundred).Mul(decimal.NewFromInt(int64(months)))

	return inv.Amount.Add(fine).Add(interest).Round(2)
}

// monthsOverdue maps days of delay to billable months: every started 30-day
// block counts, minimum one (33 days late is two months).
func monthsOverdue(days int) int {
	if days <= 0 {
		return 0
	}
	months := (days + 29) / 30
	if months < 1 {
		months = 1
	}
	return months
}

// ReconciledStatus derives the stored status an invoice should hold given
// the sum of its SETTLED payments. Full settlement yields PAID; a PAID
// invoice whose settled sum fell below the amount (a refund) reverts to
// OVERDUE when past due, else PENDING. Any other state is left unchanged.
func ReconciledStatus(inv *models.Invoice, settled decimal.Decimal, today time.Time) models.InvoiceStatus {
	if settled.GreaterThanOrEqual(inv.Amount) {
		return models.InvoiceStatusPaid
	}
	if inv.Status == models.InvoiceStatusPaid {
		if clock.Midnight(inv.DueDate).Before(clock.Midnight(today)) {
			return models.InvoiceStatusOverdue
		}
		return models.InvoiceStatusPending
	}
	return inv.Status
}
