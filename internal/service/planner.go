package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus-core/backoffice-api/internal/models"
)

// BuildInstallments splits total into count installments due monthly from
// firstDue. Each installment is total/count rounded to cents; the last one
// absorbs the rounding remainder so the series sums to the total exactly.
func BuildInstallments(total decimal.Decimal, count int, firstDue time.Time) []models.NegotiationInstallment {
	base := total.DivRound(decimal.NewFromInt(int64(count)), 2)
	out := make([]models.NegotiationInstallment, 0, count)

	accumulated := decimal.Zero
	for i := 0; i < count; i++ {
		amount := base
		if i == count-1 {
			amount = total.Sub(accumulated)
		}
		accumulated = accumulated.Add(amount)
		out = append(out, models.NegotiationInstallment{
			InstallmentNumber: i + 1,
			Amount:            amount,
			DueDate:           addMonthsClamped(firstDue, i),
			Description:       fmt.Sprintf("Negotiation installment %d/%d", i+1, count),
		})
	}
	return out
}

// addMonthsClamped advances firstDue by n months keeping the original day of
// month, clamping to the last day when the target month is shorter. Each
// step re-anchors on firstDue's day, so a January 31 plan yields Feb 28 and
// then Mar 31, not Mar 28.
func addMonthsClamped(firstDue time.Time, n int) time.Time {
	y, m, d := firstDue.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, firstDue.Location())
	if last := lastDayOfMonth(target); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, firstDue.Location())
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
