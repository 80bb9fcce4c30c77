package pricing

import (
	"errors"
	"fmt"
)

// ErrDepositPercent is returned for a deposit outside 0-100.
var ErrDepositPercent = errors.New("deposit percent must be between 0 and 100")

// Totals holds the document-level figures.
type Totals struct {
	TotalCents   int64
	DepositCents int64
	BalanceCents int64
	// Informational split; TotalCents includes both.
	OneOffCents           int64
	RecurringMonthlyCents int64
}

// LineAmount is the minimal line view the aggregator needs.
type LineAmount struct {
	TotalCents  int64
	BillingUnit BillingUnit
}

// Aggregate sums line totals and splits the deposit.
func Aggregate(lines []LineAmount, depositPercent int) (Totals, error) {
	if depositPercent < 0 || depositPercent > 100 {
		return Totals{}, fmt.Errorf("%w: got %d", ErrDepositPercent, depositPercent)
	}
	var t Totals
	for _, l := range lines {
		if l.TotalCents < 0 {
			return Totals{}, fmt.Errorf("line total must be non-negative, got %d", l.TotalCents)
		}
		t.TotalCents += l.TotalCents
		if l.BillingUnit == BillingMonthly {
			t.RecurringMonthlyCents += l.TotalCents
		} else {
			t.OneOffCents += l.TotalCents
		}
	}
	t.DepositCents = PercentOf(t.TotalCents, int64(depositPercent))
	t.BalanceCents = t.TotalCents - t.DepositCents
	return t, nil
}
