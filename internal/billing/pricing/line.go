package pricing

import (
	"errors"
	"fmt"
)

// BillingUnit distinguishes one-off from recurring lines.
type BillingUnit string

const (
	BillingOneOff  BillingUnit = "ONE_OFF"
	BillingMonthly BillingUnit = "MONTHLY"
)

// Valid reports whether u is a known unit.
func (u BillingUnit) Valid() bool {
	return u == BillingOneOff || u == BillingMonthly
}

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrNegativePrice   = errors.New("unit price must be non-negative")
	ErrUnknownBilling  = errors.New("unknown billing unit")
	ErrAmountOverflow  = errors.New("line amount overflows")
)

// maxLineGross keeps quantity * price far from int64 overflow.
const maxLineGross = int64(1) << 53

// LineTotal returns quantity * unit price after the discount. A PERCENT
// discount removes round_half_up(gross * v / 100); an AMOUNT discount removes
// v cents from the line, never below zero.
func LineTotal(quantity, unitPriceCents int64, d Discount) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if unitPriceCents < 0 {
		return 0, ErrNegativePrice
	}
	if err := d.Validate(); err != nil {
		return 0, err
	}
	if unitPriceCents != 0 && quantity > maxLineGross/unitPriceCents {
		return 0, ErrAmountOverflow
	}
	gross := quantity * unitPriceCents
	d = d.Normalize()
	switch d.Type {
	case DiscountPercent:
		return gross - PercentOf(gross, *d.Value), nil
	case DiscountAmount:
		if *d.Value >= gross {
			return 0, nil
		}
		return gross - *d.Value, nil
	default:
		return gross, nil
	}
}

// LineInput carries the raw pricing facts for one line.
type LineInput struct {
	ServiceID      *int64
	Label          string
	Quantity       int64
	OverrideCents  *int64
	DefaultCents   *int64
	DailyRateCents *int64
	Discount       Discount
	BillingUnit    BillingUnit
}

// PricedLine is a fully computed line.
type PricedLine struct {
	UnitPriceCents         int64
	OriginalUnitPriceCents *int64
	TotalCents             int64
	Discount               Discount
	BillingUnit            BillingUnit
	Source                 PriceSource
	MissingPrice           bool
}

// Warning reports a non-fatal pricing condition on a line.
type Warning struct {
	Position  int    `json:"position"`
	ServiceID *int64 `json:"service_id,omitempty"`
	Label     string `json:"label"`
	Reason    string `json:"reason"`
}

// BuildLine resolves and totals a line. A missing price produces a Warning,
// not an error.
func BuildLine(position int, in LineInput) (PricedLine, *Warning, error) {
	unit := in.BillingUnit
	if unit == "" {
		unit = BillingOneOff
	}
	if !unit.Valid() {
		return PricedLine{}, nil, fmt.Errorf("%w: %q", ErrUnknownBilling, unit)
	}
	for _, candidate := range []*int64{in.OverrideCents, in.DefaultCents, in.DailyRateCents} {
		if candidate != nil && *candidate < 0 {
			return PricedLine{}, nil, ErrNegativePrice
		}
	}

	res := ResolveUnitPrice(in.OverrideCents, in.DefaultCents, in.DailyRateCents)
	discount := in.Discount.Normalize()
	total, err := LineTotal(in.Quantity, res.UnitPriceCents, discount)
	if err != nil {
		return PricedLine{}, nil, err
	}

	line := PricedLine{
		UnitPriceCents: res.UnitPriceCents,
		TotalCents:     total,
		Discount:       discount,
		BillingUnit:    unit,
		Source:         res.Source,
		MissingPrice:   res.MissingPrice,
	}
	if !discount.IsZero() {
		original := res.UnitPriceCents
		line.OriginalUnitPriceCents = &original
	}

	var warning *Warning
	if res.MissingPrice {
		warning = &Warning{
			Position:  position,
			ServiceID: in.ServiceID,
			Label:     in.Label,
			Reason:    "no override, catalog or daily-rate price",
		}
	}
	return line, warning, nil
}
