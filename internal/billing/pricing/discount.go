package pricing

import (
	"errors"
	"fmt"
)

// DiscountType tags the discount payload.
type DiscountType string

const (
	DiscountNone    DiscountType = "NONE"
	DiscountPercent DiscountType = "PERCENT"
	DiscountAmount  DiscountType = "AMOUNT"
)

// Discount is a tagged union: Value is a 0-100 percentage for PERCENT, a
// cents amount for AMOUNT, and absent for NONE.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value *int64       `json:"value"`
}

var (
	ErrUnknownDiscountType = errors.New("unknown discount type")
	ErrDiscountValue       = errors.New("invalid discount value")
)

// NoDiscount returns the NONE discount.
func NoDiscount() Discount {
	return Discount{Type: DiscountNone}
}

// Percent builds a PERCENT discount.
func Percent(v int64) Discount {
	return Discount{Type: DiscountPercent, Value: &v}
}

// Amount builds an AMOUNT discount in cents.
func Amount(cents int64) Discount {
	return Discount{Type: DiscountAmount, Value: &cents}
}

// Normalize maps the empty type to NONE.
func (d Discount) Normalize() Discount {
	if d.Type == "" {
		d.Type = DiscountNone
	}
	if d.Type == DiscountNone {
		d.Value = nil
	}
	return d
}

// IsZero reports whether the discount has no effect.
func (d Discount) IsZero() bool {
	d = d.Normalize()
	return d.Type == DiscountNone || d.Value == nil || *d.Value == 0
}

// Validate checks the payload against its type.
func (d Discount) Validate() error {
	switch d.Type {
	case "", DiscountNone:
		if d.Value != nil && *d.Value != 0 {
			return fmt.Errorf("%w: NONE discount carries a value", ErrDiscountValue)
		}
		return nil
	case DiscountPercent:
		if d.Value == nil {
			return fmt.Errorf("%w: PERCENT discount requires a value", ErrDiscountValue)
		}
		if *d.Value < 0 || *d.Value > 100 {
			return fmt.Errorf("%w: percent must be between 0 and 100, got %d", ErrDiscountValue, *d.Value)
		}
		return nil
	case DiscountAmount:
		if d.Value == nil {
			return fmt.Errorf("%w: AMOUNT discount requires a value", ErrDiscountValue)
		}
		if *d.Value < 0 {
			return fmt.Errorf("%w: amount must be non-negative, got %d", ErrDiscountValue, *d.Value)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDiscountType, d.Type)
	}
}
