package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PercentOf returns round_half_up(amount * pct / 100).
func PercentOf(amount, pct int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(pct)).
		Div(hundred).
		Round(0).
		IntPart()
}
