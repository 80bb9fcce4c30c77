package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func TestResolveUnitPricePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		override *int64
		def      *int64
		tjm      *int64
		want     Resolution
	}{
		{"override wins", i64(100), i64(200), i64(300), Resolution{100, SourceOverride, false}},
		{"zero override still wins", i64(0), i64(200), nil, Resolution{0, SourceOverride, false}},
		{"catalog default", nil, i64(200), i64(300), Resolution{200, SourceDefault, false}},
		{"daily rate fallback", nil, nil, i64(300), Resolution{300, SourceTJM, false}},
		{"missing", nil, nil, nil, Resolution{0, SourceMissing, true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveUnitPrice(tc.override, tc.def, tc.tjm))
		})
	}
}

func TestLineTotal(t *testing.T) {
	cases := []struct {
		name string
		qty  int64
		unit int64
		d    Discount
		want int64
	}{
		{"no discount", 3, 1000, NoDiscount(), 3000},
		{"empty type behaves as none", 2, 250, Discount{}, 500},
		{"percent 10", 2, 10000, Percent(10), 18000},
		{"percent rounds half up", 1, 5, Percent(50), 2},
		{"percent rounds down below half", 1, 333, Percent(10), 300},
		{"percent 100", 4, 999, Percent(100), 0},
		{"percent 0", 4, 999, Percent(0), 3996},
		{"amount", 2, 1000, Amount(150), 1850},
		{"amount floors at zero", 1, 1000, Amount(5000), 0},
		{"free line", 5, 0, Percent(20), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LineTotal(tc.qty, tc.unit, tc.d)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLineTotalRejectsBadInput(t *testing.T) {
	_, err := LineTotal(0, 100, NoDiscount())
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = LineTotal(-1, 100, NoDiscount())
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = LineTotal(1, -5, NoDiscount())
	assert.ErrorIs(t, err, ErrNegativePrice)

	_, err = LineTotal(1, 100, Percent(101))
	assert.ErrorIs(t, err, ErrDiscountValue)

	_, err = LineTotal(1, 100, Amount(-1))
	assert.ErrorIs(t, err, ErrDiscountValue)

	_, err = LineTotal(1, 100, Discount{Type: "BOGO"})
	assert.ErrorIs(t, err, ErrUnknownDiscountType)

	_, err = LineTotal(1<<40, 1<<20, NoDiscount())
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestDiscountBounds(t *testing.T) {
	for pct := int64(0); pct <= 100; pct++ {
		for _, gross := range []int64{1, 7, 99, 18000, 123457} {
			got, err := LineTotal(1, gross, Percent(pct))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, int64(0))
			assert.LessOrEqual(t, got, gross)
		}
	}
	for _, amount := range []int64{0, 1, 500, 1000, 1001, 1 << 40} {
		got, err := LineTotal(1, 1000, Amount(amount))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, int64(0))
	}
}

func TestDiscountValidate(t *testing.T) {
	assert.NoError(t, NoDiscount().Validate())
	assert.NoError(t, Discount{Type: DiscountNone, Value: i64(0)}.Validate())
	assert.Error(t, Discount{Type: DiscountNone, Value: i64(5)}.Validate())
	assert.Error(t, Discount{Type: DiscountPercent}.Validate())
	assert.Error(t, Discount{Type: DiscountAmount}.Validate())
	assert.NoError(t, Percent(100).Validate())
}

func TestBuildLine(t *testing.T) {
	line, warn, err := BuildLine(1, LineInput{
		Label:        "Design",
		Quantity:     2,
		DefaultCents: i64(10000),
		Discount:     Percent(10),
	})
	require.NoError(t, err)
	assert.Nil(t, warn)
	assert.Equal(t, int64(18000), line.TotalCents)
	assert.Equal(t, SourceDefault, line.Source)
	assert.Equal(t, BillingOneOff, line.BillingUnit)
	require.NotNil(t, line.OriginalUnitPriceCents)
	assert.Equal(t, int64(10000), *line.OriginalUnitPriceCents)

	plain, _, err := BuildLine(2, LineInput{Label: "Hosting", Quantity: 1, OverrideCents: i64(900), BillingUnit: BillingMonthly})
	require.NoError(t, err)
	assert.Nil(t, plain.OriginalUnitPriceCents)
	assert.Equal(t, BillingMonthly, plain.BillingUnit)
}

func TestBuildLineMissingPriceWarns(t *testing.T) {
	svc := int64(42)
	line, warn, err := BuildLine(3, LineInput{ServiceID: &svc, Label: "Audit", Quantity: 1})
	require.NoError(t, err)
	require.NotNil(t, warn)
	assert.True(t, line.MissingPrice)
	assert.Equal(t, int64(0), line.TotalCents)
	assert.Equal(t, 3, warn.Position)
	assert.Equal(t, int64(42), *warn.ServiceID)
}

func TestBuildLineRejects(t *testing.T) {
	_, _, err := BuildLine(1, LineInput{Label: "x", Quantity: 1, BillingUnit: "YEARLY"})
	assert.ErrorIs(t, err, ErrUnknownBilling)

	_, _, err = BuildLine(1, LineInput{Label: "x", Quantity: 1, DefaultCents: i64(-1)})
	assert.ErrorIs(t, err, ErrNegativePrice)
}

func TestAggregate(t *testing.T) {
	// 18000 at 30% deposit.
	totals, err := Aggregate([]LineAmount{{TotalCents: 18000}}, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(18000), totals.TotalCents)
	assert.Equal(t, int64(5400), totals.DepositCents)
	assert.Equal(t, int64(12600), totals.BalanceCents)
}

func TestAggregateRoundingBoundaries(t *testing.T) {
	cases := []struct {
		total   int64
		pct     int
		deposit int64
	}{
		{1, 50, 1},
		{3, 50, 2},
		{101, 33, 33},
		{150, 33, 50},
		{1000, 33, 330},
		{10001, 30, 3000},
		{0, 30, 0},
		{999, 0, 0},
		{999, 100, 999},
	}
	for _, tc := range cases {
		totals, err := Aggregate([]LineAmount{{TotalCents: tc.total}}, tc.pct)
		require.NoError(t, err)
		assert.Equal(t, tc.deposit, totals.DepositCents, "total=%d pct=%d", tc.total, tc.pct)
		assert.Equal(t, totals.TotalCents, totals.DepositCents+totals.BalanceCents)
	}
}

func TestAggregateSumsAndSplitsRecurring(t *testing.T) {
	lines := []LineAmount{
		{TotalCents: 1000, BillingUnit: BillingOneOff},
		{TotalCents: 250, BillingUnit: BillingMonthly},
		{TotalCents: 333},
	}
	totals, err := Aggregate(lines, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(1583), totals.TotalCents)
	assert.Equal(t, int64(250), totals.RecurringMonthlyCents)
	assert.Equal(t, int64(1333), totals.OneOffCents)
	// The deposit is taken on the full total, monthly lines included.
	assert.Equal(t, int64(396), totals.DepositCents)
	assert.Equal(t, totals.TotalCents, totals.DepositCents+totals.BalanceCents)
}

func TestAggregateRejects(t *testing.T) {
	_, err := Aggregate(nil, 101)
	assert.ErrorIs(t, err, ErrDepositPercent)
	_, err = Aggregate([]LineAmount{{TotalCents: -1}}, 10)
	assert.Error(t, err)
}
