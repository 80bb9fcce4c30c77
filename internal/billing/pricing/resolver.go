package pricing

// PriceSource records which candidate produced the unit price.
type PriceSource string

const (
	SourceOverride PriceSource = "override"
	SourceDefault  PriceSource = "default"
	SourceTJM      PriceSource = "tjm"
	SourceMissing  PriceSource = "missing"
)

// Resolution is the outcome of ResolveUnitPrice.
type Resolution struct {
	UnitPriceCents int64
	Source         PriceSource
	MissingPrice   bool
}

// ResolveUnitPrice picks the explicit override, then the catalog default,
// then the daily rate. With no candidate the price is 0 and flagged missing.
func ResolveUnitPrice(override, catalogDefault, dailyRate *int64) Resolution {
	switch {
	case override != nil:
		return Resolution{UnitPriceCents: *override, Source: SourceOverride}
	case catalogDefault != nil:
		return Resolution{UnitPriceCents: *catalogDefault, Source: SourceDefault}
	case dailyRate != nil:
		return Resolution{UnitPriceCents: *dailyRate, Source: SourceTJM}
	default:
		return Resolution{UnitPriceCents: 0, Source: SourceMissing, MissingPrice: true}
	}
}
