package billing

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/catalog"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const catalogLookupConcurrency = 4

// priceLines resolves catalog prices and builds the document lines. Lines
// with no price are kept and reported as warnings.
func (s *Service) priceLines(ctx context.Context, businessID int64, reqs []LineRequest) ([]ServiceLine, []pricing.Warning, error) {
	prices := make([]*catalog.Prices, len(reqs))
	if s.catalog != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(catalogLookupConcurrency)
		for i, req := range reqs {
			if req.ServiceID == nil {
				continue
			}
			g.Go(func() error {
				p, err := s.catalog.Prices(gctx, businessID, *req.ServiceID)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				prices[i] = &p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	lines := make([]ServiceLine, 0, len(reqs))
	var warnings []pricing.Warning
	for i, req := range reqs {
		in := pricing.LineInput{
			ServiceID:     req.ServiceID,
			Label:         req.Label,
			Quantity:      req.Quantity,
			OverrideCents: req.UnitPriceCents,
			Discount:      req.Discount,
			BillingUnit:   req.BillingUnit,
		}
		if p := prices[i]; p != nil {
			in.DefaultCents = p.DefaultCents
			in.DailyRateCents = p.DailyRateCents
			if in.Label == "" {
				in.Label = p.Label
			}
			if in.BillingUnit == "" && p.BillingUnit != "" {
				in.BillingUnit = pricing.BillingUnit(p.BillingUnit)
			}
		}

		position := i + 1
		priced, warning, err := pricing.BuildLine(position, in)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", shared.ErrValidation, position, err)
		}
		if warning != nil {
			warnings = append(warnings, *warning)
		}
		lines = append(lines, ServiceLine{
			ServiceID:              req.ServiceID,
			Label:                  in.Label,
			Description:            req.Description,
			Quantity:               req.Quantity,
			UnitPriceCents:         priced.UnitPriceCents,
			Discount:               priced.Discount,
			OriginalUnitPriceCents: priced.OriginalUnitPriceCents,
			BillingUnit:            priced.BillingUnit,
			TotalCents:             priced.TotalCents,
			PriceSource:            priced.Source,
			MissingPrice:           priced.MissingPrice,
			Position:               position,
		})
	}
	return lines, warnings, nil
}

// applyTotals recomputes the quote money fields from its lines.
func applyTotals(q *Quote) error {
	amounts := make([]pricing.LineAmount, len(q.Lines))
	for i, l := range q.Lines {
		amounts[i] = pricing.LineAmount{TotalCents: l.TotalCents, BillingUnit: l.BillingUnit}
	}
	totals, err := pricing.Aggregate(amounts, q.DepositPercent)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	q.TotalCents = totals.TotalCents
	q.DepositCents = totals.DepositCents
	q.BalanceCents = totals.BalanceCents
	return nil
}

// cloneLines copies lines for another document, dropping identities.
func cloneLines(src []ServiceLine) []ServiceLine {
	out := copyLines(src)
	for i := range out {
		out[i].ID = 0
		out[i].DocumentID = 0
	}
	return out
}

// copyLines deep-copies lines, identities included.
func copyLines(src []ServiceLine) []ServiceLine {
	if src == nil {
		return nil
	}
	out := make([]ServiceLine, len(src))
	for i, l := range src {
		c := l
		c.ServiceID = clonePtr(l.ServiceID)
		c.Description = clonePtr(l.Description)
		c.OriginalUnitPriceCents = clonePtr(l.OriginalUnitPriceCents)
		c.Discount.Value = clonePtr(l.Discount.Value)
		out[i] = c
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

