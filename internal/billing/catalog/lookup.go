// Package catalog resolves catalog service prices for the pricing resolver.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// ErrServiceNotFound means the service does not exist for the business.
var ErrServiceNotFound = fmt.Errorf("%w: catalog service", shared.ErrNotFound)

// Prices are the catalog-side price candidates of a service.
type Prices struct {
	ServiceID      int64  `json:"service_id"`
	Label          string `json:"label"`
	DefaultCents   *int64 `json:"default_cents,omitempty"`
	DailyRateCents *int64 `json:"daily_rate_cents,omitempty"`
	BillingUnit    string `json:"billing_unit,omitempty"`
}

// Lookup returns the prices of serviceID within businessID.
type Lookup interface {
	Prices(ctx context.Context, businessID, serviceID int64) (Prices, error)
}

// Querier is the read side of a pgx pool or transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore reads catalog_services.
type PGStore struct {
	db Querier
}

// NewPGStore builds a store over db.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

const selectPricesSQL = `
SELECT id, name, default_price_cents, daily_rate_cents, billing_unit
FROM catalog_services
WHERE business_id = $1 AND id = $2 AND archived_at IS NULL`

// Prices implements Lookup.
func (s *PGStore) Prices(ctx context.Context, businessID, serviceID int64) (Prices, error) {
	var p Prices
	err := s.db.QueryRow(ctx, selectPricesSQL, businessID, serviceID).
		Scan(&p.ServiceID, &p.Label, &p.DefaultCents, &p.DailyRateCents, &p.BillingUnit)
	if errors.Is(err, pgx.ErrNoRows) {
		return Prices{}, fmt.Errorf("%w %d", ErrServiceNotFound, serviceID)
	}
	if err != nil {
		return Prices{}, fmt.Errorf("select catalog prices: %w", err)
	}
	return p, nil
}

// CachedLookup serves prices from Cache, falling back to next on a miss.
type CachedLookup struct {
	next  Lookup
	cache *Cache
}

// NewCachedLookup wraps next.
func NewCachedLookup(next Lookup, cache *Cache) *CachedLookup {
	return &CachedLookup{next: next, cache: cache}
}

// Prices implements Lookup.
func (l *CachedLookup) Prices(ctx context.Context, businessID, serviceID int64) (Prices, error) {
	key, err := l.cache.BuildKey(ctx, businessID, "service", strconv.FormatInt(serviceID, 10))
	if err != nil {
		return l.next.Prices(ctx, businessID, serviceID)
	}
	var p Prices
	err = l.cache.FetchJSON(ctx, key, &p, func(ctx context.Context) (any, error) {
		return l.next.Prices(ctx, businessID, serviceID)
	})
	return p, err
}

// Invalidate drops cached prices for businessID after catalog edits.
func (l *CachedLookup) Invalidate(ctx context.Context, businessID int64) error {
	return l.cache.Bump(ctx, businessID)
}
