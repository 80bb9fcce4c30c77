package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/catalog"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func TestDeriveInvoiceCopiesQuote(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := f.quoteIn(t, QuoteStatusSigned)

	// Catalog repricing after issuance must not leak into the invoice.
	f.catalog.set(catalog.Prices{ServiceID: svcAudit, Label: "Audit", DefaultCents: ptr(int64(99999))})
	f.clock.Advance(2 * time.Hour)

	inv, err := f.svc.DeriveInvoiceFromQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)

	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	assert.Nil(t, inv.Number)
	assert.Equal(t, q.ID, *inv.QuoteID)
	assert.Equal(t, q.ProjectID, inv.ProjectID)
	assert.Equal(t, *q.ClientID, *inv.ClientID)
	assert.Equal(t, q.Currency, inv.Currency)
	assert.Equal(t, q.DepositPercent, inv.DepositPercent)
	assert.Equal(t, int64(18000), inv.TotalCents)
	assert.Equal(t, int64(5400), inv.DepositCents)
	assert.Equal(t, int64(12600), inv.BalanceCents)
	assert.True(t, inv.DueAt.Equal(f.clock.Now().AddDate(0, 0, 30)))

	assert.Equal(t, *q.IssuerSnapshotJSON, *inv.IssuerSnapshotJSON)
	assert.Equal(t, *q.ClientSnapshotJSON, *inv.ClientSnapshotJSON)
	assert.Equal(t, *q.PrestationsSnapshotText, *inv.PrestationsSnapshotText)

	require.Len(t, inv.Lines, len(q.Lines))
	for i, l := range inv.Lines {
		src := q.Lines[i]
		assert.NotEqual(t, src.ID, l.ID)
		assert.Equal(t, inv.ID, l.DocumentID)
		assert.Equal(t, src.ServiceID, l.ServiceID)
		assert.Equal(t, src.Label, l.Label)
		assert.Equal(t, src.Quantity, l.Quantity)
		assert.Equal(t, src.UnitPriceCents, l.UnitPriceCents)
		assert.Equal(t, src.Discount, l.Discount)
		assert.Equal(t, src.TotalCents, l.TotalCents)
	}

	stored, err := f.svc.GetInvoice(ctx, f.actor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.TotalCents, stored.TotalCents)
}

// Scenario D: a second derivation is a state conflict.
func TestDeriveInvoiceTwice(t *testing.T) {
	f := newFixture()
	q := f.quoteIn(t, QuoteStatusSent)

	_, err := f.svc.DeriveInvoiceFromQuote(context.Background(), f.actor, q.ID)
	require.NoError(t, err)
	_, err = f.svc.DeriveInvoiceFromQuote(context.Background(), f.actor, q.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvoiceExists)
	assert.ErrorIs(t, err, shared.ErrStateConflict)
	assert.Contains(t, err.Error(), "invoice already exists")
	assert.Equal(t, 1, f.repo.invoiceCount())
}

func TestDeriveInvoicePreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("status", func(t *testing.T) {
		for _, status := range []QuoteStatus{QuoteStatusDraft, QuoteStatusCancelled, QuoteStatusExpired} {
			f := newFixture()
			q := f.quoteIn(t, status)
			_, err := f.svc.DeriveInvoiceFromQuote(ctx, f.actor, q.ID)
			assert.ErrorIs(t, err, ErrQuoteNotInvoiceable, string(status))
		}
	})

	t.Run("not the billing reference", func(t *testing.T) {
		f := newFixture()
		sent := f.quoteIn(t, QuoteStatusSent)
		f.quoteIn(t, QuoteStatusSigned)
		_, err := f.svc.DeriveInvoiceFromQuote(ctx, f.actor, sent.ID)
		assert.ErrorIs(t, err, ErrNotBillingReference)
	})

	t.Run("other business", func(t *testing.T) {
		f := newFixture()
		q := f.quoteIn(t, QuoteStatusSigned)
		_, err := f.svc.DeriveInvoiceFromQuote(ctx, shared.Actor{UserID: 3, BusinessID: 2}, q.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestConcurrentDerivationCreatesOneInvoice(t *testing.T) {
	f := newFixture()
	q := f.quoteIn(t, QuoteStatusSigned)

	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.DeriveInvoiceFromQuote(context.Background(), f.actor, q.ID)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrStateConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.repo.invoiceCount())
}

func TestUniqueConstraintBacksDerivation(t *testing.T) {
	f := newFixture()
	q := f.quoteIn(t, QuoteStatusSigned)
	_, err := f.svc.DeriveInvoiceFromQuote(context.Background(), f.actor, q.ID)
	require.NoError(t, err)

	f.repo.hideInvoices = true
	_, err = f.svc.DeriveInvoiceFromQuote(context.Background(), f.actor, q.ID)
	assert.ErrorIs(t, err, ErrDuplicateInvoice)
	assert.ErrorIs(t, err, shared.ErrConcurrency)
	assert.Equal(t, 1, f.repo.invoiceCount())
}

func TestInvoiceLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := f.quoteIn(t, QuoteStatusSigned)
	inv, err := f.svc.DeriveInvoiceFromQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)

	_, err = f.svc.TransitionInvoice(ctx, f.actor, inv.ID, TransitionInvoiceRequest{Target: InvoiceStatusPaid})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	sent, err := f.svc.TransitionInvoice(ctx, f.actor, inv.ID, TransitionInvoiceRequest{Target: InvoiceStatusSent})
	require.NoError(t, err)
	require.NotNil(t, sent.Number)
	assert.Equal(t, "F-0001", *sent.Number)
	assert.NotNil(t, sent.IssuedAt)

	again, err := f.svc.TransitionInvoice(ctx, f.actor, inv.ID, TransitionInvoiceRequest{Target: InvoiceStatusSent})
	require.NoError(t, err)
	assert.Equal(t, "F-0001", *again.Number)
	assert.Equal(t, int64(1), f.repo.sequence(testBusiness, numbering.DocumentInvoice))

	paidAt := f.clock.Now().Add(48 * time.Hour)
	paid, err := f.svc.TransitionInvoice(ctx, f.actor, inv.ID, TransitionInvoiceRequest{Target: InvoiceStatusPaid, PaidAt: &paidAt})
	require.NoError(t, err)
	assert.True(t, paid.PaidAt.Equal(paidAt))

	_, err = f.svc.TransitionInvoice(ctx, f.actor, inv.ID, TransitionInvoiceRequest{Target: InvoiceStatusCancelled, CancelReason: "refund"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestInvoiceCancelRequiresReason(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := f.quoteIn(t, QuoteStatusSent)
	inv, err := f.svc.DeriveInvoiceFromQuote(ctx, f.actor, q.ID)
	require.NoError(t, err)

	_, err = f.svc.TransitionInvoice(ctx, f.actor, inv.ID, TransitionInvoiceRequest{Target: InvoiceStatusCancelled})
	assert.ErrorIs(t, err, ErrCancelReasonRequired)

	cancelled, err := f.svc.TransitionInvoice(ctx, f.actor, inv.ID, TransitionInvoiceRequest{Target: InvoiceStatusCancelled, CancelReason: "issued in error"})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusCancelled, cancelled.Status)
	assert.Equal(t, "issued in error", *cancelled.CancelReason)
	assert.Nil(t, cancelled.Number)
}
