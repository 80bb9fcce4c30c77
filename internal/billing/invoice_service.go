package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const (
	entityInvoice = "invoice"
	docInvoice    = "invoice"
)

// DeriveInvoiceFromQuote creates the single DRAFT invoice of a SENT or
// SIGNED quote. Amounts and lines are copied as quoted and never repriced.
func (s *Service) DeriveInvoiceFromQuote(ctx context.Context, actor shared.Actor, quoteID int64) (*Invoice, error) {
	var inv *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, actor.BusinessID, quoteID)
		if err != nil {
			return err
		}
		if !q.Status.Invoiceable() {
			return fmt.Errorf("%w (status %s)", ErrQuoteNotInvoiceable, q.Status)
		}
		existing, err := tx.InvoiceIDForQuote(ctx, q.BusinessID, q.ID)
		if err != nil {
			return fmt.Errorf("check invoice: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w (invoice %d)", ErrInvoiceExists, *existing)
		}
		project, err := tx.LockProject(ctx, q.BusinessID, q.ProjectID)
		if err != nil {
			return fmt.Errorf("lock project: %w", err)
		}
		if ref := project.BillingReferenceQuoteID; ref != nil && *ref != q.ID {
			return fmt.Errorf("%w (reference is quote %d)", ErrNotBillingReference, *ref)
		}

		now := s.clock()
		quoteRef := q.ID
		inv = &Invoice{
			BusinessID:              q.BusinessID,
			ProjectID:               q.ProjectID,
			ClientID:                q.ClientID,
			QuoteID:                 &quoteRef,
			Status:                  InvoiceStatusDraft,
			Currency:                q.Currency,
			Title:                   q.Title,
			Note:                    q.Note,
			TotalCents:              q.TotalCents,
			DepositCents:            q.DepositCents,
			BalanceCents:            q.BalanceCents,
			DepositPercent:          q.DepositPercent,
			DueAt:                   now.AddDate(0, 0, s.cfg.InvoiceDueDays),
			IssuerSnapshotJSON:      q.IssuerSnapshotJSON,
			ClientSnapshotJSON:      q.ClientSnapshotJSON,
			PrestationsSnapshotText: q.PrestationsSnapshotText,
			CreatedBy:               actor.UserID,
			UpdatedBy:               actor.UserID,
			CreatedAt:               now,
			UpdatedAt:               now,
			Lines:                   cloneLines(q.Lines),
		}
		fields := inv.snapshotFields()
		if err := s.freeze(ctx, tx, &fields, inv.BusinessID, inv.ClientID, inv.ProjectID); err != nil {
			return err
		}
		inv.setSnapshotFields(fields)

		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		inv.ID = id
		for i := range inv.Lines {
			inv.Lines[i].DocumentID = id
		}
		return s.audit(ctx, tx, actor, entityInvoice, id, "invoice.derived", now, map[string]any{
			"quote_id":    q.ID,
			"total_cents": inv.TotalCents,
		})
	})
	if err != nil {
		return nil, s.reject(ctx, "derive_invoice", err, slog.Int64("quote_id", quoteID))
	}
	s.publish(ctx, committed{document: docInvoice, from: "NONE", to: string(inv.Status)},
		slog.Int64("business_id", inv.BusinessID),
		slog.Int64("id", inv.ID),
		slog.Int64("quote_id", quoteID))
	return inv, nil
}

// TransitionInvoice moves an invoice along DRAFT -> SENT -> PAID, with
// CANCELLED reachable from DRAFT and SENT. The number is assigned on the
// first move into SENT; a repeated SENT request is a no-op.
func (s *Service) TransitionInvoice(ctx context.Context, actor shared.Actor, invoiceID int64, req TransitionInvoiceRequest) (*Invoice, error) {
	if err := s.validate(req); err != nil {
		return nil, s.reject(ctx, "transition_invoice", err)
	}
	if req.Target == InvoiceStatusCancelled {
		reason, err := normalizeCancelReason(req.CancelReason)
		if err != nil {
			return nil, s.reject(ctx, "transition_invoice", err)
		}
		req.CancelReason = reason
	}

	var (
		out  *Invoice
		done committed
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, actor.BusinessID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == req.Target && req.Target == InvoiceStatusSent {
			out = inv
			return nil
		}
		if !inv.Status.CanTransitionTo(req.Target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, req.Target)
		}

		from := inv.Status
		now := s.clock()
		numbered := false
		switch req.Target {
		case InvoiceStatusSent:
			if inv.IssuedAt == nil {
				at := now
				if req.IssuedAt != nil {
					at = req.IssuedAt.UTC()
				}
				inv.IssuedAt = &at
			}
			if inv.Number == nil {
				number, err := s.numbers.Assign(ctx, tx, numbering.DocumentInvoice, inv.BusinessID, *inv.IssuedAt)
				if err != nil {
					return fmt.Errorf("assign invoice number: %w", err)
				}
				inv.Number = &number
				numbered = true
			}
			fields := inv.snapshotFields()
			if err := s.freeze(ctx, tx, &fields, inv.BusinessID, inv.ClientID, inv.ProjectID); err != nil {
				return err
			}
			inv.setSnapshotFields(fields)
		case InvoiceStatusPaid:
			paidAt := now
			if req.PaidAt != nil {
				paidAt = req.PaidAt.UTC()
			}
			inv.PaidAt = &paidAt
		case InvoiceStatusCancelled:
			inv.CancelledAt = timePtr(now)
			inv.CancelReason = strPtr(req.CancelReason)
		}

		inv.Status = req.Target
		inv.UpdatedBy = actor.UserID
		inv.UpdatedAt = now
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		meta := map[string]any{"from": string(from), "to": string(inv.Status)}
		if inv.Number != nil {
			meta["number"] = *inv.Number
		}
		if err := s.audit(ctx, tx, actor, entityInvoice, inv.ID, "invoice.status_changed", now, meta); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
		out = inv
		done = committed{document: docInvoice, from: string(from), to: string(inv.Status), numbered: numbered}
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "transition_invoice", err,
			slog.Int64("id", invoiceID), slog.String("to", string(req.Target)))
	}
	number := ""
	if out.Number != nil {
		number = *out.Number
	}
	s.publish(ctx, done,
		slog.Int64("business_id", out.BusinessID),
		slog.Int64("id", out.ID),
		slog.String("number", number))
	return out, nil
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, actor shared.Actor, invoiceID int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, actor.BusinessID, invoiceID)
}
