package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

const (
	entityQuote = "quote"
	docQuote    = "quote"

	expirySweepBatch = 200
)

// CreateQuoteDraft prices the requested lines and stores a DRAFT quote.
// Lines without any price are kept and reported as warnings.
func (s *Service) CreateQuoteDraft(ctx context.Context, actor shared.Actor, req CreateQuoteDraftRequest) (*QuoteResult, error) {
	if err := s.validate(req); err != nil {
		return nil, s.reject(ctx, "create_quote", err)
	}
	project, err := s.repo.GetProject(ctx, actor.BusinessID, req.ProjectID)
	if err != nil {
		return nil, s.reject(ctx, "create_quote", fmt.Errorf("get project: %w", err))
	}
	clientID := project.ClientID
	if req.ClientID != nil {
		if _, err := s.repo.GetClient(ctx, actor.BusinessID, *req.ClientID); err != nil {
			return nil, s.reject(ctx, "create_quote", fmt.Errorf("get client: %w", err))
		}
		clientID = req.ClientID
	}
	currencyCode, err := normalizeCurrency(req.Currency, s.cfg.DefaultCurrency)
	if err != nil {
		return nil, s.reject(ctx, "create_quote", err)
	}
	lines, warnings, err := s.priceLines(ctx, actor.BusinessID, req.Lines)
	if err != nil {
		return nil, s.reject(ctx, "create_quote", err)
	}

	now := s.clock()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = project.Name
	}
	q := &Quote{
		BusinessID:     actor.BusinessID,
		ProjectID:      project.ID,
		ClientID:       clientID,
		Status:         QuoteStatusDraft,
		Currency:       currencyCode,
		Title:          title,
		Note:           req.Note,
		DepositPercent: req.DepositPercent,
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Lines:          lines,
	}
	if err := applyTotals(q); err != nil {
		return nil, s.reject(ctx, "create_quote", err)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertQuote(ctx, q)
		if err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		q.ID = id
		if err := tx.ReplaceQuoteLines(ctx, id, q.Lines); err != nil {
			return fmt.Errorf("insert quote lines: %w", err)
		}
		return s.audit(ctx, tx, actor, entityQuote, id, "quote.created", now, map[string]any{
			"project_id":  q.ProjectID,
			"total_cents": q.TotalCents,
			"lines":       len(q.Lines),
		})
	})
	if err != nil {
		return nil, s.reject(ctx, "create_quote", err)
	}
	for i := range q.Lines {
		q.Lines[i].DocumentID = q.ID
	}
	s.logger.InfoContext(ctx, "quote draft created",
		slog.Int64("business_id", q.BusinessID),
		slog.Int64("id", q.ID),
		slog.Int("warnings", len(warnings)))
	return &QuoteResult{Quote: q, Warnings: warnings}, nil
}

// ReplaceQuoteLines swaps every line of a DRAFT quote and recomputes its
// totals in the same transaction.
func (s *Service) ReplaceQuoteLines(ctx context.Context, actor shared.Actor, quoteID int64, req ReplaceQuoteLinesRequest) (*QuoteResult, error) {
	if err := s.validate(req); err != nil {
		return nil, s.reject(ctx, "replace_lines", err)
	}
	lines, warnings, err := s.priceLines(ctx, actor.BusinessID, req.Lines)
	if err != nil {
		return nil, s.reject(ctx, "replace_lines", err)
	}

	var out *Quote
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, actor.BusinessID, quoteID)
		if err != nil {
			return err
		}
		if !q.Status.Phase().LinesEditable() {
			return fmt.Errorf("%w (status %s)", ErrLinesFrozen, q.Status)
		}
		if req.DepositPercent != nil {
			q.DepositPercent = *req.DepositPercent
		}
		q.Lines = lines
		if err := applyTotals(q); err != nil {
			return err
		}
		now := s.clock()
		q.UpdatedBy = actor.UserID
		q.UpdatedAt = now
		if err := tx.ReplaceQuoteLines(ctx, q.ID, q.Lines); err != nil {
			return fmt.Errorf("replace quote lines: %w", err)
		}
		if err := tx.UpdateQuote(ctx, q); err != nil {
			return fmt.Errorf("update quote: %w", err)
		}
		out = q
		return s.audit(ctx, tx, actor, entityQuote, q.ID, "quote.lines_replaced", now, map[string]any{
			"total_cents": q.TotalCents,
			"lines":       len(q.Lines),
		})
	})
	if err != nil {
		return nil, s.reject(ctx, "replace_lines", err, slog.Int64("id", quoteID))
	}
	return &QuoteResult{Quote: out, Warnings: warnings}, nil
}

// UpdateQuoteMetadata edits title, note and dates while the quote is DRAFT
// or SENT.
func (s *Service) UpdateQuoteMetadata(ctx context.Context, actor shared.Actor, quoteID int64, req UpdateQuoteMetadataRequest) (*Quote, error) {
	if err := s.validate(req); err != nil {
		return nil, s.reject(ctx, "update_quote", err)
	}
	var out *Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, actor.BusinessID, quoteID)
		if err != nil {
			return err
		}
		if !q.Status.Phase().MetadataEditable() {
			return fmt.Errorf("%w (status %s)", ErrMetadataFrozen, q.Status)
		}
		if req.Title != nil {
			q.Title = strings.TrimSpace(*req.Title)
		}
		if req.Note != nil {
			q.Note = req.Note
		}
		if req.IssuedAt != nil {
			q.IssuedAt = timePtr(req.IssuedAt.UTC())
		}
		if req.ExpiresAt != nil {
			q.ExpiresAt = timePtr(req.ExpiresAt.UTC())
		}
		if q.IssuedAt != nil && q.ExpiresAt != nil && q.ExpiresAt.Before(*q.IssuedAt) {
			return fmt.Errorf("%w: expiresAt precedes issuedAt", shared.ErrValidation)
		}
		now := s.clock()
		q.UpdatedBy = actor.UserID
		q.UpdatedAt = now
		if err := tx.UpdateQuote(ctx, q); err != nil {
			return fmt.Errorf("update quote: %w", err)
		}
		out = q
		return s.audit(ctx, tx, actor, entityQuote, q.ID, "quote.updated", now, nil)
	})
	if err != nil {
		return nil, s.reject(ctx, "update_quote", err, slog.Int64("id", quoteID))
	}
	return out, nil
}

// TransitionQuote moves a quote along the status table. Asking for SENT on
// an already SENT quote returns it unchanged so issuance can be retried.
func (s *Service) TransitionQuote(ctx context.Context, actor shared.Actor, quoteID int64, req TransitionQuoteRequest) (*Quote, error) {
	if err := s.validate(req); err != nil {
		return nil, s.reject(ctx, "transition_quote", err)
	}
	if req.SignedAt != nil && req.Target != QuoteStatusSigned {
		return nil, s.reject(ctx, "transition_quote", ErrSignedAtNotAllowed)
	}
	if req.Target == QuoteStatusCancelled {
		reason, err := normalizeCancelReason(req.CancelReason)
		if err != nil {
			return nil, s.reject(ctx, "transition_quote", err)
		}
		req.CancelReason = reason
	}

	if req.Target != QuoteStatusSent {
		return s.transitionQuote(ctx, actor, quoteID, req, nil)
	}
	// Duplicate issue requests in this process share one transaction; each
	// caller gets its own copy of the result.
	key := fmt.Sprintf("quote:%d:%d:%s", actor.BusinessID, quoteID, req.Target)
	v, err, _ := s.issuing.Do(key, func() (any, error) {
		return s.transitionQuote(ctx, actor, quoteID, req, nil)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote).Clone(), nil
}

// CancelQuote is TransitionQuote to CANCELLED with a reason.
func (s *Service) CancelQuote(ctx context.Context, actor shared.Actor, quoteID int64, reason string) (*Quote, error) {
	return s.TransitionQuote(ctx, actor, quoteID, TransitionQuoteRequest{
		Target:       QuoteStatusCancelled,
		CancelReason: reason,
	})
}

func (s *Service) transitionQuote(ctx context.Context, actor shared.Actor, quoteID int64, req TransitionQuoteRequest, guard func(*Quote) error) (*Quote, error) {
	var (
		out  *Quote
		done committed
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, actor.BusinessID, quoteID)
		if err != nil {
			return err
		}
		if q.Status == req.Target && req.Target == QuoteStatusSent {
			out = q
			return nil
		}
		if !q.Status.CanTransitionTo(req.Target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.Status, req.Target)
		}
		if guard != nil {
			if err := guard(q); err != nil {
				return err
			}
		}

		from := q.Status
		now := s.clock()
		numbered := false
		switch req.Target {
		case QuoteStatusSent:
			if numbered, err = s.enterSent(ctx, tx, q, req.IssuedAt, now); err != nil {
				return err
			}
		case QuoteStatusSigned:
			if q.SignedAt == nil {
				signedAt := now
				if req.SignedAt != nil {
					signedAt = req.SignedAt.UTC()
				}
				q.SignedAt = &signedAt
			}
		case QuoteStatusCancelled:
			q.CancelledAt = timePtr(now)
			q.CancelReason = strPtr(req.CancelReason)
		}

		q.Status = req.Target
		q.UpdatedBy = actor.UserID
		q.UpdatedAt = now
		if err := tx.UpdateQuote(ctx, q); err != nil {
			return fmt.Errorf("update quote: %w", err)
		}

		switch req.Target {
		case QuoteStatusSigned:
			if err := s.tracker.PointAtSigned(ctx, tx, q); err != nil {
				return err
			}
		case QuoteStatusCancelled:
			if err := s.tracker.Rederive(ctx, tx, q.BusinessID, q.ProjectID, q.ID); err != nil {
				return err
			}
		}

		meta := map[string]any{"from": string(from), "to": string(q.Status)}
		if q.Number != nil {
			meta["number"] = *q.Number
		}
		if q.CancelReason != nil && q.Status == QuoteStatusCancelled {
			meta["reason"] = *q.CancelReason
		}
		if err := s.audit(ctx, tx, actor, entityQuote, q.ID, "quote.status_changed", now, meta); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
		out = q
		done = committed{document: docQuote, from: string(from), to: string(q.Status), numbered: numbered}
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "transition_quote", err,
			slog.Int64("id", quoteID), slog.String("to", string(req.Target)))
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

// enterSent applies the issuance side effects: checks the lines, stamps
// issue and expiry dates, then assigns the number and freezes snapshots
// only where still missing.
func (s *Service) enterSent(ctx context.Context, tx TxRepository, q *Quote, issuedAt *time.Time, now time.Time) (bool, error) {
	if len(q.Lines) == 0 {
		return false, ErrNoLines
	}
	if missing := q.MissingPriceLines(); len(missing) > 0 {
		return false, &MissingPriceError{Lines: missing}
	}
	if q.IssuedAt == nil {
		at := now
		if issuedAt != nil {
			at = issuedAt.UTC()
		}
		q.IssuedAt = &at
	}
	if q.ExpiresAt == nil {
		q.ExpiresAt = timePtr(q.IssuedAt.AddDate(0, 0, s.cfg.QuoteValidityDays))
	}

	numbered := false
	if q.Number == nil {
		number, err := s.numbers.Assign(ctx, tx, numbering.DocumentQuote, q.BusinessID, *q.IssuedAt)
		if err != nil {
			return false, fmt.Errorf("assign quote number: %w", err)
		}
		q.Number = &number
		numbered = true
	}

	fields := q.snapshotFields()
	if err := s.freeze(ctx, tx, &fields, q.BusinessID, q.ClientID, q.ProjectID); err != nil {
		return false, err
	}
	q.setSnapshotFields(fields)
	return numbered, nil
}

// DeleteQuote removes a DRAFT or CANCELLED quote that no invoice references.
func (s *Service) DeleteQuote(ctx context.Context, actor shared.Actor, quoteID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, actor.BusinessID, quoteID)
		if err != nil {
			return err
		}
		if q.Status != QuoteStatusDraft && q.Status != QuoteStatusCancelled {
			return fmt.Errorf("%w (status %s)", ErrDeleteNotAllowed, q.Status)
		}
		invoiceID, err := tx.InvoiceIDForQuote(ctx, actor.BusinessID, q.ID)
		if err != nil {
			return fmt.Errorf("check invoice: %w", err)
		}
		if invoiceID != nil {
			return fmt.Errorf("%w (invoice %d)", ErrDeleteNotAllowed, *invoiceID)
		}
		if err := tx.DeleteQuote(ctx, actor.BusinessID, q.ID); err != nil {
			return fmt.Errorf("delete quote: %w", err)
		}
		return s.audit(ctx, tx, actor, entityQuote, q.ID, "quote.deleted", s.clock(), map[string]any{"status": string(q.Status)})
	})
	return s.reject(ctx, "delete_quote", err, slog.Int64("id", quoteID))
}

// GetQuote returns a quote with its lines.
func (s *Service) GetQuote(ctx context.Context, actor shared.Actor, quoteID int64) (*Quote, error) {
	return s.repo.GetQuote(ctx, actor.BusinessID, quoteID)
}

var errNotDue = fmt.Errorf("%w: quote not due for expiry", shared.ErrStateConflict)

// ExpireDueQuotes moves every SENT quote whose expiry date is at or before
// asOf to EXPIRED. Quotes changed concurrently are skipped. It returns the
// number of quotes expired.
func (s *Service) ExpireDueQuotes(ctx context.Context, asOf time.Time) (int, error) {
	guard := func(q *Quote) error {
		if q.ExpiresAt == nil || q.ExpiresAt.After(asOf) {
			return errNotDue
		}
		return nil
	}

	expired := 0
	var errs []error
	for {
		refs, err := s.repo.ListExpiredQuotes(ctx, asOf, expirySweepBatch)
		if err != nil {
			return expired, errors.Join(append(errs, fmt.Errorf("list expired quotes: %w", err))...)
		}
		batch := 0
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return expired, errors.Join(append(errs, err)...)
			}
			system := shared.Actor{BusinessID: ref.BusinessID, Role: "system"}
			_, err := s.transitionQuote(ctx, system, ref.ID, TransitionQuoteRequest{Target: QuoteStatusExpired}, guard)
			switch {
			case err == nil:
				batch++
			case isAny(err, errNotDue, ErrInvalidTransition, ErrQuoteNotFound):
				continue
			default:
				errs = append(errs, fmt.Errorf("expire quote %d: %w", ref.ID, err))
			}
		}
		expired += batch
		// A short or stuck page means nothing more can be expired this run.
		if len(refs) < expirySweepBatch || batch == 0 {
			return expired, errors.Join(errs...)
		}
	}
}
