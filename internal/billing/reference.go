package billing

import (
	"context"
	"fmt"
	"log/slog"
)

// Tracker keeps a project's billing reference pointed at its authoritative
// SIGNED quote. It only runs inside the caller's transaction.
type Tracker struct {
	logger *slog.Logger
}

func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger}
}

// PointAtSigned makes q the reference of its project.
func (t *Tracker) PointAtSigned(ctx context.Context, tx TxRepository, q *Quote) error {
	project, err := tx.LockProject(ctx, q.BusinessID, q.ProjectID)
	if err != nil {
		return fmt.Errorf("lock project: %w", err)
	}
	if err := tx.SetProjectReference(ctx, project.ID, &q.ID, ProjectBillingSigned); err != nil {
		return fmt.Errorf("set project reference: %w", err)
	}
	return nil
}

// Rederive recomputes the reference after cancelledQuoteID was cancelled.
// Nothing changes unless that quote was the reference. The most recently
// issued remaining SIGNED quote takes over; with none left the reference is
// cleared and the project returns to DRAFT.
func (t *Tracker) Rederive(ctx context.Context, tx TxRepository, businessID, projectID, cancelledQuoteID int64) error {
	project, err := tx.LockProject(ctx, businessID, projectID)
	if err != nil {
		return fmt.Errorf("lock project: %w", err)
	}
	ref := project.BillingReferenceQuoteID
	if ref == nil || *ref != cancelledQuoteID {
		return nil
	}

	next, err := tx.LatestSignedQuote(ctx, projectID, cancelledQuoteID)
	if err != nil {
		return fmt.Errorf("find signed quote: %w", err)
	}
	status := ProjectBillingDraft
	if next != nil {
		status = ProjectBillingSigned
	}
	if err := tx.SetProjectReference(ctx, projectID, next, status); err != nil {
		return fmt.Errorf("set project reference: %w", err)
	}
	t.logger.InfoContext(ctx, "project billing reference rederived",
		slog.Int64("project_id", projectID),
		slog.Int64("cancelled_quote_id", cancelledQuoteID),
		slog.Any("reference_quote_id", next),
		slog.String("status", string(status)))
	return nil
}
