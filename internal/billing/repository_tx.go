package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Constraint names declared in migrations/0001_billing.up.sql.
const (
	constraintQuoteNumber   = "quotes_business_number_key"
	constraintInvoiceNumber = "invoices_business_number_key"
	constraintInvoiceQuote  = "invoices_business_quote_key"
)

type pgTx struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

var (
	_ Repository   = (*PGRepository)(nil)
	_ TxRepository = (*pgTx)(nil)
)

func (t *pgTx) NextSequence(ctx context.Context, businessID int64, docType numbering.DocumentType) (int64, error) {
	return numbering.NewTxSequencer(t.tx).NextSequence(ctx, businessID, docType)
}

// Snapshot sources are read on the transaction's connection so issuance
// never asks the pool for a second one.

func (t *pgTx) GetBusiness(ctx context.Context, businessID int64) (*Business, error) {
	return selectBusiness(ctx, t.tx, businessID)
}

func (t *pgTx) GetClient(ctx context.Context, businessID, clientID int64) (*Client, error) {
	return selectClient(ctx, t.tx, businessID, clientID)
}

func (t *pgTx) GetProject(ctx context.Context, businessID, projectID int64) (*Project, error) {
	return selectProject(ctx, t.tx, businessID, projectID, false)
}

// ============================================================================
// QUOTES
// ============================================================================

func (t *pgTx) LockQuote(ctx context.Context, businessID, quoteID int64) (*Quote, error) {
	return selectQuote(ctx, t.tx, businessID, quoteID, true)
}

func (t *pgTx) InsertQuote(ctx context.Context, q *Quote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO quotes (business_id, project_id, client_id, status, currency, title, note,
		total_cents, deposit_cents, balance_cents, deposit_percent, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		q.BusinessID, q.ProjectID, q.ClientID, string(q.Status), q.Currency, q.Title, q.Note,
		q.TotalCents, q.DepositCents, q.BalanceCents, q.DepositPercent, q.CreatedBy, q.UpdatedBy, q.CreatedAt, q.UpdatedAt,
	).Scan(&id)
	return id, err
}

// UpdateQuote writes every mutable column. Snapshot columns are only ever
// written while NULL, so a populated snapshot survives any later update.
func (t *pgTx) UpdateQuote(ctx context.Context, q *Quote) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET
		client_id = $3, status = $4, number = COALESCE(number, $5), title = $6, note = $7,
		total_cents = $8, deposit_cents = $9, balance_cents = $10, deposit_percent = $11,
		issued_at = $12, signed_at = $13, expires_at = $14, cancelled_at = $15, cancel_reason = $16,
		issuer_snapshot_json = COALESCE(issuer_snapshot_json, $17),
		client_snapshot_json = COALESCE(client_snapshot_json, $18),
		prestations_snapshot_text = COALESCE(prestations_snapshot_text, $19),
		updated_by = $20, updated_at = $21
		WHERE business_id = $1 AND id = $2`,
		q.BusinessID, q.ID, q.ClientID, string(q.Status), q.Number, q.Title, q.Note,
		q.TotalCents, q.DepositCents, q.BalanceCents, q.DepositPercent,
		q.IssuedAt, q.SignedAt, q.ExpiresAt, q.CancelledAt, q.CancelReason,
		q.IssuerSnapshotJSON, q.ClientSnapshotJSON, q.PrestationsSnapshotText,
		q.UpdatedBy, q.UpdatedAt,
	)
	if db.IsUniqueViolation(err, constraintQuoteNumber) {
		return ErrDuplicateNumber
	}
	return err
}

func (t *pgTx) ReplaceQuoteLines(ctx context.Context, quoteID int64, lines []ServiceLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM quote_lines WHERE document_id = $1`, quoteID); err != nil {
		return err
	}
	return t.insertLines(ctx, "quote_lines", quoteID, lines)
}

func (t *pgTx) DeleteQuote(ctx context.Context, businessID, quoteID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM quote_lines WHERE document_id = $1`, quoteID); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM quotes WHERE business_id = $1 AND id = $2`, businessID, quoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrQuoteNotFound, quoteID)
	}
	return nil
}

func (t *pgTx) LatestSignedQuote(ctx context.Context, projectID, excludingQuoteID int64) (*int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM quotes
		WHERE project_id = $1 AND id <> $2 AND status = 'SIGNED'
		ORDER BY issued_at DESC NULLS LAST, id DESC
		LIMIT 1`, projectID, excludingQuoteID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ============================================================================
// PROJECTS
// ============================================================================

func (t *pgTx) LockProject(ctx context.Context, businessID, projectID int64) (*Project, error) {
	return selectProject(ctx, t.tx, businessID, projectID, true)
}

func (t *pgTx) SetProjectReference(ctx context.Context, projectID int64, quoteID *int64, status ProjectBillingStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE projects
		SET billing_reference_quote_id = $2, billing_status = $3
		WHERE id = $1`, projectID, quoteID, string(status))
	return err
}

// ============================================================================
// INVOICES
// ============================================================================

func (t *pgTx) InvoiceIDForQuote(ctx context.Context, businessID, quoteID int64) (*int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM invoices WHERE business_id = $1 AND quote_id = $2`,
		businessID, quoteID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (t *pgTx) InsertInvoice(ctx context.Context, inv *Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (business_id, project_id, client_id, quote_id, status, currency,
		title, note, total_cents, deposit_cents, balance_cents, deposit_percent, due_at,
		issuer_snapshot_json, client_snapshot_json, prestations_snapshot_text,
		created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`,
		inv.BusinessID, inv.ProjectID, inv.ClientID, inv.QuoteID, string(inv.Status), inv.Currency,
		inv.Title, inv.Note, inv.TotalCents, inv.DepositCents, inv.BalanceCents, inv.DepositPercent, inv.DueAt,
		inv.IssuerSnapshotJSON, inv.ClientSnapshotJSON, inv.PrestationsSnapshotText,
		inv.CreatedBy, inv.UpdatedBy, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&id)
	if db.IsUniqueViolation(err, constraintInvoiceQuote) {
		return 0, ErrDuplicateInvoice
	}
	if err != nil {
		return 0, err
	}
	if err := t.insertLines(ctx, "invoice_lines", id, inv.Lines); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *pgTx) LockInvoice(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	return selectInvoice(ctx, t.tx, businessID, invoiceID, true)
}

func (t *pgTx) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET
		status = $3, number = COALESCE(number, $4), note = $5,
		issued_at = $6, paid_at = $7, cancelled_at = $8, cancel_reason = $9,
		issuer_snapshot_json = COALESCE(issuer_snapshot_json, $10),
		client_snapshot_json = COALESCE(client_snapshot_json, $11),
		prestations_snapshot_text = COALESCE(prestations_snapshot_text, $12),
		updated_by = $13, updated_at = $14
		WHERE business_id = $1 AND id = $2`,
		inv.BusinessID, inv.ID, string(inv.Status), inv.Number, inv.Note,
		inv.IssuedAt, inv.PaidAt, inv.CancelledAt, inv.CancelReason,
		inv.IssuerSnapshotJSON, inv.ClientSnapshotJSON, inv.PrestationsSnapshotText,
		inv.UpdatedBy, inv.UpdatedAt,
	)
	if db.IsUniqueViolation(err, constraintInvoiceNumber) {
		return ErrDuplicateNumber
	}
	return err
}

// ============================================================================
// SHARED
// ============================================================================

// insertLines batches the line inserts and writes the generated ids back.
func (t *pgTx) insertLines(ctx context.Context, table string, documentID int64, lines []ServiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range lines {
		l := &lines[i]
		l.DocumentID = documentID
		batch.Queue(`INSERT INTO `+table+` (document_id, service_id, label, description, quantity, unit_price_cents,
			discount_type, discount_value, original_unit_price_cents, billing_unit, total_cents,
			price_source, missing_price, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id`,
			documentID, l.ServiceID, l.Label, l.Description, l.Quantity, l.UnitPriceCents,
			string(l.Discount.Type), l.Discount.Value, l.OriginalUnitPriceCents, string(l.BillingUnit), l.TotalCents,
			string(l.PriceSource), l.MissingPrice, l.Position,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&l.ID)
		})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (t *pgTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return t.audit.Record(ctx, t.tx, log)
}
