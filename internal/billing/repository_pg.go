package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool  *pgxpool.Pool
	audit *shared.AuditLogger
}

// NewPGRepository constructs a repository over pool.
func NewPGRepository(pool *pgxpool.Pool, audit *shared.AuditLogger) *PGRepository {
	if audit == nil {
		audit = shared.NewAuditLogger()
	}
	return &PGRepository{pool: pool, audit: audit}
}

// WithTx runs fn in a read-committed transaction; row locks taken by the
// Lock* methods serialize writers on the same document.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, audit: r.audit})
	})
}

// ============================================================================
// READS
// ============================================================================

const quoteColumns = `id, business_id, project_id, client_id, status, number, currency, title, note,
	total_cents, deposit_cents, balance_cents, deposit_percent,
	issued_at, signed_at, expires_at, cancelled_at, cancel_reason,
	issuer_snapshot_json, client_snapshot_json, prestations_snapshot_text,
	created_by, updated_by, created_at, updated_at`

const invoiceColumns = `id, business_id, project_id, client_id, quote_id, status, number, currency, title, note,
	total_cents, deposit_cents, balance_cents, deposit_percent,
	issued_at, due_at, paid_at, cancelled_at, cancel_reason,
	issuer_snapshot_json, client_snapshot_json, prestations_snapshot_text,
	created_by, updated_by, created_at, updated_at`

const lineColumns = `id, document_id, service_id, label, description, quantity, unit_price_cents,
	discount_type, discount_value, original_unit_price_cents, billing_unit, total_cents,
	price_source, missing_price, position`

func (r *PGRepository) GetQuote(ctx context.Context, businessID, quoteID int64) (*Quote, error) {
	return selectQuote(ctx, r.pool, businessID, quoteID, false)
}

func (r *PGRepository) GetInvoice(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	return selectInvoice(ctx, r.pool, businessID, invoiceID, false)
}

func (r *PGRepository) ListExpiredQuotes(ctx context.Context, asOf time.Time, limit int) ([]QuoteRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT business_id, id FROM quotes
		WHERE status = 'SENT' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at, id
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (QuoteRef, error) {
		var ref QuoteRef
		err := row.Scan(&ref.BusinessID, &ref.ID)
		return ref, err
	})
}

func (r *PGRepository) GetBusiness(ctx context.Context, businessID int64) (*Business, error) {
	return selectBusiness(ctx, r.pool, businessID)
}

func (r *PGRepository) GetClient(ctx context.Context, businessID, clientID int64) (*Client, error) {
	return selectClient(ctx, r.pool, businessID, clientID)
}

func (r *PGRepository) GetProject(ctx context.Context, businessID, projectID int64) (*Project, error) {
	return selectProject(ctx, r.pool, businessID, projectID, false)
}

// ============================================================================
// SHARED SELECTS
// ============================================================================

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func selectQuote(ctx context.Context, q dbtx, businessID, quoteID int64, forUpdate bool) (*Quote, error) {
	var (
		out    Quote
		status string
	)
	err := q.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes
		WHERE business_id = $1 AND id = $2`+lockClause(forUpdate), businessID, quoteID).Scan(
		&out.ID, &out.BusinessID, &out.ProjectID, &out.ClientID, &status, &out.Number, &out.Currency, &out.Title, &out.Note,
		&out.TotalCents, &out.DepositCents, &out.BalanceCents, &out.DepositPercent,
		&out.IssuedAt, &out.SignedAt, &out.ExpiresAt, &out.CancelledAt, &out.CancelReason,
		&out.IssuerSnapshotJSON, &out.ClientSnapshotJSON, &out.PrestationsSnapshotText,
		&out.CreatedBy, &out.UpdatedBy, &out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w %d", ErrQuoteNotFound, quoteID)
	}
	if err != nil {
		return nil, fmt.Errorf("select quote: %w", err)
	}
	out.Status = QuoteStatus(status)
	out.Lines, err = selectLines(ctx, q, "quote_lines", out.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func selectInvoice(ctx context.Context, q dbtx, businessID, invoiceID int64, forUpdate bool) (*Invoice, error) {
	var (
		out    Invoice
		status string
	)
	err := q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE business_id = $1 AND id = $2`+lockClause(forUpdate), businessID, invoiceID).Scan(
		&out.ID, &out.BusinessID, &out.ProjectID, &out.ClientID, &out.QuoteID, &status, &out.Number, &out.Currency, &out.Title, &out.Note,
		&out.TotalCents, &out.DepositCents, &out.BalanceCents, &out.DepositPercent,
		&out.IssuedAt, &out.DueAt, &out.PaidAt, &out.CancelledAt, &out.CancelReason,
		&out.IssuerSnapshotJSON, &out.ClientSnapshotJSON, &out.PrestationsSnapshotText,
		&out.CreatedBy, &out.UpdatedBy, &out.CreatedAt, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w %d", ErrInvoiceNotFound, invoiceID)
	}
	if err != nil {
		return nil, fmt.Errorf("select invoice: %w", err)
	}
	out.Status = InvoiceStatus(status)
	out.Lines, err = selectLines(ctx, q, "invoice_lines", out.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func selectBusiness(ctx context.Context, q dbtx, businessID int64) (*Business, error) {
	var b Business
	err := q.QueryRow(ctx, `SELECT id, name, legal_name, tax_id, address_line1, address_line2,
		postal_code, city, country, iban, bic, account_name,
		terms_text, cancellation_text, late_fees_text, default_currency
		FROM businesses WHERE id = $1`, businessID).Scan(
		&b.ID, &b.Name, &b.LegalName, &b.TaxID, &b.AddressLine1, &b.AddressLine2,
		&b.PostalCode, &b.City, &b.Country, &b.IBAN, &b.BIC, &b.AccountName,
		&b.TermsText, &b.CancellationText, &b.LateFeesText, &b.DefaultCurrency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func selectClient(ctx context.Context, q dbtx, businessID, clientID int64) (*Client, error) {
	var c Client
	err := q.QueryRow(ctx, `SELECT id, business_id, name, company, billing_contact_name,
		billing_contact_email, tax_id, address_line1, address_line2, postal_code, city, country
		FROM clients WHERE business_id = $1 AND id = $2`, businessID, clientID).Scan(
		&c.ID, &c.BusinessID, &c.Name, &c.Company, &c.BillingContactName,
		&c.BillingContactEmail, &c.TaxID, &c.AddressLine1, &c.AddressLine2, &c.PostalCode, &c.City, &c.Country,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func selectProject(ctx context.Context, q dbtx, businessID, projectID int64, forUpdate bool) (*Project, error) {
	var (
		p      Project
		status string
	)
	err := q.QueryRow(ctx, `SELECT id, business_id, client_id, name, description,
		billing_reference_quote_id, billing_status
		FROM projects WHERE business_id = $1 AND id = $2`+lockClause(forUpdate), businessID, projectID).Scan(
		&p.ID, &p.BusinessID, &p.ClientID, &p.Name, &p.Description, &p.BillingReferenceQuoteID, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w %d", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("select project: %w", err)
	}
	p.BillingStatus = ProjectBillingStatus(status)
	return &p, nil
}

// selectLines reads the lines of a document from table, which is one of
// the two fixed line tables.
func selectLines(ctx context.Context, q dbtx, table string, documentID int64) ([]ServiceLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM `+table+`
		WHERE document_id = $1 ORDER BY position, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return lines, nil
}

func scanLine(row pgx.CollectableRow) (ServiceLine, error) {
	var (
		l            ServiceLine
		discountType string
		unit         string
		source       string
	)
	err := row.Scan(&l.ID, &l.DocumentID, &l.ServiceID, &l.Label, &l.Description, &l.Quantity, &l.UnitPriceCents,
		&discountType, &l.Discount.Value, &l.OriginalUnitPriceCents, &unit, &l.TotalCents,
		&source, &l.MissingPrice, &l.Position)
	l.Discount.Type = pricing.DiscountType(discountType)
	l.BillingUnit = pricing.BillingUnit(unit)
	l.PriceSource = pricing.PriceSource(source)
	return l, err
}
