package billing

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// SourceLoader reads the live records a snapshot is built from.
type SourceLoader interface {
	GetBusiness(ctx context.Context, businessID int64) (*Business, error)
	GetClient(ctx context.Context, businessID, clientID int64) (*Client, error)
	GetProject(ctx context.Context, businessID, projectID int64) (*Project, error)
}

// Repository is the read side plus the transaction boundary.
type Repository interface {
	SourceLoader

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuote(ctx context.Context, businessID, quoteID int64) (*Quote, error)
	GetInvoice(ctx context.Context, businessID, invoiceID int64) (*Invoice, error)
	ListExpiredQuotes(ctx context.Context, asOf time.Time, limit int) ([]QuoteRef, error)
}

// TxRepository exposes the reads and writes of a single unit of work. Lock
// methods take a row lock held until the transaction ends.
type TxRepository interface {
	SourceLoader
	numbering.Sequencer

	// Quote operations
	LockQuote(ctx context.Context, businessID, quoteID int64) (*Quote, error)
	InsertQuote(ctx context.Context, q *Quote) (int64, error)
	UpdateQuote(ctx context.Context, q *Quote) error
	ReplaceQuoteLines(ctx context.Context, quoteID int64, lines []ServiceLine) error
	DeleteQuote(ctx context.Context, businessID, quoteID int64) error
	LatestSignedQuote(ctx context.Context, projectID, excludingQuoteID int64) (*int64, error)

	// Project operations
	LockProject(ctx context.Context, businessID, projectID int64) (*Project, error)
	SetProjectReference(ctx context.Context, projectID int64, quoteID *int64, status ProjectBillingStatus) error

	// Invoice operations
	InvoiceIDForQuote(ctx context.Context, businessID, quoteID int64) (*int64, error)
	InsertInvoice(ctx context.Context, inv *Invoice) (int64, error)
	LockInvoice(ctx context.Context, businessID, invoiceID int64) (*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}
