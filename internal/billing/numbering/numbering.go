// Package numbering assigns per-business, per-document-type sequential
// numbers. The counter lives in the store and is advanced by an atomic
// increment-and-read inside the caller's transaction, so a rolled back
// issuance never consumes a number.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DocumentType scopes a sequence.
type DocumentType string

const (
	DocumentQuote   DocumentType = "QUOTE"
	DocumentInvoice DocumentType = "INVOICE"
)

// ErrUnknownDocumentType is returned when no template is configured.
var ErrUnknownDocumentType = errors.New("numbering: unknown document type")

// Sequencer advances the counter for (businessID, docType) and returns the
// new value. Implementations must be atomic with respect to concurrent
// callers.
type Sequencer interface {
	NextSequence(ctx context.Context, businessID int64, docType DocumentType) (int64, error)
}

// Service formats sequence values according to per-type templates.
type Service struct {
	templates map[DocumentType]string
}

// NewService builds a Service. Empty templates fall back to the defaults.
func NewService(quoteTemplate, invoiceTemplate string) *Service {
	if quoteTemplate == "" {
		quoteTemplate = DefaultQuoteTemplate
	}
	if invoiceTemplate == "" {
		invoiceTemplate = DefaultInvoiceTemplate
	}
	return &Service{templates: map[DocumentType]string{
		DocumentQuote:   quoteTemplate,
		DocumentInvoice: invoiceTemplate,
	}}
}

// Assign draws the next value from seq and formats it. Callers only invoke
// it for documents that do not hold a number yet.
func (s *Service) Assign(ctx context.Context, seq Sequencer, docType DocumentType, businessID int64, ref time.Time) (string, error) {
	tmpl, ok := s.templates[docType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDocumentType, docType)
	}
	next, err := seq.NextSequence(ctx, businessID, docType)
	if err != nil {
		return "", fmt.Errorf("next sequence: %w", err)
	}
	return Format(tmpl, ref, next)
}

// Querier is the subset of pgx.Tx used by TxSequencer.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxSequencer advances document_sequences through the given transaction.
type TxSequencer struct {
	q Querier
}

// NewTxSequencer binds a sequencer to q.
func NewTxSequencer(q Querier) TxSequencer {
	return TxSequencer{q: q}
}

const nextSequenceSQL = `
INSERT INTO document_sequences (business_id, doc_type, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (business_id, doc_type)
DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`

// NextSequence implements Sequencer.
func (s TxSequencer) NextSequence(ctx context.Context, businessID int64, docType DocumentType) (int64, error) {
	var value int64
	if err := s.q.QueryRow(ctx, nextSequenceSQL, businessID, string(docType)).Scan(&value); err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}
	return value, nil
}
