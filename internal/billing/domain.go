package billing

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/snapshot"
)

// ============================================================================
// QUOTE STATUS
// ============================================================================

type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "DRAFT"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusSigned    QuoteStatus = "SIGNED"
	QuoteStatusCancelled QuoteStatus = "CANCELLED"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusDraft:  {QuoteStatusSent, QuoteStatusCancelled},
	QuoteStatusSent:   {QuoteStatusSigned, QuoteStatusCancelled, QuoteStatusExpired},
	QuoteStatusSigned: {QuoteStatusCancelled},
}

// QuoteStatuses lists every status in lifecycle order.
func QuoteStatuses() []QuoteStatus {
	return []QuoteStatus{QuoteStatusDraft, QuoteStatusSent, QuoteStatusSigned, QuoteStatusCancelled, QuoteStatusExpired}
}

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusSigned, QuoteStatusCancelled, QuoteStatusExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal move from s. Same-status
// pairs are never legal here; the SENT retry path is handled by the caller.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Invoiceable reports whether an invoice may be derived from a quote in s.
func (s QuoteStatus) Invoiceable() bool {
	return s == QuoteStatusSent || s == QuoteStatusSigned
}

// Phase groups statuses by what may still change on the document.
type Phase int

const (
	PhaseEditable Phase = iota
	PhaseIssued
	PhaseLocked
	PhaseTerminal
)

func (s QuoteStatus) Phase() Phase {
	switch s {
	case QuoteStatusDraft:
		return PhaseEditable
	case QuoteStatusSent:
		return PhaseIssued
	case QuoteStatusSigned:
		return PhaseLocked
	default:
		return PhaseTerminal
	}
}

// LinesEditable is true only before issuance; totals freeze with the lines.
func (p Phase) LinesEditable() bool { return p == PhaseEditable }

// MetadataEditable covers note, title, issuedAt and expiresAt.
func (p Phase) MetadataEditable() bool { return p == PhaseEditable || p == PhaseIssued }

func (p Phase) String() string {
	switch p {
	case PhaseEditable:
		return "editable"
	case PhaseIssued:
		return "issued"
	case PhaseLocked:
		return "locked"
	default:
		return "terminal"
	}
}

// ============================================================================
// INVOICE STATUS
// ============================================================================

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft: {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:  {InvoiceStatusPaid, InvoiceStatusCancelled},
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ============================================================================
// DOCUMENTS
// ============================================================================

// ServiceLine is a priced line shared by quotes and invoices.
type ServiceLine struct {
	ID                     int64               `json:"id"`
	DocumentID             int64               `json:"document_id"`
	ServiceID              *int64              `json:"service_id,omitempty"`
	Label                  string              `json:"label"`
	Description            *string             `json:"description,omitempty"`
	Quantity               int64               `json:"quantity"`
	UnitPriceCents         int64               `json:"unit_price_cents"`
	Discount               pricing.Discount    `json:"discount"`
	OriginalUnitPriceCents *int64              `json:"original_unit_price_cents,omitempty"`
	BillingUnit            pricing.BillingUnit `json:"billing_unit"`
	TotalCents             int64               `json:"total_cents"`
	PriceSource            pricing.PriceSource `json:"price_source"`
	MissingPrice           bool                `json:"missing_price"`
	Position               int                 `json:"position"`
}

// Quote is a priced proposal. Lines and money fields freeze once the quote
// leaves DRAFT; snapshot fields freeze once populated.
type Quote struct {
	ID                      int64         `json:"id"`
	BusinessID              int64         `json:"business_id"`
	ProjectID               int64         `json:"project_id"`
	ClientID                *int64        `json:"client_id,omitempty"`
	Status                  QuoteStatus   `json:"status"`
	Number                  *string       `json:"number,omitempty"`
	Currency                string        `json:"currency"`
	Title                   string        `json:"title"`
	Note                    *string       `json:"note,omitempty"`
	TotalCents              int64         `json:"total_cents"`
	DepositCents            int64         `json:"deposit_cents"`
	BalanceCents            int64         `json:"balance_cents"`
	DepositPercent          int           `json:"deposit_percent"`
	IssuedAt                *time.Time    `json:"issued_at,omitempty"`
	SignedAt                *time.Time    `json:"signed_at,omitempty"`
	ExpiresAt               *time.Time    `json:"expires_at,omitempty"`
	CancelledAt             *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason            *string       `json:"cancel_reason,omitempty"`
	IssuerSnapshotJSON      *string       `json:"issuer_snapshot_json,omitempty"`
	ClientSnapshotJSON      *string       `json:"client_snapshot_json,omitempty"`
	PrestationsSnapshotText *string       `json:"prestations_snapshot_text,omitempty"`
	CreatedBy               int64         `json:"created_by"`
	UpdatedBy               int64         `json:"updated_by"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
	Lines                   []ServiceLine `json:"lines"`
}

// Clone returns a deep copy of q.
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	c := *q
	c.ClientID = clonePtr(q.ClientID)
	c.Number = clonePtr(q.Number)
	c.Note = clonePtr(q.Note)
	c.IssuedAt = clonePtr(q.IssuedAt)
	c.SignedAt = clonePtr(q.SignedAt)
	c.ExpiresAt = clonePtr(q.ExpiresAt)
	c.CancelledAt = clonePtr(q.CancelledAt)
	c.CancelReason = clonePtr(q.CancelReason)
	c.IssuerSnapshotJSON = clonePtr(q.IssuerSnapshotJSON)
	c.ClientSnapshotJSON = clonePtr(q.ClientSnapshotJSON)
	c.PrestationsSnapshotText = clonePtr(q.PrestationsSnapshotText)
	c.Lines = copyLines(q.Lines)
	return &c
}

func (q *Quote) snapshotFields() snapshot.Fields {
	return snapshot.Fields{
		IssuerJSON:      q.IssuerSnapshotJSON,
		ClientJSON:      q.ClientSnapshotJSON,
		PrestationsText: q.PrestationsSnapshotText,
	}
}

func (q *Quote) setSnapshotFields(f snapshot.Fields) {
	q.IssuerSnapshotJSON = f.IssuerJSON
	q.ClientSnapshotJSON = f.ClientJSON
	q.PrestationsSnapshotText = f.PrestationsText
}

// MissingPriceLines returns the lines that have no resolved price.
func (q *Quote) MissingPriceLines() []ServiceLine {
	var out []ServiceLine
	for _, l := range q.Lines {
		if l.MissingPrice {
			out = append(out, l)
		}
	}
	return out
}

// Invoice is a billing document derived one-to-one from a quote.
type Invoice struct {
	ID                      int64         `json:"id"`
	BusinessID              int64         `json:"business_id"`
	ProjectID               int64         `json:"project_id"`
	ClientID                *int64        `json:"client_id,omitempty"`
	QuoteID                 *int64        `json:"quote_id,omitempty"`
	Status                  InvoiceStatus `json:"status"`
	Number                  *string       `json:"number,omitempty"`
	Currency                string        `json:"currency"`
	Title                   string        `json:"title"`
	Note                    *string       `json:"note,omitempty"`
	TotalCents              int64         `json:"total_cents"`
	DepositCents            int64         `json:"deposit_cents"`
	BalanceCents            int64         `json:"balance_cents"`
	DepositPercent          int           `json:"deposit_percent"`
	IssuedAt                *time.Time    `json:"issued_at,omitempty"`
	DueAt                   time.Time     `json:"due_at"`
	PaidAt                  *time.Time    `json:"paid_at,omitempty"`
	CancelledAt             *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason            *string       `json:"cancel_reason,omitempty"`
	IssuerSnapshotJSON      *string       `json:"issuer_snapshot_json,omitempty"`
	ClientSnapshotJSON      *string       `json:"client_snapshot_json,omitempty"`
	PrestationsSnapshotText *string       `json:"prestations_snapshot_text,omitempty"`
	CreatedBy               int64         `json:"created_by"`
	UpdatedBy               int64         `json:"updated_by"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
	Lines                   []ServiceLine `json:"lines"`
}

func (inv *Invoice) snapshotFields() snapshot.Fields {
	return snapshot.Fields{
		IssuerJSON:      inv.IssuerSnapshotJSON,
		ClientJSON:      inv.ClientSnapshotJSON,
		PrestationsText: inv.PrestationsSnapshotText,
	}
}

func (inv *Invoice) setSnapshotFields(f snapshot.Fields) {
	inv.IssuerSnapshotJSON = f.IssuerJSON
	inv.ClientSnapshotJSON = f.ClientJSON
	inv.PrestationsSnapshotText = f.PrestationsText
}

// ============================================================================
// COUNTERPARTIES
// ============================================================================

type ProjectBillingStatus string

const (
	ProjectBillingDraft  ProjectBillingStatus = "DRAFT"
	ProjectBillingSigned ProjectBillingStatus = "SIGNED"
)

// Project holds the billing reference pointer. When set, the reference is a
// SIGNED quote of the same project.
type Project struct {
	ID                      int64                `json:"id"`
	BusinessID              int64                `json:"business_id"`
	ClientID                *int64               `json:"client_id,omitempty"`
	Name                    string               `json:"name"`
	Description             string               `json:"description"`
	BillingReferenceQuoteID *int64               `json:"billing_reference_quote_id,omitempty"`
	BillingStatus           ProjectBillingStatus `json:"billing_status"`
}

// Business is the live issuer record.
type Business struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	LegalName        string `json:"legal_name"`
	TaxID            string `json:"tax_id"`
	AddressLine1     string `json:"address_line1"`
	AddressLine2     string `json:"address_line2"`
	PostalCode       string `json:"postal_code"`
	City             string `json:"city"`
	Country          string `json:"country"`
	IBAN             string `json:"iban"`
	BIC              string `json:"bic"`
	AccountName      string `json:"account_name"`
	TermsText        string `json:"terms_text"`
	CancellationText string `json:"cancellation_text"`
	LateFeesText     string `json:"late_fees_text"`
	DefaultCurrency  string `json:"default_currency"`
}

func (b Business) issuer() snapshot.Issuer {
	return snapshot.Issuer{
		Name:      b.Name,
		LegalName: b.LegalName,
		TaxID:     b.TaxID,
		Address: snapshot.Address{
			Line1:      b.AddressLine1,
			Line2:      b.AddressLine2,
			PostalCode: b.PostalCode,
			City:       b.City,
			Country:    b.Country,
		},
		Banking:          snapshot.Banking{IBAN: b.IBAN, BIC: b.BIC, AccountName: b.AccountName},
		TermsText:        b.TermsText,
		CancellationText: b.CancellationText,
		LateFeesText:     b.LateFeesText,
	}
}

// Client is the live client record.
type Client struct {
	ID                  int64  `json:"id"`
	BusinessID          int64  `json:"business_id"`
	Name                string `json:"name"`
	Company             string `json:"company"`
	BillingContactName  string `json:"billing_contact_name"`
	BillingContactEmail string `json:"billing_contact_email"`
	TaxID               string `json:"tax_id"`
	AddressLine1        string `json:"address_line1"`
	AddressLine2        string `json:"address_line2"`
	PostalCode          string `json:"postal_code"`
	City                string `json:"city"`
	Country             string `json:"country"`
}

func (c Client) clientSnapshot() snapshot.Client {
	return snapshot.Client{
		Name:         c.Name,
		Company:      c.Company,
		ContactName:  c.BillingContactName,
		ContactEmail: c.BillingContactEmail,
		TaxID:        c.TaxID,
		BillingAddress: snapshot.Address{
			Line1:      c.AddressLine1,
			Line2:      c.AddressLine2,
			PostalCode: c.PostalCode,
			City:       c.City,
			Country:    c.Country,
		},
	}
}

// QuoteRef identifies a quote across businesses, used by sweeps.
type QuoteRef struct {
	BusinessID int64
	ID         int64
}
