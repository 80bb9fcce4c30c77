package billing

import (
	"time"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/pricing"
)

// LineRequest describes one line to price. UnitPriceCents is the explicit
// override; catalog prices are looked up through ServiceID.
type LineRequest struct {
	ServiceID      *int64              `json:"service_id,omitempty" validate:"omitempty,gt=0"`
	Label          string              `json:"label" validate:"required_without=ServiceID,max=200"`
	Description    *string             `json:"description,omitempty" validate:"omitempty,max=2000"`
	Quantity       int64               `json:"quantity" validate:"gt=0"`
	UnitPriceCents *int64              `json:"unit_price_cents,omitempty" validate:"omitempty,gte=0"`
	Discount       pricing.Discount    `json:"discount"`
	BillingUnit    pricing.BillingUnit `json:"billing_unit,omitempty" validate:"omitempty,oneof=ONE_OFF MONTHLY"`
}

type CreateQuoteDraftRequest struct {
	ProjectID      int64         `json:"project_id" validate:"required,gt=0"`
	ClientID       *int64        `json:"client_id,omitempty" validate:"omitempty,gt=0"`
	Title          string        `json:"title" validate:"max=200"`
	Note           *string       `json:"note,omitempty" validate:"omitempty,max=5000"`
	Currency       string        `json:"currency,omitempty" validate:"omitempty,currency"`
	DepositPercent int           `json:"deposit_percent" validate:"gte=0,lte=100"`
	Lines          []LineRequest `json:"lines" validate:"dive"`
}

type ReplaceQuoteLinesRequest struct {
	Lines          []LineRequest `json:"lines" validate:"dive"`
	DepositPercent *int          `json:"deposit_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type UpdateQuoteMetadataRequest struct {
	Title     *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	Note      *string    `json:"note,omitempty" validate:"omitempty,max=5000"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TransitionQuoteRequest moves a quote to Target. IssuedAt applies on the
// way into SENT, SignedAt only into SIGNED, CancelReason only into CANCELLED.
type TransitionQuoteRequest struct {
	Target       QuoteStatus `json:"target" validate:"required,oneof=DRAFT SENT SIGNED CANCELLED EXPIRED"`
	IssuedAt     *time.Time  `json:"issued_at,omitempty"`
	SignedAt     *time.Time  `json:"signed_at,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
}

type TransitionInvoiceRequest struct {
	Target       InvoiceStatus `json:"target" validate:"required,oneof=DRAFT SENT PAID CANCELLED"`
	IssuedAt     *time.Time    `json:"issued_at,omitempty"`
	PaidAt       *time.Time    `json:"paid_at,omitempty"`
	CancelReason string        `json:"cancel_reason,omitempty"`
}

// QuoteResult carries the quote with the non-blocking pricing warnings
// raised while building its lines.
type QuoteResult struct {
	Quote    *Quote            `json:"quote"`
	Warnings []pricing.Warning `json:"warnings,omitempty"`
}
