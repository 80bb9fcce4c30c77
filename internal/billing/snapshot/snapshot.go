// Package snapshot freezes counterparty identities onto billing documents at
// issuance. A populated field is never rewritten.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Address is a postal address as printed on documents.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Banking holds the payment coordinates shown to the client.
type Banking struct {
	IBAN        string `json:"iban,omitempty"`
	BIC         string `json:"bic,omitempty"`
	AccountName string `json:"account_name,omitempty"`
}

// Issuer is the business legal identity at issuance.
type Issuer struct {
	Name             string  `json:"name"`
	LegalName        string  `json:"legal_name,omitempty"`
	TaxID            string  `json:"tax_id,omitempty"`
	Address          Address `json:"address"`
	Banking          Banking `json:"banking"`
	TermsText        string  `json:"terms_text,omitempty"`
	CancellationText string  `json:"cancellation_text,omitempty"`
	LateFeesText     string  `json:"late_fees_text,omitempty"`
}

// Client is the client billing identity at issuance.
type Client struct {
	Name           string  `json:"name"`
	Company        string  `json:"company,omitempty"`
	ContactName    string  `json:"contact_name,omitempty"`
	ContactEmail   string  `json:"contact_email,omitempty"`
	TaxID          string  `json:"tax_id,omitempty"`
	BillingAddress Address `json:"billing_address"`
}

// Envelope wraps a snapshot with its capture time so the stored blob is
// self-describing.
type Envelope[T any] struct {
	CapturedAt time.Time `json:"captured_at"`
	Data       T         `json:"data"`
}

// Fields points at the three nullable snapshot columns of a document.
type Fields struct {
	IssuerJSON      *string
	ClientJSON      *string
	PrestationsText *string
}

// Complete reports whether every field is populated.
func (f Fields) Complete() bool {
	return f.IssuerJSON != nil && f.ClientJSON != nil && f.PrestationsText != nil
}

// Sources are the live records read at issuance. Nil members leave the
// matching field untouched.
type Sources struct {
	Issuer             *Issuer
	Client             *Client
	ProjectDescription string
}

// Builder fills missing snapshot fields.
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a Builder using clock, or time.Now when nil.
func NewBuilder(clock func() time.Time) *Builder {
	if clock == nil {
		clock = time.Now
	}
	return &Builder{now: clock}
}

// Fill writes each nil field of f from src and reports whether anything
// changed. Non-nil fields are left byte-for-byte intact.
func (b *Builder) Fill(f *Fields, src Sources) (bool, error) {
	if f == nil {
		return false, fmt.Errorf("snapshot: nil fields")
	}
	if f.Complete() {
		return false, nil
	}
	at := b.now().UTC()
	changed := false

	if f.IssuerJSON == nil && src.Issuer != nil {
		raw, err := encode(Envelope[Issuer]{CapturedAt: at, Data: *src.Issuer})
		if err != nil {
			return false, fmt.Errorf("snapshot: encode issuer: %w", err)
		}
		f.IssuerJSON = &raw
		changed = true
	}
	if f.ClientJSON == nil && src.Client != nil {
		raw, err := encode(Envelope[Client]{CapturedAt: at, Data: *src.Client})
		if err != nil {
			return false, fmt.Errorf("snapshot: encode client: %w", err)
		}
		f.ClientJSON = &raw
		changed = true
	}
	if f.PrestationsText == nil {
		if text := strings.TrimSpace(src.ProjectDescription); text != "" {
			f.PrestationsText = &text
			changed = true
		}
	}
	return changed, nil
}

// DecodeIssuer parses a stored issuer snapshot.
func DecodeIssuer(raw string) (Envelope[Issuer], error) {
	var env Envelope[Issuer]
	err := json.Unmarshal([]byte(raw), &env)
	return env, err
}

// DecodeClient parses a stored client snapshot.
func DecodeClient(raw string) (Envelope[Client], error) {
	var env Envelope[Client]
	err := json.Unmarshal([]byte(raw), &env)
	return env, err
}

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
