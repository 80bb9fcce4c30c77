package billing

import "github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"

// Config carries the tunables of the billing core.
type Config struct {
	InvoiceDueDays      int
	QuoteValidityDays   int
	DefaultCurrency     string
	QuoteNumberFormat   string
	InvoiceNumberFormat string
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		InvoiceDueDays:      30,
		QuoteValidityDays:   30,
		DefaultCurrency:     "EUR",
		QuoteNumberFormat:   numbering.DefaultQuoteTemplate,
		InvoiceNumberFormat: numbering.DefaultInvoiceTemplate,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InvoiceDueDays <= 0 {
		c.InvoiceDueDays = def.InvoiceDueDays
	}
	if c.QuoteValidityDays <= 0 {
		c.QuoteValidityDays = def.QuoteValidityDays
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = def.DefaultCurrency
	}
	if c.QuoteNumberFormat == "" {
		c.QuoteNumberFormat = def.QuoteNumberFormat
	}
	if c.InvoiceNumberFormat == "" {
		c.InvoiceNumberFormat = def.InvoiceNumberFormat
	}
	return c
}
