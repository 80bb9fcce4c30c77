package billing

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

var (
	ErrQuoteNotFound    = fmt.Errorf("%w: quote", shared.ErrNotFound)
	ErrInvoiceNotFound  = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	ErrProjectNotFound  = fmt.Errorf("%w: project", shared.ErrNotFound)
	ErrBusinessNotFound = fmt.Errorf("%w: business", shared.ErrNotFound)
	ErrClientNotFound   = fmt.Errorf("%w: client", shared.ErrNotFound)

	ErrInvalidTransition   = fmt.Errorf("%w: invalid status transition", shared.ErrStateConflict)
	ErrLinesFrozen         = fmt.Errorf("%w: line items are frozen once the quote leaves DRAFT", shared.ErrStateConflict)
	ErrMetadataFrozen      = fmt.Errorf("%w: quote is no longer editable", shared.ErrStateConflict)
	ErrInvoiceExists       = fmt.Errorf("%w: invoice already exists for this quote", shared.ErrStateConflict)
	ErrQuoteNotInvoiceable = fmt.Errorf("%w: quote must be SENT or SIGNED to be invoiced", shared.ErrStateConflict)
	ErrNotBillingReference = fmt.Errorf("%w: quote is not the project billing reference", shared.ErrStateConflict)
	ErrDeleteNotAllowed    = fmt.Errorf("%w: only DRAFT or CANCELLED quotes without invoice can be deleted", shared.ErrStateConflict)

	ErrCancelReasonRequired = fmt.Errorf("%w: cancellation reason is required", shared.ErrValidation)
	ErrCancelReasonTooLong  = fmt.Errorf("%w: cancellation reason exceeds %d characters", shared.ErrValidation, maxCancelReason)
	ErrSignedAtNotAllowed   = fmt.Errorf("%w: signedAt is only accepted when signing", shared.ErrValidation)
	ErrNoLines              = fmt.Errorf("%w: a quote needs at least one line to be issued", shared.ErrValidation)

	ErrDuplicateNumber  = fmt.Errorf("%w: document number already taken", shared.ErrConcurrency)
	ErrDuplicateInvoice = fmt.Errorf("%w: invoice for this quote was created concurrently", shared.ErrConcurrency)
)

const maxCancelReason = 1000

// MissingPriceError blocks issuance while lines lack a resolved price.
type MissingPriceError struct {
	Lines []ServiceLine
}

func (e *MissingPriceError) Error() string {
	names := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		if l.ServiceID != nil {
			names = append(names, fmt.Sprintf("%q (service %d)", l.Label, *l.ServiceID))
			continue
		}
		names = append(names, fmt.Sprintf("%q", l.Label))
	}
	return fmt.Sprintf("missing price for %s", strings.Join(names, ", "))
}

// Is makes MissingPriceError match shared.ErrValidation.
func (e *MissingPriceError) Is(target error) bool {
	return target == shared.ErrValidation
}

// ServiceIDs returns the catalog references of the offending lines.
func (e *MissingPriceError) ServiceIDs() []int64 {
	var ids []int64
	for _, l := range e.Lines {
		if l.ServiceID != nil {
			ids = append(ids, *l.ServiceID)
		}
	}
	return ids
}
