package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/catalog"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// memState is one committed version of the store.
type memState struct {
	quotes    map[int64]*Quote
	invoices  map[int64]*Invoice
	projects  map[int64]*Project
	sequences map[string]int64
	audits    []shared.AuditLog
	nextQuote int64
	nextInv   int64
	nextLine  int64
}

func copyQuote(q *Quote) *Quote {
	c := *q
	c.Lines = append([]ServiceLine(nil), q.Lines...)
	return &c
}

func copyInvoice(inv *Invoice) *Invoice {
	c := *inv
	c.Lines = append([]ServiceLine(nil), inv.Lines...)
	return &c
}

func (s *memState) clone() *memState {
	out := &memState{
		quotes:    make(map[int64]*Quote, len(s.quotes)),
		invoices:  make(map[int64]*Invoice, len(s.invoices)),
		projects:  make(map[int64]*Project, len(s.projects)),
		sequences: make(map[string]int64, len(s.sequences)),
		audits:    append([]shared.AuditLog(nil), s.audits...),
		nextQuote: s.nextQuote,
		nextInv:   s.nextInv,
		nextLine:  s.nextLine,
	}
	for id, q := range s.quotes {
		out.quotes[id] = copyQuote(q)
	}
	for id, inv := range s.invoices {
		out.invoices[id] = copyInvoice(inv)
	}
	for id, p := range s.projects {
		c := *p
		out.projects[id] = &c
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	return out
}

// memoryRepo is an in-memory Repository. Transactions run one at a time
// on a private copy that replaces the committed state on success, so a
// failed unit of work leaves nothing behind. The unique constraints of the
// schema are enforced on insert.
type memoryRepo struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	state      *memState
	businesses map[int64]*Business
	clients    map[int64]*Client

	// hideInvoices makes InvoiceIDForQuote miss so the unique constraint
	// is the only guard left.
	hideInvoices bool

	// inTx is set while a unit of work runs; sourceReadsInTx counts
	// business, client and project reads that bypassed it meanwhile.
	inTx            atomic.Bool
	sourceReadsInTx atomic.Int32
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: &memState{
			quotes:    map[int64]*Quote{},
			invoices:  map[int64]*Invoice{},
			projects:  map[int64]*Project{},
			sequences: map[string]int64{},
		},
		businesses: map[int64]*Business{},
		clients:    map[int64]*Client{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	work := r.state.clone()
	hide := r.hideInvoices
	r.mu.RUnlock()

	r.inTx.Store(true)
	err := fn(ctx, &memoryTx{repo: r, st: work, hideInvoices: hide})
	r.inTx.Store(false)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state = work
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) GetQuote(_ context.Context, businessID, quoteID int64) (*Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.state.quotes[quoteID]
	if !ok || q.BusinessID != businessID {
		return nil, fmt.Errorf("%w %d", ErrQuoteNotFound, quoteID)
	}
	return copyQuote(q), nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, businessID, invoiceID int64) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.state.invoices[invoiceID]
	if !ok || inv.BusinessID != businessID {
		return nil, fmt.Errorf("%w %d", ErrInvoiceNotFound, invoiceID)
	}
	return copyInvoice(inv), nil
}

func (r *memoryRepo) ListExpiredQuotes(_ context.Context, asOf time.Time, limit int) ([]QuoteRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var refs []QuoteRef
	for _, q := range r.state.quotes {
		if q.Status == QuoteStatusSent && q.ExpiresAt != nil && !q.ExpiresAt.After(asOf) {
			refs = append(refs, QuoteRef{BusinessID: q.BusinessID, ID: q.ID})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (r *memoryRepo) noteSourceRead() {
	if r.inTx.Load() {
		r.sourceReadsInTx.Add(1)
	}
}

func (r *memoryRepo) GetBusiness(_ context.Context, businessID int64) (*Business, error) {
	r.noteSourceRead()
	return r.business(businessID)
}

func (r *memoryRepo) business(businessID int64) (*Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.businesses[businessID]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	c := *b
	return &c, nil
}

func (r *memoryRepo) GetClient(_ context.Context, businessID, clientID int64) (*Client, error) {
	r.noteSourceRead()
	return r.client(businessID, clientID)
}

func (r *memoryRepo) client(businessID, clientID int64) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok || c.BusinessID != businessID {
		return nil, ErrClientNotFound
	}
	out := *c
	return &out, nil
}

func (r *memoryRepo) GetProject(_ context.Context, businessID, projectID int64) (*Project, error) {
	r.noteSourceRead()
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.state.projects[projectID]
	if !ok || p.BusinessID != businessID {
		return nil, fmt.Errorf("%w %d", ErrProjectNotFound, projectID)
	}
	c := *p
	return &c, nil
}

// test helpers

func (r *memoryRepo) putBusiness(b Business) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses[b.ID] = &b
}

func (r *memoryRepo) putClient(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = &c
}

func (r *memoryRepo) putProject(p Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.projects[p.ID] = &p
}

func (r *memoryRepo) project(id int64) Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.state.projects[id]
}

func (r *memoryRepo) sequence(businessID int64, docType numbering.DocumentType) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.sequences[seqKey(businessID, docType)]
}

func (r *memoryRepo) invoiceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.state.invoices)
}

func (r *memoryRepo) auditActions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.state.audits))
	for i, a := range r.state.audits {
		out[i] = a.Action
	}
	return out
}

func seqKey(businessID int64, docType numbering.DocumentType) string {
	return fmt.Sprintf("%d:%s", businessID, docType)
}

var (
	_ Repository   = (*memoryRepo)(nil)
	_ TxRepository = (*memoryTx)(nil)
)

type memoryTx struct {
	repo         *memoryRepo
	st           *memState
	hideInvoices bool
}

func (t *memoryTx) GetBusiness(_ context.Context, businessID int64) (*Business, error) {
	return t.repo.business(businessID)
}

func (t *memoryTx) GetClient(_ context.Context, businessID, clientID int64) (*Client, error) {
	return t.repo.client(businessID, clientID)
}

func (t *memoryTx) GetProject(_ context.Context, businessID, projectID int64) (*Project, error) {
	p, ok := t.st.projects[projectID]
	if !ok || p.BusinessID != businessID {
		return nil, fmt.Errorf("%w %d", ErrProjectNotFound, projectID)
	}
	c := *p
	return &c, nil
}

func (t *memoryTx) NextSequence(_ context.Context, businessID int64, docType numbering.DocumentType) (int64, error) {
	key := seqKey(businessID, docType)
	t.st.sequences[key]++
	return t.st.sequences[key], nil
}

func (t *memoryTx) LockQuote(_ context.Context, businessID, quoteID int64) (*Quote, error) {
	q, ok := t.st.quotes[quoteID]
	if !ok || q.BusinessID != businessID {
		return nil, fmt.Errorf("%w %d", ErrQuoteNotFound, quoteID)
	}
	return copyQuote(q), nil
}

func (t *memoryTx) InsertQuote(_ context.Context, q *Quote) (int64, error) {
	t.st.nextQuote++
	c := copyQuote(q)
	c.ID = t.st.nextQuote
	c.Lines = nil
	t.st.quotes[c.ID] = c
	return c.ID, nil
}

func (t *memoryTx) UpdateQuote(_ context.Context, q *Quote) error {
	cur, ok := t.st.quotes[q.ID]
	if !ok || cur.BusinessID != q.BusinessID {
		return fmt.Errorf("%w %d", ErrQuoteNotFound, q.ID)
	}
	if cur.Number == nil && q.Number != nil {
		for _, other := range t.st.quotes {
			if other.ID != q.ID && other.BusinessID == q.BusinessID && other.Number != nil && *other.Number == *q.Number {
				return ErrDuplicateNumber
			}
		}
	}
	next := copyQuote(q)
	next.Lines = cur.Lines
	keepOnce(&next.Number, cur.Number)
	keepOnce(&next.IssuerSnapshotJSON, cur.IssuerSnapshotJSON)
	keepOnce(&next.ClientSnapshotJSON, cur.ClientSnapshotJSON)
	keepOnce(&next.PrestationsSnapshotText, cur.PrestationsSnapshotText)
	t.st.quotes[q.ID] = next
	return nil
}

// keepOnce mirrors COALESCE(column, $n): a stored value wins.
func keepOnce(dst **string, stored *string) {
	if stored != nil {
		*dst = stored
	}
}

func (t *memoryTx) ReplaceQuoteLines(_ context.Context, quoteID int64, lines []ServiceLine) error {
	q, ok := t.st.quotes[quoteID]
	if !ok {
		return fmt.Errorf("%w %d", ErrQuoteNotFound, quoteID)
	}
	stored := make([]ServiceLine, len(lines))
	for i := range lines {
		t.st.nextLine++
		lines[i].ID = t.st.nextLine
		lines[i].DocumentID = quoteID
		stored[i] = lines[i]
	}
	q.Lines = stored
	return nil
}

func (t *memoryTx) DeleteQuote(_ context.Context, businessID, quoteID int64) error {
	q, ok := t.st.quotes[quoteID]
	if !ok || q.BusinessID != businessID {
		return fmt.Errorf("%w %d", ErrQuoteNotFound, quoteID)
	}
	delete(t.st.quotes, quoteID)
	return nil
}

func (t *memoryTx) LatestSignedQuote(_ context.Context, projectID, excludingQuoteID int64) (*int64, error) {
	var best *Quote
	for _, q := range t.st.quotes {
		if q.ProjectID != projectID || q.ID == excludingQuoteID || q.Status != QuoteStatusSigned {
			continue
		}
		if best == nil || issuedAfter(q, best) {
			best = q
		}
	}
	if best == nil {
		return nil, nil
	}
	id := best.ID
	return &id, nil
}

// issuedAfter orders by issued_at DESC NULLS LAST, id DESC.
func issuedAfter(a, b *Quote) bool {
	switch {
	case a.IssuedAt == nil && b.IssuedAt == nil:
		return a.ID > b.ID
	case a.IssuedAt == nil:
		return false
	case b.IssuedAt == nil:
		return true
	case a.IssuedAt.Equal(*b.IssuedAt):
		return a.ID > b.ID
	default:
		return a.IssuedAt.After(*b.IssuedAt)
	}
}

func (t *memoryTx) LockProject(_ context.Context, businessID, projectID int64) (*Project, error) {
	p, ok := t.st.projects[projectID]
	if !ok || p.BusinessID != businessID {
		return nil, fmt.Errorf("%w %d", ErrProjectNotFound, projectID)
	}
	c := *p
	return &c, nil
}

func (t *memoryTx) SetProjectReference(_ context.Context, projectID int64, quoteID *int64, status ProjectBillingStatus) error {
	p, ok := t.st.projects[projectID]
	if !ok {
		return fmt.Errorf("%w %d", ErrProjectNotFound, projectID)
	}
	if quoteID != nil {
		id := *quoteID
		quoteID = &id
	}
	p.BillingReferenceQuoteID = quoteID
	p.BillingStatus = status
	return nil
}

func (t *memoryTx) InvoiceIDForQuote(_ context.Context, businessID, quoteID int64) (*int64, error) {
	if t.hideInvoices {
		return nil, nil
	}
	for _, inv := range t.st.invoices {
		if inv.BusinessID == businessID && inv.QuoteID != nil && *inv.QuoteID == quoteID {
			id := inv.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv *Invoice) (int64, error) {
	if inv.QuoteID != nil {
		for _, other := range t.st.invoices {
			if other.BusinessID == inv.BusinessID && other.QuoteID != nil && *other.QuoteID == *inv.QuoteID {
				return 0, ErrDuplicateInvoice
			}
		}
	}
	t.st.nextInv++
	c := copyInvoice(inv)
	c.ID = t.st.nextInv
	for i := range c.Lines {
		t.st.nextLine++
		c.Lines[i].ID = t.st.nextLine
		c.Lines[i].DocumentID = c.ID
	}
	t.st.invoices[c.ID] = c
	return c.ID, nil
}

func (t *memoryTx) LockInvoice(_ context.Context, businessID, invoiceID int64) (*Invoice, error) {
	inv, ok := t.st.invoices[invoiceID]
	if !ok || inv.BusinessID != businessID {
		return nil, fmt.Errorf("%w %d", ErrInvoiceNotFound, invoiceID)
	}
	return copyInvoice(inv), nil
}

func (t *memoryTx) UpdateInvoice(_ context.Context, inv *Invoice) error {
	cur, ok := t.st.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("%w %d", ErrInvoiceNotFound, inv.ID)
	}
	next := copyInvoice(inv)
	next.Lines = cur.Lines
	keepOnce(&next.Number, cur.Number)
	keepOnce(&next.IssuerSnapshotJSON, cur.IssuerSnapshotJSON)
	keepOnce(&next.ClientSnapshotJSON, cur.ClientSnapshotJSON)
	keepOnce(&next.PrestationsSnapshotText, cur.PrestationsSnapshotText)
	t.st.invoices[inv.ID] = next
	return nil
}

func (t *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	if log.EventID == uuid.Nil {
		log.EventID = shared.AuditEventID(log.Entity, log.EntityID, log.Action, log.At)
	}
	t.st.audits = append(t.st.audits, log)
	return nil
}

// stubCatalog is a mutable catalog.Lookup.
type stubCatalog struct {
	mu     sync.Mutex
	prices map[int64]catalog.Prices
}

func (c *stubCatalog) Prices(_ context.Context, _ int64, serviceID int64) (catalog.Prices, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[serviceID]
	if !ok {
		return catalog.Prices{}, fmt.Errorf("%w %d", catalog.ErrServiceNotFound, serviceID)
	}
	return p, nil
}

func (c *stubCatalog) set(p catalog.Prices) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[p.ServiceID] = p
}

// countingRecorder tallies Recorder calls.
type countingRecorder struct {
	mu          sync.Mutex
	transitions map[string]int
	numbers     map[string]int
	rejections  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{transitions: map[string]int{}, numbers: map[string]int{}, rejections: map[string]int{}}
}

func (r *countingRecorder) Transition(document, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[document+":"+from+"->"+to]++
}

func (r *countingRecorder) NumberAssigned(document string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers[document]++
}

func (r *countingRecorder) Rejected(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections[kind]++
}
