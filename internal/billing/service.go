package billing

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/catalog"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/numbering"
	"github.com/odyssey-erp/odyssey-billing/internal/billing/snapshot"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

// Recorder receives lifecycle counters once a unit of work has committed.
type Recorder interface {
	Transition(document, from, to string)
	NumberAssigned(document string)
	Rejected(kind string)
}

type nopRecorder struct{}

func (nopRecorder) Transition(string, string, string) {}
func (nopRecorder) NumberAssigned(string)             {}
func (nopRecorder) Rejected(string)                   {}

// Service implements the quote and invoice lifecycle.
type Service struct {
	repo      Repository
	catalog   catalog.Lookup
	numbers   *numbering.Service
	snapshots *snapshot.Builder
	tracker   *Tracker
	cfg       Config
	logger    *slog.Logger
	metrics   Recorder
	validator *validator.Validate
	issuing   singleflight.Group
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the billing core. lookup may be nil when no catalog is
// available; lines then resolve from overrides only.
func NewService(repo Repository, lookup catalog.Lookup, cfg Config, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		repo:      repo,
		catalog:   lookup,
		numbers:   numbering.NewService(cfg.QuoteNumberFormat, cfg.InvoiceNumberFormat),
		cfg:       cfg,
		logger:    slog.Default(),
		metrics:   nopRecorder{},
		validator: newValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshots = snapshot.NewBuilder(s.now)
	s.tracker = NewTracker(s.logger)
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// reject records a failed request. Store failures are left to the caller.
func (s *Service) reject(ctx context.Context, op string, err error, attrs ...any) error {
	if err == nil {
		return nil
	}
	kind := shared.Kind(err)
	s.metrics.Rejected(kind)
	if kind != "internal" {
		s.logger.WarnContext(ctx, "billing request rejected",
			append([]any{slog.String("op", op), slog.String("kind", kind), slog.Any("error", err)}, attrs...)...)
	}
	return err
}

func (s *Service) audit(ctx context.Context, tx TxRepository, actor shared.Actor, entity string, id int64, action string, at time.Time, meta map[string]any) error {
	return tx.RecordAudit(ctx, shared.AuditLog{
		ActorID:    actor.UserID,
		BusinessID: actor.BusinessID,
		Action:     action,
		Entity:     entity,
		EntityID:   strconv.FormatInt(id, 10),
		Meta:       meta,
		At:         at,
	})
}

// committed holds the side effects to publish after a successful commit.
type committed struct {
	document string
	from     string
	to       string
	numbered bool
}

func (s *Service) publish(ctx context.Context, c committed, attrs ...any) {
	if c.from == "" && c.to == "" {
		return
	}
	s.metrics.Transition(c.document, c.from, c.to)
	if c.numbered {
		s.metrics.NumberAssigned(c.document)
	}
	s.logger.InfoContext(ctx, "billing transition",
		append([]any{slog.String("document", c.document), slog.String("from", c.from), slog.String("to", c.to)}, attrs...)...)
}

func strPtr(v string) *string { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
