package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// QuoteExpirer is the billing surface the sweep needs.
type QuoteExpirer interface {
	ExpireDueQuotes(ctx context.Context, asOf time.Time) (int, error)
}

// ExpireQuotesJob runs the quote expiry sweep.
type ExpireQuotesJob struct {
	Billing QuoteExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewExpireQuotesJob wires dependencies for the expiry handler.
func NewExpireQuotesJob(billing QuoteExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpireQuotesJob {
	return &ExpireQuotesJob{
		Billing: billing,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes expiry tasks.
func (j *ExpireQuotesJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Billing == nil {
		return errors.New("expire quotes: handler not configured")
	}
	var payload ExpireQuotesPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	run := j.metrics().Track(TaskBillingExpireQuotes)
	logger := j.logger().With(slog.Time("as_of", asOf))

	start := time.Now()
	expired, err := j.Billing.ExpireDueQuotes(ctx, asOf)
	run.Documents("quote", expired)
	if err != nil {
		logger.Error("expire quotes", slog.Int("expired", expired), slog.Any("error", err))
		return run.End(err)
	}
	logger.Info("completed quote expiry", slog.Int("expired", expired), slog.Duration("duration", time.Since(start)))
	return run.End(nil)
}

func (j *ExpireQuotesJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBillingExpireQuotes))
	}
	return slog.Default().With(slog.String("job", TaskBillingExpireQuotes))
}

func (j *ExpireQuotesJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExpireQuotesJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
