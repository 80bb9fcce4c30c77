package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-billing/internal/observability"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-billing/jobs"
)

// Pinger reports backing store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExpiryEnqueuer schedules an out-of-band quote expiry sweep.
type ExpiryEnqueuer interface {
	EnqueueExpireQuotes(ctx context.Context, asOf time.Time) (*asynq.TaskInfo, error)
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Metrics    *observability.Metrics
	DB         Pinger
	JobHandler *jobs.Handler
	Expiry     ExpiryEnqueuer
	Clock      func() time.Time
}

// NewRouter constructs the ops chi.Router: health, metrics and job controls.
// The billing core has no HTTP surface of its own.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if params.DB != nil {
			if err := params.DB.Ping(r.Context()); err != nil {
				logger.Warn("health: database unreachable", slog.Any("error", err))
				status = http.StatusServiceUnavailable
				body = map[string]string{"status": "degraded", "database": "unreachable"}
			}
		}
		httpx.JSON(w, status, body)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Expiry != nil {
		r.Post("/ops/expire-quotes", func(w http.ResponseWriter, r *http.Request) {
			info, err := params.Expiry.EnqueueExpireQuotes(r.Context(), now())
			if err != nil {
				logger.Error("enqueue quote expiry", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "internal", "")
				return
			}
			resp := map[string]string{"status": "queued"}
			if info != nil {
				resp["task_id"] = info.ID
			}
			httpx.JSON(w, http.StatusAccepted, resp)
		})
	}
	return r
}
