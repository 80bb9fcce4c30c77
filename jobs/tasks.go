package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingExpireQuotes moves overdue SENT quotes to EXPIRED.
	TaskBillingExpireQuotes = "billing:expire_quotes"
)

// ExpireQuotesPayload pins the reference instant. Zero means "now" at
// processing time.
type ExpireQuotesPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewExpireQuotesTask constructs an Asynq task.
func NewExpireQuotesTask(payload ExpireQuotesPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingExpireQuotes, data), nil
}
