package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	EventID    uuid.UUID
	ActorID    int64
	BusinessID int64
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	At         time.Time
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx so audit rows can be written
// inside the caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct{}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// AuditEventID derives a stable event id so a retried write of the same
// event collides on the primary key instead of duplicating the trail.
func AuditEventID(entity, entityID, action string, at time.Time) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%s:%s:%d", entity, entityID, action, at.UnixNano())))
}

// Record persists the log entry using conn.
func (l *AuditLogger) Record(ctx context.Context, conn Execer, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	if log.EventID == uuid.Nil {
		log.EventID = AuditEventID(log.Entity, log.EntityID, log.Action, log.At)
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, `INSERT INTO audit_logs (event_id, business_id, actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`,
		log.EventID, log.BusinessID, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}
