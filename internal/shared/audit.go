package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audited actions. Writers record one of these so the trail can be filtered
// without guessing at free-form strings.
const (
	AuditTicketCreate  = "ticket.create"
	AuditTicketAssign  = "ticket.assign"
	AuditTicketStart   = "ticket.start"
	AuditTicketResolve = "ticket.resolve"
	AuditTicketClose   = "ticket.close"
	AuditTicketReopen  = "ticket.reopen"
	AuditTicketCancel  = "ticket.cancel"
	AuditTicketDelete  = "ticket.delete"

	AuditUserUpdateProfile = "user.update_profile"
	AuditUserEnable        = "user.enable"
	AuditUserDisable       = "user.disable"
	AuditUserSetDepartment = "user.set_department"
	AuditUserDelete        = "user.delete"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. A zero At is stamped with the current time
// and the chi request id, when present, is folded into the meta payload so
// trail rows can be correlated with access logs.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	log = stamp(ctx, log, time.Now())
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}

// stamp fills the context-derived defaults. The caller's meta map is copied,
// never mutated.
func stamp(ctx context.Context, log AuditLog, now time.Time) AuditLog {
	if log.At.IsZero() {
		log.At = now
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		meta := make(map[string]any, len(log.Meta)+1)
		for k, v := range log.Meta {
			meta[k] = v
		}
		meta["request_id"] = reqID
		log.Meta = meta
	}
	return log
}
