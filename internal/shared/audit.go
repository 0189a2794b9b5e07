package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuditLog is one row of audit_logs. ActorID 0 marks a system action.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	var missing []string
	if l.Action == "" {
		missing = append(missing, "action")
	}
	if l.Entity == "" {
		missing = append(missing, "entity")
	}
	if l.EntityID == "" {
		missing = append(missing, "entity_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: audit log missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// AuditLogger appends to audit_logs. Callers record after commit and treat
// failures as warnings, so the ledger never waits on the audit trail.
type AuditLogger struct {
	pool Executor
	now  func() time.Time
}

// NewAuditLogger returns a logger writing through pool.
func NewAuditLogger(pool Executor) *AuditLogger {
	return &AuditLogger{pool: pool, now: time.Now}
}

// Record persists entry. An empty Meta is stored as SQL NULL and a zero At
// falls back to the database clock.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := entry.validate(); err != nil {
		return err
	}

	var meta []byte
	if len(entry.Meta) > 0 {
		encoded, err := json.Marshal(entry.Meta)
		if err != nil {
			return fmt.Errorf("audit meta for %s %s: %w", entry.Entity, entry.EntityID, err)
		}
		meta = encoded
	}
	var at any
	if !entry.At.IsZero() {
		at = entry.At.UTC()
	}

	_, err := l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, at)
	if err != nil {
		return fmt.Errorf("audit %s %s/%s: %w", entry.Action, entry.Entity, entry.EntityID, err)
	}
	return nil
}
