package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/academyhub/academyhub/internal/platform/kv"
)

const auditTimelineKey = "audit:timeline"

// AuditLog is one recorded administrative change.
type AuditLog struct {
	ID       string         `json:"id"`
	ActorID  string         `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditLogger appends records to a time-ordered log.
type AuditLogger struct {
	store *kv.Store
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(store *kv.Store) *AuditLogger {
	return &AuditLogger{store: store}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	log.ID = uuid.NewString()
	return l.store.Tx(ctx, func(b *kv.Batch) error {
		b.SetJSON(kv.Key("audit", log.ID), log, 0)
		b.ZAdd(auditTimelineKey, float64(log.At.UnixMilli()), log.ID)
		return nil
	})
}

// Recent returns up to limit entries, newest first.
func (l *AuditLogger) Recent(ctx context.Context, limit int) ([]AuditLog, error) {
	if l == nil {
		return nil, errors.New("audit logger not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	ids, err := l.store.ZRevRange(ctx, auditTimelineKey, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = kv.Key("audit", id)
	}
	return kv.GetMany[AuditLog](ctx, l.store, keys)
}

// Page returns one page of entries, newest first, with its pagination
// metadata.
func (l *AuditLogger) Page(ctx context.Context, page, perPage int) ([]AuditLog, Pagination, error) {
	if l == nil {
		return nil, Pagination{}, errors.New("audit logger not initialised")
	}
	total, err := l.store.ZCard(ctx, auditTimelineKey)
	if err != nil {
		return nil, Pagination{}, err
	}
	p := NewPagination(page, perPage, int(total))
	start := int64((p.Page - 1) * p.PerPage)
	ids, err := l.store.ZRevRange(ctx, auditTimelineKey, start, start+int64(p.PerPage)-1)
	if err != nil {
		return nil, p, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = kv.Key("audit", id)
	}
	logs, err := kv.GetMany[AuditLog](ctx, l.store, keys)
	return logs, p, err
}
