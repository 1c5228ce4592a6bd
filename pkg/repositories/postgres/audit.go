package postgres

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

type auditRow struct {
	ID         uuid.UUID                      `db:"id"`
	EntityType string                         `db:"entity_type"`
	EntityID   string                         `db:"entity_id"`
	Action     string                         `db:"action"`
	Actor      string                         `db:"actor"`
	Reason     string                         `db:"reason"`
	Details    database.JSONB[map[string]any] `db:"details"`
	OccurredAt time.Time                      `db:"occurred_at"`
}

var auditStruct = database.NewStruct(new(auditRow))

func fromAuditEntry(e models.AuditEntry) *auditRow {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return &auditRow{
		ID:         e.ID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     string(e.Action),
		Actor:      e.Actor,
		Reason:     e.Reason,
		Details:    database.NewJSONB(details),
		OccurredAt: e.OccurredAt,
	}
}

func (r auditRow) toAuditEntry() models.AuditEntry {
	return models.AuditEntry{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Action:     models.AuditAction(r.Action),
		Actor:      r.Actor,
		Reason:     r.Reason,
		Details:    r.Details.Data,
		OccurredAt: r.OccurredAt,
	}
}

func (s *Store) AppendAudit(ctx context.Context, entries ...models.AuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.AppendAudit")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	rows := make([]any, len(entries))
	for i, e := range entries {
		rows[i] = fromAuditEntry(e)
	}
	ib := auditStruct.InsertInto(auditTable, rows...)
	query, args := ib.Build()
	if _, err := s.conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return s.failed(ctx, "append audit", err, map[string]any{
			"entity_type": entries[0].EntityType,
			"entity_id":   entries[0].EntityID,
		})
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListAudit")
	defer span.End()

	sb := auditStruct.SelectFrom(auditTable)
	sb.Where(sb.Equal("entity_type", entityType), sb.Equal("entity_id", entityID)).OrderBy("occurred_at", "id")

	query, args := sb.Build()
	var rows []auditRow
	if err := s.conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.failed(ctx, "list audit", err, map[string]any{
			"entity_type": entityType,
			"entity_id":   entityID,
		})
	}

	entries := make([]models.AuditEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.toAuditEntry()
	}
	return entries, nil
}
