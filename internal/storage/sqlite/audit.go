package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cardworks/recon/internal/types"
)

func insertAuditEvent(ctx context.Context, q querier, e *types.AuditEvent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_events (audit_id, event_at, actor_login, source_ip, object_type,
			object_id, action, result, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, fmtTime(e.At), e.Actor, nullStr(e.SourceIP), e.ObjectType,
		nullStr(e.ObjectID), e.Action, e.Result, nullStr(e.Details))
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns audit records matching the filter, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, f types.AuditFilter, limit int) ([]types.AuditEvent, error) {
	var where []string
	var args []any
	if f.Actor != "" {
		where = append(where, "actor_login = ?")
		args = append(args, f.Actor)
	}
	if f.ObjectType != "" {
		where = append(where, "object_type = ?")
		args = append(args, f.ObjectType)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.Result != "" {
		where = append(where, "result = ?")
		args = append(args, f.Result)
	}
	query := `SELECT audit_id, event_at, actor_login, source_ip, object_type, object_id,
		action, result, details FROM audit_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY event_at DESC, audit_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.AuditEvent
	for rows.Next() {
		var e types.AuditEvent
		var at string
		var sourceIP, objectID, details sql.NullString
		if err := rows.Scan(&e.ID, &at, &e.Actor, &sourceIP, &e.ObjectType, &objectID,
			&e.Action, &e.Result, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.At = parseTime(at)
		e.SourceIP = strOrEmpty(sourceIP)
		e.ObjectID = strOrEmpty(objectID)
		e.Details = strOrEmpty(details)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return out, nil
}
