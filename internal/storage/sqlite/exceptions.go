package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

const exceptionCaseColumns = `case_id, run_id, business_date, category, severity, status,
	primary_txn_id, owner_user_id, aging_days, resolution_code, created_at, closed_at`

func scanExceptionCase(row rowScanner) (*types.ExceptionCase, error) {
	var c types.ExceptionCase
	var runID, owner, resolution, closedAt sql.NullString
	var createdAt string
	err := row.Scan(&c.ID, &runID, &c.BusinessDate, &c.Category, &c.Severity, &c.Status,
		&c.PrimaryTxnID, &owner, &c.AgingDays, &resolution, &createdAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan exception case: %w", err)
	}
	c.RunID = strOrEmpty(runID)
	c.OwnerUserID = strOrEmpty(owner)
	c.ResolutionCode = strOrEmpty(resolution)
	c.CreatedAt = parseTime(createdAt)
	c.ClosedAt = timePtr(closedAt)
	return &c, nil
}

func getExceptionCase(ctx context.Context, q querier, caseID string) (*types.ExceptionCase, error) {
	return scanExceptionCase(q.QueryRowContext(ctx,
		`SELECT `+exceptionCaseColumns+` FROM exception_cases WHERE case_id = ?`, caseID))
}

func insertExceptionCase(ctx context.Context, q querier, c *types.ExceptionCase) error {
	var closedAt any
	if c.ClosedAt != nil {
		closedAt = fmtTime(*c.ClosedAt)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO exception_cases (case_id, run_id, business_date, category, severity, status,
			primary_txn_id, owner_user_id, aging_days, resolution_code, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, nullStr(c.RunID), c.BusinessDate, c.Category, c.Severity, c.Status,
		c.PrimaryTxnID, nullStr(c.OwnerUserID), c.AgingDays, nullStr(c.ResolutionCode),
		fmtTime(c.CreatedAt), closedAt)
	if err != nil {
		return fmt.Errorf("failed to insert exception case: %w", err)
	}
	return nil
}

func updateCase(ctx context.Context, q querier, caseID, set string, args ...any) error {
	res, err := q.ExecContext(ctx,
		`UPDATE exception_cases SET `+set+` WHERE case_id = ?`, append(args, caseID)...)
	if err != nil {
		return fmt.Errorf("failed to update exception case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// assignCase also moves the case into TRIAGED, matching the workflow's
// "assignment means someone looked at it" convention.
func assignCase(ctx context.Context, q querier, caseID, owner string) error {
	return updateCase(ctx, q, caseID, `owner_user_id = ?, status = 'TRIAGED'`, owner)
}

func setCaseStatus(ctx context.Context, q querier, caseID string, status types.CaseStatus) error {
	return updateCase(ctx, q, caseID, `status = ?`, status)
}

func closeCase(ctx context.Context, q querier, caseID, resolutionCode string) error {
	return updateCase(ctx, q, caseID,
		`status = 'CLOSED', resolution_code = ?, closed_at = ?`,
		resolutionCode, fmtTime(time.Now()))
}

func insertExceptionAction(ctx context.Context, q querier, a *types.ExceptionAction) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal action payload: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO exception_actions (action_id, case_id, actor_user_id, action_at, action_type, action_payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.CaseID, a.Actor, fmtTime(a.ActionAt), a.ActionType, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert exception action: %w", err)
	}
	return nil
}

// GetExceptionCase returns one exception case by id.
func (s *Store) GetExceptionCase(ctx context.Context, caseID string) (*types.ExceptionCase, error) {
	return getExceptionCase(ctx, s.db, caseID)
}

// ListExceptionCases returns cases matching the filter, newest first.
func (s *Store) ListExceptionCases(ctx context.Context, f types.ExceptionFilter, limit int) ([]types.ExceptionCase, error) {
	var where []string
	var args []any
	if f.BusinessDate != "" {
		where = append(where, "business_date = ?")
		args = append(args, f.BusinessDate)
	}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	query := `SELECT ` + exceptionCaseColumns + ` FROM exception_cases`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, case_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exception cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ExceptionCase
	for rows.Next() {
		c, err := scanExceptionCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exception cases: %w", err)
	}
	return out, nil
}

// ListExceptionActions returns the append-only action history for one case,
// oldest first.
func (s *Store) ListExceptionActions(ctx context.Context, caseID string) ([]types.ExceptionAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_id, case_id, actor_user_id, action_at, action_type, action_payload
		FROM exception_actions WHERE case_id = ?
		ORDER BY action_at ASC, action_id ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exception actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.ExceptionAction
	for rows.Next() {
		var a types.ExceptionAction
		var actionAt, payload string
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Actor, &actionAt, &a.ActionType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan exception action: %w", err)
		}
		a.ActionAt = parseTime(actionAt)
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			a.Payload = map[string]any{}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exception actions: %w", err)
	}
	return out, nil
}

// OpenExceptionStats returns the open-case count and mean aging for one run.
func (s *Store) OpenExceptionStats(ctx context.Context, runID string) (int, float64, error) {
	var count int
	var mean sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(aging_days) FROM exception_cases
		WHERE run_id = ? AND status != 'CLOSED'`, runID).Scan(&count, &mean)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute open exception stats: %w", err)
	}
	return count, mean.Float64, nil
}
