package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

const matchRunColumns = `run_id, business_date, scope_filter, ruleset_version, started_at,
	finished_at, status, created_by`

func scanMatchRun(row rowScanner) (*types.MatchRun, error) {
	var r types.MatchRun
	var scope, finishedAt sql.NullString
	var startedAt string
	err := row.Scan(&r.ID, &r.BusinessDate, &scope, &r.RulesetVersion, &startedAt,
		&finishedAt, &r.Status, &r.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match run: %w", err)
	}
	r.ScopeFilter = strOrEmpty(scope)
	r.StartedAt = parseTime(startedAt)
	r.FinishedAt = timePtr(finishedAt)
	return &r, nil
}

func getMatchRun(ctx context.Context, q querier, id string) (*types.MatchRun, error) {
	return scanMatchRun(q.QueryRowContext(ctx,
		`SELECT `+matchRunColumns+` FROM match_runs WHERE run_id = ?`, id))
}

func insertMatchRun(ctx context.Context, q querier, r *types.MatchRun) error {
	var finishedAt any
	if r.FinishedAt != nil {
		finishedAt = fmtTime(*r.FinishedAt)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO match_runs (run_id, business_date, scope_filter, ruleset_version, started_at,
			finished_at, status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.BusinessDate, r.ScopeFilter, r.RulesetVersion, fmtTime(r.StartedAt),
		finishedAt, r.Status, r.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert match run: %w", err)
	}
	return nil
}

func finishRun(ctx context.Context, q querier, runID string, status types.RunStatus) error {
	res, err := q.ExecContext(ctx,
		`UPDATE match_runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, fmtTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func insertMatchResult(ctx context.Context, q querier, m *types.MatchResult) error {
	explain, err := json.Marshal(m.Explain)
	if err != nil {
		return fmt.Errorf("failed to marshal explain: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO match_results (match_id, run_id, left_txn_id, right_txn_id, match_type,
			score, reason_code, explain_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.RunID, m.LeftTxnID, nullStr(m.RightTxnID), m.MatchType,
		m.Score, m.ReasonCode, string(explain))
	if err != nil {
		return fmt.Errorf("failed to insert match result: %w", err)
	}
	return nil
}

// GetRun returns one match run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*types.MatchRun, error) {
	return getMatchRun(ctx, s.db, id)
}

// LatestRun returns the most recently started run for a business date.
func (s *Store) LatestRun(ctx context.Context, businessDate string) (*types.MatchRun, error) {
	return scanMatchRun(s.db.QueryRowContext(ctx,
		`SELECT `+matchRunColumns+` FROM match_runs
		 WHERE business_date = ? ORDER BY started_at DESC, run_id DESC LIMIT 1`,
		businessDate))
}

// ListRuns returns runs newest first, optionally scoped to one business
// date.
func (s *Store) ListRuns(ctx context.Context, businessDate string, limit int) ([]types.MatchRun, error) {
	query := `SELECT ` + matchRunColumns + ` FROM match_runs`
	args := []any{}
	if businessDate != "" {
		query += ` WHERE business_date = ?`
		args = append(args, businessDate)
	}
	query += ` ORDER BY started_at DESC, run_id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query match runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.MatchRun
	for rows.Next() {
		r, err := scanMatchRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match runs: %w", err)
	}
	return out, nil
}

// GetMatchResult returns one persisted match row by id.
func (s *Store) GetMatchResult(ctx context.Context, matchID string) (*types.MatchResult, error) {
	var m types.MatchResult
	var rightID sql.NullString
	var explain string
	err := s.db.QueryRowContext(ctx, `
		SELECT match_id, run_id, left_txn_id, right_txn_id, match_type, score, reason_code, explain_json
		FROM match_results WHERE match_id = ?`, matchID).
		Scan(&m.ID, &m.RunID, &m.LeftTxnID, &rightID, &m.MatchType, &m.Score, &m.ReasonCode, &explain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match result: %w", err)
	}
	m.RightTxnID = strOrEmpty(rightID)
	if err := json.Unmarshal([]byte(explain), &m.Explain); err != nil {
		m.Explain = map[string]any{}
	}
	return &m, nil
}

func countsByColumn(ctx context.Context, q querier, query, runID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		out[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return out, nil
}

// MatchTypeCounts returns match row counts grouped by match type for one run.
func (s *Store) MatchTypeCounts(ctx context.Context, runID string) (map[string]int, error) {
	return countsByColumn(ctx, s.db,
		`SELECT match_type, COUNT(*) FROM match_results WHERE run_id = ? GROUP BY match_type`, runID)
}

// ExceptionCategoryCounts returns exception counts grouped by category for one run.
func (s *Store) ExceptionCategoryCounts(ctx context.Context, runID string) (map[string]int, error) {
	return countsByColumn(ctx, s.db,
		`SELECT category, COUNT(*) FROM exception_cases WHERE run_id = ? GROUP BY category`, runID)
}

// RunOutputCounts returns the total match and exception rows a run produced.
func (s *Store) RunOutputCounts(ctx context.Context, runID string) (matches, exceptions int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_results WHERE run_id = ?`, runID).Scan(&matches)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count match results: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exception_cases WHERE run_id = ?`, runID).Scan(&exceptions)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count exception cases: %w", err)
	}
	return matches, exceptions, nil
}

// MatchedUniqueLeft counts distinct LEFT transactions covered by MATCHED or
// PARTIAL_MATCH rows of one run.
func (s *Store) MatchedUniqueLeft(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT left_txn_id) FROM match_results
		WHERE run_id = ? AND match_type IN ('MATCHED','PARTIAL_MATCH')`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count matched left txns: %w", err)
	}
	return n, nil
}

// PartialMatchCount counts PARTIAL_MATCH rows of one run.
func (s *Store) PartialMatchCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_results WHERE run_id = ? AND match_type = 'PARTIAL_MATCH'`,
		runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count partial matches: %w", err)
	}
	return n, nil
}

// AmountVariance sums ABS(left amount - right amount) over paired match rows
// of one run.
func (s *Store) AmountVariance(ctx context.Context, runID string) (float64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(ABS(lt.amount - rt.amount))
		FROM match_results m
		JOIN txns lt ON lt.txn_id = m.left_txn_id
		JOIN txns rt ON rt.txn_id = m.right_txn_id
		WHERE m.run_id = ? AND m.right_txn_id IS NOT NULL`, runID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to compute amount variance: %w", err)
	}
	return v.Float64, nil
}
