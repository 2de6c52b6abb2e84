package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cardworks/recon/internal/types"
)

// unifiedCTE projects match rows and exception cases of one run into a
// single row shape. Match rows get "M:" prefixed ids, exception cases "E:".
// The two run_id placeholders must be bound in order.
const unifiedCTE = `
WITH unified AS (
  SELECT
    ('M:' || m.match_id) AS row_id,
    CASE
      WHEN m.match_type='MATCHED' THEN 'MATCHED'
      WHEN m.match_type='PARTIAL_MATCH' THEN 'PARTIAL'
      WHEN m.match_type='DUPLICATE_SUSPECT' THEN 'DUPLICATE'
      ELSE 'MISMATCH'
    END AS status,
    lt.rrn AS rrn,
    COALESCE(NULLIF(lt.arn,''), NULLIF(rt.arn,'')) AS arn,
    COALESCE(lt.txn_time, rt.txn_time) AS txn_time,
    lt.amount AS amount_left,
    rt.amount AS amount_right,
    CASE
      WHEN lt.amount IS NOT NULL AND rt.amount IS NOT NULL THEN ROUND(rt.amount - lt.amount, 2)
      ELSE NULL
    END AS delta,
    COALESCE(lt.currency, rt.currency) AS currency,
    m.score AS match_score,
    m.reason_code AS reason_code,
    COALESCE(lt.pan_masked, rt.pan_masked, '') AS pan_masked,
    m.left_txn_id AS left_txn_id,
    m.right_txn_id AS right_txn_id
  FROM match_results m
  LEFT JOIN txns lt ON lt.txn_id = m.left_txn_id
  LEFT JOIN txns rt ON rt.txn_id = m.right_txn_id
  WHERE m.run_id = ?

  UNION ALL

  SELECT
    ('E:' || e.case_id) AS row_id,
    CASE
      WHEN e.category='MISSING_IN_LEFT' THEN 'MISSING_IN_LEFT'
      WHEN e.category='MISSING_IN_RIGHT' THEN 'MISSING_IN_RIGHT'
      WHEN e.category='DUPLICATE' THEN 'DUPLICATE'
      ELSE 'MISMATCH'
    END AS status,
    t.rrn AS rrn,
    NULLIF(t.arn,'') AS arn,
    t.txn_time AS txn_time,
    CASE WHEN t.source_side = 'LEFT' THEN t.amount ELSE NULL END AS amount_left,
    CASE WHEN t.source_side = 'RIGHT' THEN t.amount ELSE NULL END AS amount_right,
    NULL AS delta,
    t.currency AS currency,
    NULL AS match_score,
    e.category AS reason_code,
    COALESCE(t.pan_masked, '') AS pan_masked,
    CASE WHEN t.source_side = 'LEFT' THEN t.txn_id ELSE NULL END AS left_txn_id,
    CASE WHEN t.source_side = 'RIGHT' THEN t.txn_id ELSE NULL END AS right_txn_id
  FROM exception_cases e
  LEFT JOIN txns t ON t.txn_id = e.primary_txn_id
  WHERE e.run_id = ?
)
`

var unifiedSortColumns = map[string]string{
	"txn_time":    "u.txn_time",
	"delta":       "COALESCE(u.delta, 0)",
	"match_score": "COALESCE(u.match_score, -1)",
}

// UnifiedSummary aggregates all unified rows of one run.
func (s *Store) UnifiedSummary(ctx context.Context, runID string) (*types.ResultSummary, error) {
	var sum types.ResultSummary
	var matched, unmatchedLeft, unmatchedRight, partial, duplicates sql.NullInt64
	var amountDelta sql.NullFloat64
	err := s.db.QueryRowContext(ctx, unifiedCTE+`
		SELECT
		  SUM(CASE WHEN status='MATCHED' THEN 1 ELSE 0 END),
		  SUM(CASE WHEN status='MISSING_IN_RIGHT' THEN 1 ELSE 0 END),
		  SUM(CASE WHEN status='MISSING_IN_LEFT' THEN 1 ELSE 0 END),
		  SUM(CASE WHEN status='PARTIAL' THEN 1 ELSE 0 END),
		  SUM(CASE WHEN status='DUPLICATE' THEN 1 ELSE 0 END),
		  ROUND(COALESCE(SUM(ABS(COALESCE(delta, 0))), 0), 2)
		FROM unified`, runID, runID).
		Scan(&matched, &unmatchedLeft, &unmatchedRight, &partial, &duplicates, &amountDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to compute result summary: %w", err)
	}
	sum.Matched = int(matched.Int64)
	sum.UnmatchedLeft = int(unmatchedLeft.Int64)
	sum.UnmatchedRight = int(unmatchedRight.Int64)
	sum.Partial = int(partial.Int64)
	sum.Duplicates = int(duplicates.Int64)
	sum.AmountDelta = amountDelta.Float64
	return &sum, nil
}

// UnifiedPage returns one page of unified rows plus the filtered total.
func (s *Store) UnifiedPage(ctx context.Context, runID string, q types.ResultQuery) ([]types.UnifiedRow, int, error) {
	where := []string{"1=1"}
	args := []any{runID, runID}
	if q.Status != "" {
		where = append(where, "u.status = ?")
		args = append(args, q.Status)
	}
	if q.Search != "" {
		like := "%" + q.Search + "%"
		where = append(where, "(u.rrn LIKE ? OR u.arn LIKE ? OR u.pan_masked LIKE ?)")
		args = append(args, like, like, like)
	}
	if q.Currency != "" {
		where = append(where, "u.currency = ?")
		args = append(args, q.Currency)
	}
	if q.AmountMin != nil {
		where = append(where, "COALESCE(u.amount_left, u.amount_right, 0) >= ?")
		args = append(args, *q.AmountMin)
	}
	if q.AmountMax != nil {
		where = append(where, "COALESCE(u.amount_left, u.amount_right, 0) <= ?")
		args = append(args, *q.AmountMax)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		unifiedCTE+` SELECT COUNT(*) FROM unified u WHERE `+whereSQL, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count unified rows: %w", err)
	}

	orderCol, ok := unifiedSortColumns[q.SortBy]
	if !ok {
		orderCol = "u.txn_time"
	}
	orderDir := "DESC"
	if q.SortDir == "asc" {
		orderDir = "ASC"
	}
	offset := (q.Page - 1) * q.PageSize

	rows, err := s.db.QueryContext(ctx, unifiedCTE+fmt.Sprintf(`
		SELECT u.row_id, u.status, u.rrn, u.arn, u.txn_time, u.amount_left, u.amount_right,
		  u.delta, u.currency, u.match_score, u.reason_code, u.pan_masked,
		  u.left_txn_id, u.right_txn_id
		FROM unified u
		WHERE %s
		ORDER BY %s %s, u.row_id DESC
		LIMIT %d OFFSET %d`, whereSQL, orderCol, orderDir, q.PageSize, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query unified rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []types.UnifiedRow
	for rows.Next() {
		var r types.UnifiedRow
		var rrn, arn, txnTime, currency, pan, leftID, rightID sql.NullString
		var amountLeft, amountRight, delta, score sql.NullFloat64
		if err := rows.Scan(&r.RowID, &r.Status, &rrn, &arn, &txnTime, &amountLeft, &amountRight,
			&delta, &currency, &score, &r.ReasonCode, &pan, &leftID, &rightID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan unified row: %w", err)
		}
		r.RRN = strOrEmpty(rrn)
		r.ARN = strOrEmpty(arn)
		r.TxnTime = strOrEmpty(txnTime)
		r.Currency = strOrEmpty(currency)
		r.PANMasked = strOrEmpty(pan)
		r.LeftTxnID = strOrEmpty(leftID)
		r.RightTxnID = strOrEmpty(rightID)
		if amountLeft.Valid {
			v := amountLeft.Float64
			r.AmountLeft = &v
		}
		if amountRight.Valid {
			v := amountRight.Float64
			r.AmountRight = &v
		}
		if delta.Valid {
			v := delta.Float64
			r.Delta = &v
		}
		if score.Valid {
			v := score.Float64
			r.MatchScore = &v
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating unified rows: %w", err)
	}
	return items, total, nil
}
