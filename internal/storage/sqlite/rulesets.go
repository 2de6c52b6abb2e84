package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

const rulesetColumns = `version, is_active, amount_tolerance, date_window_days, score_threshold, created_at`

func scanRuleset(row rowScanner) (*types.Ruleset, error) {
	var rs types.Ruleset
	var active int
	var tolerance, createdAt string
	err := row.Scan(&rs.Version, &active, &tolerance, &rs.DateWindowDays, &rs.ScoreThreshold, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ruleset: %w", err)
	}
	rs.IsActive = active != 0
	rs.CreatedAt = parseTime(createdAt)
	rs.AmountTolerance, err = decimal.NewFromString(tolerance)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_tolerance %q: %w", tolerance, err)
	}
	return &rs, nil
}

func activeRuleset(ctx context.Context, q querier) (*types.Ruleset, error) {
	return scanRuleset(q.QueryRowContext(ctx,
		`SELECT `+rulesetColumns+` FROM rulesets WHERE is_active = 1
		 ORDER BY created_at DESC LIMIT 1`))
}

func deactivateRulesets(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, `UPDATE rulesets SET is_active = 0 WHERE is_active = 1`); err != nil {
		return fmt.Errorf("failed to deactivate rulesets: %w", err)
	}
	return nil
}

func insertRuleset(ctx context.Context, q querier, rs *types.Ruleset) error {
	active := 0
	if rs.IsActive {
		active = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO rulesets (version, is_active, amount_tolerance, date_window_days, score_threshold, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rs.Version, active, rs.AmountTolerance.String(), rs.DateWindowDays, rs.ScoreThreshold, fmtTime(rs.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert ruleset: %w", err)
	}
	return nil
}

// ActiveRuleset returns the single active ruleset.
func (s *Store) ActiveRuleset(ctx context.Context) (*types.Ruleset, error) {
	return activeRuleset(ctx, s.db)
}

// ListRulesets returns all rulesets, newest first.
func (s *Store) ListRulesets(ctx context.Context) ([]types.Ruleset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rulesetColumns+` FROM rulesets ORDER BY created_at DESC, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rulesets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Ruleset
	for rows.Next() {
		rs, err := scanRuleset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rulesets: %w", err)
	}
	return out, nil
}
