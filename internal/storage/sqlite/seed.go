package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// defaultUsers are the static workflow users created on first start.
var defaultUsers = []struct {
	login, fullName, status, role string
}{
	{"admin", "Platform Admin", "ACTIVE", "admin"},
	{"operator1", "Operator L1", "ACTIVE", "operator_l1"},
	{"supervisor", "Operator L2", "ACTIVE", "operator_l2"},
	{"auditor", "Internal Auditor", "ACTIVE", "auditor"},
	{"finance", "Finance Viewer", "ACTIVE", "finance_viewer"},
}

// Seed inserts the default users and, if no ruleset exists yet, the v1
// ruleset. Safe to call on every start.
func (s *Store) Seed(ctx context.Context) error {
	for _, u := range defaultUsers {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (login, full_name, status) VALUES (?, ?, ?)`,
			u.login, u.fullName, u.status); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.login, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (login, role_name) VALUES (?, ?)`,
			u.login, u.role); err != nil {
			return fmt.Errorf("failed to seed role for %s: %w", u.login, err)
		}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rulesets`).Scan(&n); err != nil {
		return fmt.Errorf("failed to count rulesets: %w", err)
	}
	if n == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO rulesets (version, is_active, amount_tolerance, date_window_days, score_threshold, created_at)
			VALUES (?, 1, ?, ?, ?, ?)
		`, "v1", decimal.NewFromFloat(2.0).String(), 1, 0.75, fmtTime(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to seed ruleset: %w", err)
		}
	}
	return nil
}
