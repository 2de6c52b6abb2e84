package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

func getUser(ctx context.Context, q querier, login string) (*types.User, error) {
	var u types.User
	err := q.QueryRowContext(ctx,
		`SELECT login, full_name, status FROM users WHERE login = ?`, login).
		Scan(&u.Login, &u.FullName, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	roles, err := rolesForUser(ctx, q, login)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func rolesForUser(ctx context.Context, q querier, login string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT role_name FROM user_roles WHERE login = ? ORDER BY role_name`, login)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

// GetUser returns one workflow user with roles attached.
func (s *Store) GetUser(ctx context.Context, login string) (*types.User, error) {
	return getUser(ctx, s.db, login)
}

// RolesForUser returns the role grants of one user.
func (s *Store) RolesForUser(ctx context.Context, login string) ([]string, error) {
	return rolesForUser(ctx, s.db, login)
}

// ListUsers returns all workflow users with roles attached.
func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT login, full_name, status FROM users ORDER BY login`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.Login, &u.FullName, &u.Status); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	for i := range out {
		roles, err := rolesForUser(ctx, s.db, out[i].Login)
		if err != nil {
			return nil, err
		}
		out[i].Roles = roles
	}
	return out, nil
}
