package service

import (
	"context"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/types"
)

// UserList is the assignee directory.
type UserList struct {
	Items []types.User `json:"items"`
	Count int          `json:"count"`
}

// ListUsers returns the workflow users. Guarded by exceptions:write since
// its consumer is the assignment picker.
func (s *Service) ListUsers(ctx context.Context, actor string) (*UserList, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermExceptionsWrite); err != nil {
		return nil, err
	}
	items, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return &UserList{Items: items, Count: len(items)}, nil
}
