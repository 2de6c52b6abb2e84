package service

import (
	"context"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/types"
)

// AuditList is a filtered slice of the audit trail, newest first.
type AuditList struct {
	Items []types.AuditEvent `json:"items"`
	Count int                `json:"count"`
}

// ListAudit returns up to 1000 audit events matching the filter.
func (s *Service) ListAudit(ctx context.Context, actor string, f types.AuditFilter) (*AuditList, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermAuditRead); err != nil {
		return nil, err
	}
	items, err := s.store.ListAuditEvents(ctx, f, 1000)
	if err != nil {
		return nil, err
	}
	return &AuditList{Items: items, Count: len(items)}, nil
}
