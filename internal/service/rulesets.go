package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

// RulesetList is the version history, newest first.
type RulesetList struct {
	Items []types.Ruleset `json:"items"`
}

// ListRulesets returns every ruleset version.
func (s *Service) ListRulesets(ctx context.Context, actor string) (*RulesetList, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermAdminRules); err != nil {
		return nil, err
	}
	items, err := s.store.ListRulesets(ctx)
	if err != nil {
		return nil, err
	}
	return &RulesetList{Items: items}, nil
}

// RulesetRequest installs a new active ruleset version.
type RulesetRequest struct {
	Version         string   `json:"version,omitempty"`
	AmountTolerance *float64 `json:"amount_tolerance"`
	DateWindowDays  *int     `json:"date_window_days"`
	ScoreThreshold  *float64 `json:"score_threshold"`
}

// PutRuleset deactivates the current ruleset and installs the new one as
// the single active version, atomically. An omitted version gets a
// timestamp-derived one.
func (s *Service) PutRuleset(ctx context.Context, actor, sourceIP string, req *RulesetRequest) (*types.Ruleset, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermAdminRules); err != nil {
		return nil, err
	}
	if req.AmountTolerance == nil {
		return nil, validationf("amount_tolerance is required")
	}
	if req.DateWindowDays == nil {
		return nil, validationf("date_window_days is required")
	}
	if req.ScoreThreshold == nil {
		return nil, validationf("score_threshold is required")
	}

	version := req.Version
	if version == "" {
		version = time.Now().UTC().Format("v20060102150405")
	}
	rs := &types.Ruleset{
		Version:         version,
		IsActive:        true,
		AmountTolerance: decimal.NewFromFloat(*req.AmountTolerance),
		DateWindowDays:  *req.DateWindowDays,
		ScoreThreshold:  *req.ScoreThreshold,
		CreatedAt:       time.Now().UTC(),
	}
	if err := rs.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	err := s.store.WithUnit(ctx, func(u storage.Unit) error {
		if err := u.DeactivateRulesets(ctx); err != nil {
			return err
		}
		if err := u.InsertRuleset(ctx, rs); err != nil {
			return err
		}
		details := fmt.Sprintf("amount_tolerance=%s date_window_days=%d score_threshold=%g",
			rs.AmountTolerance.String(), rs.DateWindowDays, rs.ScoreThreshold)
		return u.InsertAuditEvent(ctx, newAuditEvent(actor, sourceIP,
			"ruleset", version, "RULESET_UPDATE", types.AuditSuccess, details))
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}
