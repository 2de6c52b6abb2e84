package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/matching"
	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

// ExceptionList is a filtered listing of exception cases.
type ExceptionList struct {
	Items []types.ExceptionCase `json:"items"`
	Count int                   `json:"count"`
}

// ListExceptions returns up to 500 cases matching the filter.
func (s *Service) ListExceptions(ctx context.Context, actor string, f types.ExceptionFilter) (*ExceptionList, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermExceptionsRead); err != nil {
		return nil, err
	}
	items, err := s.store.ListExceptionCases(ctx, f, 500)
	if err != nil {
		return nil, err
	}
	return &ExceptionList{Items: items, Count: len(items)}, nil
}

// DiagnosticCandidate is one scored counterpart suggestion.
type DiagnosticCandidate struct {
	TxnID      string  `json:"txn_id"`
	RRN        string  `json:"rrn"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	TxnTime    string  `json:"txn_time"`
	OpType     string  `json:"op_type"`
	MerchantID string  `json:"merchant_id"`
	ScoreHint  int     `json:"score_hint"`
}

// Diagnostics explains why a transaction failed to match and suggests the
// closest counterparts from the opposite side.
type Diagnostics struct {
	TopReasons      []string              `json:"top_reasons"`
	Ruleset         map[string]any        `json:"ruleset"`
	CandidateSource string                `json:"candidate_source"`
	TopCandidates   []DiagnosticCandidate `json:"top_candidates"`
}

// ExceptionDetail is one case with its transaction, action history and
// diagnostics.
type ExceptionDetail struct {
	Case        *types.ExceptionCase    `json:"case"`
	Transaction *types.Txn              `json:"transaction"`
	Actions     []types.ExceptionAction `json:"actions"`
	Diagnostics *Diagnostics            `json:"diagnostics"`
}

// GetException returns one case with diagnostics computed against the
// currently active ruleset.
func (s *Service) GetException(ctx context.Context, actor, caseID string) (*ExceptionDetail, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermExceptionsRead); err != nil {
		return nil, err
	}
	c, err := s.store.GetExceptionCase(ctx, caseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundf("exception case not found")
	}
	if err != nil {
		return nil, err
	}
	actions, err := s.store.ListExceptionActions(ctx, caseID)
	if err != nil {
		return nil, err
	}

	detail := &ExceptionDetail{Case: c, Actions: actions}
	if txn := s.publicTxn(ctx, c.PrimaryTxnID); txn != nil {
		detail.Transaction = txn
		diag, err := s.buildDiagnostics(ctx, txn)
		if err != nil {
			return nil, err
		}
		detail.Diagnostics = diag
	}
	return detail, nil
}

// buildDiagnostics scans the opposite-side cohort for the transaction's
// business date and reports why the matcher found no unique counterpart
// plus the three closest candidates.
func (s *Service) buildDiagnostics(ctx context.Context, txn *types.Txn) (*Diagnostics, error) {
	active, err := s.store.ActiveRuleset(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, validationf("no active ruleset")
	}
	if err != nil {
		return nil, err
	}

	opposite := txn.Side.Opposite()
	rows, err := s.store.ListTxns(ctx, opposite, txn.BusinessDate)
	if err != nil {
		return nil, err
	}

	tolerance := active.AmountTolerance
	var rrnRows, rrnCurRows []types.Txn
	for _, r := range rows {
		if r.RRN == txn.RRN {
			rrnRows = append(rrnRows, r)
			if r.Currency == txn.Currency {
				rrnCurRows = append(rrnCurRows, r)
			}
		}
	}

	var reasons []string
	if len(rrnRows) == 0 {
		reasons = append(reasons, fmt.Sprintf("no %s records with the same RRN", opposite))
	} else {
		if len(rrnRows) > 1 {
			reasons = append(reasons, fmt.Sprintf("multiple %s records share this RRN (%d)", opposite, len(rrnRows)))
		}
		if len(rrnCurRows) == 0 {
			reasons = append(reasons, fmt.Sprintf("RRN found but currency differs (expected %s)", txn.Currency))
		} else {
			var inTolerance bool
			minDelta := decimal.Decimal{}
			for i, r := range rrnCurRows {
				delta := r.Amount.Sub(txn.Amount).Abs()
				if i == 0 || delta.LessThan(minDelta) {
					minDelta = delta
				}
				if delta.Cmp(tolerance) <= 0 {
					inTolerance = true
				}
			}
			if !inTolerance {
				reasons = append(reasons, fmt.Sprintf("RRN and currency match but amount is outside ±%s (min delta %s)",
					tolerance.String(), minDelta.Round(2).String()))
			}

			var inWindow bool
			for _, r := range rrnCurRows {
				if matching.DateDeltaDays(txn.TxnTime, r.TxnTime) <= float64(active.DateWindowDays) {
					inWindow = true
					break
				}
			}
			if !inWindow {
				reasons = append(reasons, fmt.Sprintf("transaction date is outside the ±%d day window", active.DateWindowDays))
			}
		}
	}
	if len(rrnCurRows) > 0 && len(reasons) == 0 {
		reasons = append(reasons, "check op_type/fee rules and one-to-many combinations")
	}
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}

	scoreHint := func(r types.Txn) int {
		score := 0
		if r.RRN == txn.RRN {
			score += 50
		}
		if r.Currency == txn.Currency {
			score += 20
		}
		delta, _ := r.Amount.Sub(txn.Amount).Abs().Float64()
		if bonus := 20 - int(math.Floor(delta)); bonus > 0 {
			score += bonus
		}
		if r.OpType == txn.OpType {
			score += 10
		}
		return score
	}

	sorted := make([]types.Txn, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return scoreHint(sorted[i]) > scoreHint(sorted[j]) })
	if len(sorted) > 3 {
		sorted = sorted[:3]
	}

	candidates := make([]DiagnosticCandidate, 0, len(sorted))
	for _, r := range sorted {
		amount, _ := r.Amount.Float64()
		candidates = append(candidates, DiagnosticCandidate{
			TxnID:      r.ID,
			RRN:        r.RRN,
			Amount:     amount,
			Currency:   r.Currency,
			TxnTime:    r.TxnTime,
			OpType:     string(r.OpType),
			MerchantID: r.MerchantID,
			ScoreHint:  scoreHint(r),
		})
	}

	return &Diagnostics{
		TopReasons: reasons,
		Ruleset: map[string]any{
			"version":          active.Version,
			"amount_tolerance": tolerance.String(),
			"date_window_days": active.DateWindowDays,
			"score_threshold":  active.ScoreThreshold,
		},
		CandidateSource: string(opposite),
		TopCandidates:   candidates,
	}, nil
}

// ExceptionActionRequest is one workflow action on a case.
type ExceptionActionRequest struct {
	ActionType     string `json:"action_type"`
	OwnerUserID    string `json:"owner_user_id,omitempty"`
	Status         string `json:"status,omitempty"`
	Comment        string `json:"comment,omitempty"`
	ResolutionCode string `json:"resolution_code,omitempty"`
}

// ExceptionAction applies one workflow action to a case, appends the action
// record and the audit event in the same unit of work, and returns the
// refreshed case detail.
func (s *Service) ExceptionAction(ctx context.Context, actor, sourceIP, caseID string, req *ExceptionActionRequest) (*ExceptionDetail, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermExceptionsWrite); err != nil {
		return nil, err
	}
	actionType := types.ActionType(req.ActionType)
	if !actionType.IsValid() {
		return nil, validationf("unsupported action_type")
	}

	err := s.store.WithUnit(ctx, func(u storage.Unit) error {
		if _, err := u.GetExceptionCase(ctx, caseID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("exception case not found")
			}
			return err
		}

		payload := map[string]any{"action_type": req.ActionType}
		switch actionType {
		case types.ActionAssign:
			if req.OwnerUserID == "" {
				return validationf("owner_user_id is required for assign")
			}
			owner, err := u.GetUser(ctx, req.OwnerUserID)
			if err != nil || owner.Status != "ACTIVE" {
				return validationf("owner_user_id not found or inactive")
			}
			if err := u.AssignCase(ctx, caseID, req.OwnerUserID); err != nil {
				return err
			}
			payload["owner_user_id"] = req.OwnerUserID

		case types.ActionStatusChange:
			if req.Status == "" {
				return validationf("status is required for status_change")
			}
			status := types.CaseStatus(req.Status)
			if !status.IsValid() {
				return validationf("unsupported status value")
			}
			if err := u.SetCaseStatus(ctx, caseID, status); err != nil {
				return err
			}
			payload["status"] = req.Status

		case types.ActionComment:
			comment := strings.TrimSpace(req.Comment)
			if comment == "" {
				return validationf("comment is required for comment action")
			}
			if len(comment) > 1000 {
				return validationf("comment is too long (max 1000 chars)")
			}
			payload["comment"] = comment

		case types.ActionClose:
			if req.ResolutionCode == "" {
				return validationf("resolution_code is required for close")
			}
			if err := u.CloseCase(ctx, caseID, req.ResolutionCode); err != nil {
				return err
			}
			payload["resolution_code"] = req.ResolutionCode
		}

		if err := u.InsertExceptionAction(ctx, &types.ExceptionAction{
			ID:         uuid.NewString(),
			CaseID:     caseID,
			Actor:      actor,
			ActionAt:   time.Now().UTC(),
			ActionType: actionType,
			Payload:    payload,
		}); err != nil {
			return err
		}

		details, _ := json.Marshal(payload)
		action := "EXCEPTION_" + strings.ToUpper(req.ActionType)
		return u.InsertAuditEvent(ctx, newAuditEvent(actor, sourceIP,
			"exception_case", caseID, action, types.AuditSuccess, string(details)))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ExceptionAction(ctx, req.ActionType)
	return s.GetException(ctx, actor, caseID)
}
