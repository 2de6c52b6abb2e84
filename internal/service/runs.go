package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/matching"
	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

// RunResult reports a completed match run.
type RunResult struct {
	RunID             string `json:"run_id"`
	BusinessDate      string `json:"business_date"`
	RulesetVersion    string `json:"ruleset_version"`
	MatchesCreated    int    `json:"matches_created"`
	ExceptionsCreated int    `json:"exceptions_created"`
	StartedAt         string `json:"started_at"`
	FinishedAt        string `json:"finished_at"`
}

// RunMatching executes the matcher over one business date's cohorts.
//
// The RUNNING row is committed before the matching stage so status polling
// sees the run immediately. If any later step fails, the staged outputs are
// discarded and the run lands in FAILED with a FAILURE audit event; a run
// never commits partial outputs.
func (s *Service) RunMatching(ctx context.Context, actor, sourceIP, businessDate, scopeFilter string) (*RunResult, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchExecute); err != nil {
		return nil, err
	}
	if businessDate == "" {
		return nil, validationf("business_date is required")
	}
	if scopeFilter == "" {
		scopeFilter = "ALL"
	}

	var out RunResult
	err := s.store.WithUnit(ctx, func(u storage.Unit) error {
		active, err := u.ActiveRuleset(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return validationf("no active ruleset")
		}
		if err != nil {
			return err
		}
		rules := matching.Rules{
			Version:         active.Version,
			AmountTolerance: active.AmountTolerance,
			DateWindowDays:  active.DateWindowDays,
			ScoreThreshold:  active.ScoreThreshold,
		}

		left, err := u.ListTxns(ctx, types.SideLeft, businessDate)
		if err != nil {
			return err
		}
		right, err := u.ListTxns(ctx, types.SideRight, businessDate)
		if err != nil {
			return err
		}
		if len(left) == 0 && len(right) == 0 {
			return validationf("no transactions for selected business_date")
		}
		if len(left) == 0 || len(right) == 0 {
			return validationf("both sources are required: load LEFT and RIGHT for selected business_date")
		}

		run := &types.MatchRun{
			ID:             uuid.NewString(),
			BusinessDate:   businessDate,
			ScopeFilter:    scopeFilter,
			RulesetVersion: active.Version,
			StartedAt:      time.Now().UTC(),
			Status:         types.RunRunning,
			CreatedBy:      actor,
		}
		if err := u.InsertMatchRun(ctx, run); err != nil {
			return err
		}
		// Make RUNNING durable before the long matching stage.
		if err := u.Checkpoint(ctx); err != nil {
			return err
		}

		matches, exceptions := matching.Run(left, right, rules)
		stageErr := s.stageRunOutputs(ctx, u, run, matches, exceptions)
		if stageErr == nil {
			out = RunResult{
				RunID:             run.ID,
				BusinessDate:      businessDate,
				RulesetVersion:    active.Version,
				MatchesCreated:    len(matches),
				ExceptionsCreated: len(exceptions),
				StartedAt:         run.StartedAt.UTC().Format(time.RFC3339Nano),
				FinishedAt:        time.Now().UTC().Format(time.RFC3339Nano),
			}
			if err := u.InsertAuditEvent(ctx, newAuditEvent(actor, sourceIP,
				"match_run", run.ID, "MATCH_RUN_EXECUTE", types.AuditSuccess,
				fmt.Sprintf("matches=%d exceptions=%d", len(matches), len(exceptions)))); err != nil {
				return err
			}
			s.metrics.MatchRun(ctx, string(types.RunFinished), len(matches), len(exceptions))
			return nil
		}

		// Discard whatever the failed stage left behind, then record the
		// FAILED state durably before surfacing the stage error.
		if err := u.Restart(ctx); err != nil {
			return err
		}
		if err := u.FinishRun(ctx, run.ID, types.RunFailed); err != nil {
			return err
		}
		if err := u.InsertAuditEvent(ctx, newAuditEvent(actor, sourceIP,
			"match_run", run.ID, "MATCH_RUN_EXECUTE", types.AuditFailure,
			truncate(stageErr.Error(), 300))); err != nil {
			return err
		}
		if err := u.Checkpoint(ctx); err != nil {
			return err
		}
		s.metrics.MatchRun(ctx, string(types.RunFailed), 0, 0)
		return stageErr
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// stageRunOutputs writes the run's matches, exceptions and FINISHED marker
// into the current transaction.
func (s *Service) stageRunOutputs(ctx context.Context, u storage.Unit, run *types.MatchRun, matches []matching.Match, exceptions []matching.Exception) error {
	for _, m := range matches {
		if err := u.InsertMatchResult(ctx, &types.MatchResult{
			ID:         uuid.NewString(),
			RunID:      run.ID,
			LeftTxnID:  m.LeftTxnID,
			RightTxnID: m.RightTxnID,
			MatchType:  m.MatchType,
			Score:      m.Score,
			ReasonCode: m.ReasonCode,
			Explain:    m.Explain,
		}); err != nil {
			return err
		}
	}
	for _, e := range exceptions {
		if err := u.InsertExceptionCase(ctx, &types.ExceptionCase{
			ID:           uuid.NewString(),
			RunID:        run.ID,
			BusinessDate: run.BusinessDate,
			Category:     e.Category,
			Severity:     e.Severity,
			Status:       types.CaseNew,
			PrimaryTxnID: e.PrimaryTxnID,
			CreatedAt:    time.Now().UTC(),
		}); err != nil {
			return err
		}
	}
	if s.runHook != nil {
		if err := s.runHook(); err != nil {
			return err
		}
	}
	return u.FinishRun(ctx, run.ID, types.RunFinished)
}

// RunStatus is the polling view of the latest run for a business date.
type RunStatus struct {
	HasRun            bool            `json:"has_run"`
	BusinessDate      string          `json:"business_date"`
	Run               *types.MatchRun `json:"run,omitempty"`
	MatchesCreated    *int            `json:"matches_created"`
	ExceptionsCreated *int            `json:"exceptions_created"`
}

// LatestRunStatus returns the most recent run for a date, with output
// counts once the run has finished.
func (s *Service) LatestRunStatus(ctx context.Context, actor, businessDate string) (*RunStatus, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchRead); err != nil {
		return nil, err
	}
	if businessDate == "" {
		return nil, validationf("business_date is required")
	}

	run, err := s.store.LatestRun(ctx, businessDate)
	if errors.Is(err, storage.ErrNotFound) {
		return &RunStatus{BusinessDate: businessDate}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &RunStatus{HasRun: true, BusinessDate: businessDate, Run: run}
	if run.Status == types.RunFinished {
		matches, exceptions, err := s.store.RunOutputCounts(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		out.MatchesCreated = &matches
		out.ExceptionsCreated = &exceptions
	}
	return out, nil
}

// RunDetail is one run with its output breakdowns.
type RunDetail struct {
	Run              *types.MatchRun `json:"run"`
	MatchSummary     map[string]int  `json:"match_summary"`
	ExceptionSummary map[string]int  `json:"exception_summary"`
}

// GetRun returns one run with per-type and per-category output counts.
func (s *Service) GetRun(ctx context.Context, actor, runID string) (*RunDetail, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchRead); err != nil {
		return nil, err
	}
	run, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundf("run not found")
	}
	if err != nil {
		return nil, err
	}
	matchSummary, err := s.store.MatchTypeCounts(ctx, runID)
	if err != nil {
		return nil, err
	}
	excSummary, err := s.store.ExceptionCategoryCounts(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, MatchSummary: matchSummary, ExceptionSummary: excSummary}, nil
}

// ListRuns returns runs newest first, optionally scoped to one business
// date. The limit is clamped to [1, 500]; zero means 50.
func (s *Service) ListRuns(ctx context.Context, actor, businessDate string, limit int) ([]types.MatchRun, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchRead); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = 50
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	return s.store.ListRuns(ctx, businessDate, limit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
