package service

import (
	"context"
	"errors"
	"math"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

// SourceBalance is the pre-run readiness check for one business date.
type SourceBalance struct {
	BusinessDate     string   `json:"business_date"`
	LeftRecords      int      `json:"left_records"`
	RightRecords     int      `json:"right_records"`
	LeftFiles        int      `json:"left_files"`
	RightFiles       int      `json:"right_files"`
	RatioLeftToRight *float64 `json:"ratio_left_to_right"`
	ReadyForMatching bool     `json:"ready_for_matching"`
	Warnings         []string `json:"warnings"`
}

// GetSourceBalance reports both sides' loaded volumes and flags gaps or a
// strong volume skew before a run is attempted.
func (s *Service) GetSourceBalance(ctx context.Context, actor, businessDate string) (*SourceBalance, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchRead); err != nil {
		return nil, err
	}
	if businessDate == "" {
		return nil, validationf("business_date is required")
	}

	leftTxns, err := s.store.CountTxns(ctx, types.SideLeft, businessDate)
	if err != nil {
		return nil, err
	}
	rightTxns, err := s.store.CountTxns(ctx, types.SideRight, businessDate)
	if err != nil {
		return nil, err
	}
	leftFiles, err := s.store.CountIngestFiles(ctx, types.SideLeft, businessDate)
	if err != nil {
		return nil, err
	}
	rightFiles, err := s.store.CountIngestFiles(ctx, types.SideRight, businessDate)
	if err != nil {
		return nil, err
	}

	out := &SourceBalance{
		BusinessDate:     businessDate,
		LeftRecords:      leftTxns,
		RightRecords:     rightTxns,
		LeftFiles:        leftFiles,
		RightFiles:       rightFiles,
		ReadyForMatching: leftTxns > 0 && rightTxns > 0,
		Warnings:         []string{},
	}
	if leftTxns == 0 {
		out.Warnings = append(out.Warnings, "no LEFT data for the selected date")
	}
	if rightTxns == 0 {
		out.Warnings = append(out.Warnings, "no RIGHT data for the selected date")
	}
	if leftTxns > 0 && rightTxns > 0 {
		ratio := round4(float64(leftTxns) / float64(rightTxns))
		out.RatioLeftToRight = &ratio
		if ratio < 0.3 || ratio > 3.0 {
			out.Warnings = append(out.Warnings, "strong volume skew between LEFT and RIGHT")
		}
	}
	return out, nil
}

// Analytics summarizes the latest run of one business date.
type Analytics struct {
	BusinessDate     string  `json:"business_date"`
	RunID            string  `json:"run_id,omitempty"`
	TotalLeft        int     `json:"total_left"`
	TotalRight       int     `json:"total_right"`
	MatchRatePct     float64 `json:"match_rate_pct"`
	MatchedCount     int     `json:"matched_count"`
	UnmatchedCount   int     `json:"unmatched_count"`
	PartialCount     int     `json:"partial_count"`
	AvgOpenAgingDays float64 `json:"avg_open_aging_days"`
	VarianceAmount   float64 `json:"variance_amount"`
	Message          string  `json:"message,omitempty"`
}

// GetAnalytics computes the match-rate and variance KPIs for the latest
// run on a date. With no run yet only the cohort totals are filled.
func (s *Service) GetAnalytics(ctx context.Context, actor, businessDate string) (*Analytics, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermAnalyticsRead); err != nil {
		return nil, err
	}
	if businessDate == "" {
		return nil, validationf("business_date is required")
	}

	totalLeft, err := s.store.CountTxns(ctx, types.SideLeft, businessDate)
	if err != nil {
		return nil, err
	}
	totalRight, err := s.store.CountTxns(ctx, types.SideRight, businessDate)
	if err != nil {
		return nil, err
	}

	out := &Analytics{BusinessDate: businessDate, TotalLeft: totalLeft, TotalRight: totalRight}

	run, err := s.store.LatestRun(ctx, businessDate)
	if errors.Is(err, storage.ErrNotFound) {
		out.Message = "no match run for date"
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	matchedUnique, err := s.store.MatchedUniqueLeft(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	partialCount, err := s.store.PartialMatchCount(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	openCount, meanAging, err := s.store.OpenExceptionStats(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	variance, err := s.store.AmountVariance(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	out.RunID = run.ID
	out.MatchedCount = matchedUnique
	out.UnmatchedCount = openCount
	out.PartialCount = partialCount
	out.AvgOpenAgingDays = round2(meanAging)
	out.VarianceAmount = round2(variance)
	if totalLeft > 0 {
		out.MatchRatePct = round2(float64(matchedUnique) / float64(totalLeft) * 100.0)
	}
	return out, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
