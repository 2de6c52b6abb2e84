package service

import (
	"context"
	"errors"
	"strings"

	"github.com/cardworks/recon/internal/auth"
	"github.com/cardworks/recon/internal/storage"
	"github.com/cardworks/recon/internal/types"
)

// ResultsPage is one page of the unified result view plus the run's
// whole-run summary.
type ResultsPage struct {
	Run        *types.MatchRun      `json:"run"`
	Summary    *types.ResultSummary `json:"summary"`
	Items      []types.UnifiedRow   `json:"items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	Total      int                  `json:"total"`
	TotalPages int                  `json:"total_pages"`
}

// LatestResultsPage wraps a results page for the latest-run endpoint; when
// no run exists for the date only HasRun and BusinessDate are set.
type LatestResultsPage struct {
	HasRun       bool   `json:"has_run"`
	BusinessDate string `json:"business_date"`
	*ResultsPage
}

// RunResults returns one page of the unified view for a run. The summary
// always covers the whole run regardless of filters.
func (s *Service) RunResults(ctx context.Context, actor, runID string, q types.ResultQuery) (*ResultsPage, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchRead); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, validationf("run_id is required")
	}
	if err := sanitizeResultQuery(&q); err != nil {
		return nil, err
	}

	run, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundf("run not found")
	}
	if err != nil {
		return nil, err
	}

	summary, err := s.store.UnifiedSummary(ctx, runID)
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.UnifiedPage(ctx, runID, q)
	if err != nil {
		return nil, err
	}

	return &ResultsPage{
		Run:        run,
		Summary:    summary,
		Items:      items,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      total,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

// LatestResults resolves the most recent run for a date and returns its
// results page.
func (s *Service) LatestResults(ctx context.Context, actor, businessDate string, q types.ResultQuery) (*LatestResultsPage, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchRead); err != nil {
		return nil, err
	}
	if businessDate == "" {
		return nil, validationf("business_date is required")
	}
	run, err := s.store.LatestRun(ctx, businessDate)
	if errors.Is(err, storage.ErrNotFound) {
		return &LatestResultsPage{BusinessDate: businessDate}, nil
	}
	if err != nil {
		return nil, err
	}
	page, err := s.RunResults(ctx, actor, run.ID, q)
	if err != nil {
		return nil, err
	}
	return &LatestResultsPage{HasRun: true, BusinessDate: businessDate, ResultsPage: page}, nil
}

func sanitizeResultQuery(q *types.ResultQuery) error {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 50
	}
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	if q.PageSize > 200 {
		q.PageSize = 200
	}
	q.Status = strings.ToUpper(strings.TrimSpace(q.Status))
	q.Search = strings.TrimSpace(q.Search)
	q.Currency = strings.ToUpper(strings.TrimSpace(q.Currency))
	q.SortBy = strings.ToLower(strings.TrimSpace(q.SortBy))
	q.SortDir = strings.ToLower(strings.TrimSpace(q.SortDir))
	if q.AmountMin != nil && q.AmountMax != nil && *q.AmountMin > *q.AmountMax {
		return validationf("amount_min must be <= amount_max")
	}
	return nil
}

// ResultDetails is the drill-down of one unified row: both transaction
// records, their field differences and the match explain payload.
type ResultDetails struct {
	RowID       string            `json:"row_id"`
	RunID       string            `json:"run_id"`
	LeftRecord  *types.Txn        `json:"left_record"`
	RightRecord *types.Txn        `json:"right_record"`
	Differences []types.FieldDiff `json:"differences"`
	ReasonCode  string            `json:"reason_code"`
	Score       *float64          `json:"score"`
	Explain     map[string]any    `json:"explain_json"`
}

// ResultRowDetails resolves an "M:<match_id>" or "E:<case_id>" row id to
// its full drill-down. For exception rows the best diagnostic candidate
// from the opposite side fills the missing record slot.
func (s *Service) ResultRowDetails(ctx context.Context, actor, rowID string) (*ResultDetails, error) {
	if err := s.CheckPermission(ctx, actor, auth.PermMatchRead); err != nil {
		return nil, err
	}
	prefix, rawID, ok := strings.Cut(rowID, ":")
	if !ok || rawID == "" {
		return nil, validationf("invalid row_id")
	}

	switch strings.ToUpper(prefix) {
	case "M":
		return s.matchRowDetails(ctx, rowID, rawID)
	case "E":
		return s.exceptionRowDetails(ctx, rowID, rawID)
	}
	return nil, validationf("unsupported row_id prefix")
}

func (s *Service) matchRowDetails(ctx context.Context, rowID, matchID string) (*ResultDetails, error) {
	m, err := s.store.GetMatchResult(ctx, matchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundf("result row not found")
	}
	if err != nil {
		return nil, err
	}
	left := s.publicTxn(ctx, m.LeftTxnID)
	right := s.publicTxn(ctx, m.RightTxnID)
	score := m.Score
	return &ResultDetails{
		RowID:       rowID,
		RunID:       m.RunID,
		LeftRecord:  left,
		RightRecord: right,
		Differences: buildDifferences(left, right),
		ReasonCode:  m.ReasonCode,
		Score:       &score,
		Explain:     m.Explain,
	}, nil
}

func (s *Service) exceptionRowDetails(ctx context.Context, rowID, caseID string) (*ResultDetails, error) {
	c, err := s.store.GetExceptionCase(ctx, caseID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundf("result row not found")
	}
	if err != nil {
		return nil, err
	}
	primary := s.publicTxn(ctx, c.PrimaryTxnID)
	if primary == nil {
		return nil, notFoundf("primary transaction not found")
	}

	diag, err := s.buildDiagnostics(ctx, primary)
	if err != nil {
		return nil, err
	}
	var candidate *types.Txn
	if len(diag.TopCandidates) > 0 {
		candidate = s.publicTxn(ctx, diag.TopCandidates[0].TxnID)
	}

	left, right := primary, candidate
	if primary.Side == types.SideRight {
		left, right = candidate, primary
	}
	return &ResultDetails{
		RowID:       rowID,
		RunID:       c.RunID,
		LeftRecord:  left,
		RightRecord: right,
		Differences: buildDifferences(left, right),
		ReasonCode:  string(c.Category),
		Explain: map[string]any{
			"top_reasons":      diag.TopReasons,
			"candidate_source": diag.CandidateSource,
		},
	}, nil
}

// publicTxn loads a transaction with the pan_hash stripped; a missing or
// empty id yields nil.
func (s *Service) publicTxn(ctx context.Context, txnID string) *types.Txn {
	if txnID == "" {
		return nil
	}
	t, err := s.store.GetTxn(ctx, txnID)
	if err != nil {
		return nil
	}
	t.PANHash = ""
	return t
}

// buildDifferences lists the business fields that differ between two
// records, each tagged with a triage severity.
func buildDifferences(left, right *types.Txn) []types.FieldDiff {
	type field struct {
		name     string
		severity string
		get      func(*types.Txn) any
	}
	fields := []field{
		{"rrn", "HIGH", func(t *types.Txn) any { return t.RRN }},
		{"arn", "HIGH", func(t *types.Txn) any { return t.ARN }},
		{"pan_masked", "LOW", func(t *types.Txn) any { return t.PANMasked }},
		{"amount", "HIGH", func(t *types.Txn) any { return t.Amount.String() }},
		{"currency", "HIGH", func(t *types.Txn) any { return t.Currency }},
		{"txn_time", "MEDIUM", func(t *types.Txn) any { return t.TxnTime }},
		{"status_norm", "MEDIUM", func(t *types.Txn) any { return t.StatusNorm }},
		{"op_type", "MEDIUM", func(t *types.Txn) any { return string(t.OpType) }},
		{"merchant_id", "MEDIUM", func(t *types.Txn) any { return t.MerchantID }},
		{"channel_id", "MEDIUM", func(t *types.Txn) any { return t.ChannelID }},
		{"fee_amount", "LOW", func(t *types.Txn) any { return t.FeeAmount.String() }},
		{"fee_currency", "LOW", func(t *types.Txn) any { return t.FeeCurrency }},
	}

	var out []types.FieldDiff
	for _, f := range fields {
		var l, r any
		if left != nil {
			l = f.get(left)
		}
		if right != nil {
			r = f.get(right)
		}
		if l == r {
			continue
		}
		out = append(out, types.FieldDiff{Field: f.name, Left: l, Right: r, Severity: f.severity})
	}
	return out
}
