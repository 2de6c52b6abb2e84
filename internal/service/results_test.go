package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardworks/recon/internal/types"
)

func finishedRun(t *testing.T, svc *Service) string {
	t.Helper()
	ingestCohorts(t, svc)
	res, err := svc.RunMatching(context.Background(), "admin", "test", testDate, "")
	require.NoError(t, err)
	return res.RunID
}

// The unified view must cover every run output exactly once.
func TestRunResultsCoverage(t *testing.T) {
	svc, _ := newTestService(t)
	runID := finishedRun(t, svc)
	ctx := context.Background()

	page, err := svc.RunResults(ctx, "admin", runID, types.ResultQuery{})
	require.NoError(t, err)

	if page.Total != 6 { // 4 match rows + 2 exception rows
		t.Errorf("total = %d, want 6", page.Total)
	}
	sum := page.Summary
	if sum.Matched+sum.Partial+sum.Duplicates+sum.UnmatchedLeft+sum.UnmatchedRight != page.Total {
		t.Errorf("summary %+v does not cover the %d rows", sum, page.Total)
	}
	if sum.Matched != 1 || sum.Partial != 3 || sum.UnmatchedLeft != 1 || sum.UnmatchedRight != 1 {
		t.Errorf("summary = %+v", sum)
	}
	// |49.50 - 50.00| from the fuzzy pair; both 1:N rows pair 200 against
	// their split amounts.
	if sum.AmountDelta != 0.5+80+120 {
		t.Errorf("amount delta = %v, want 200.5", sum.AmountDelta)
	}
}

func TestRunResultsPagination(t *testing.T) {
	svc, _ := newTestService(t)
	runID := finishedRun(t, svc)
	ctx := context.Background()

	page, err := svc.RunResults(ctx, "admin", runID, types.ResultQuery{Page: 1, PageSize: 4})
	require.NoError(t, err)
	if page.TotalPages != 2 || len(page.Items) != 4 {
		t.Errorf("page 1: total_pages=%d items=%d, want 2 and 4", page.TotalPages, len(page.Items))
	}

	page, err = svc.RunResults(ctx, "admin", runID, types.ResultQuery{Page: 2, PageSize: 4})
	require.NoError(t, err)
	if len(page.Items) != 2 {
		t.Errorf("page 2: items=%d, want 2", len(page.Items))
	}
	// The summary always covers the whole run, filters notwithstanding.
	if page.Summary.Matched != 1 {
		t.Errorf("summary on page 2 = %+v", page.Summary)
	}

	var verr *ValidationError
	minA, maxA := 100.0, 50.0
	_, err = svc.RunResults(ctx, "admin", runID, types.ResultQuery{AmountMin: &minA, AmountMax: &maxA})
	if !errors.As(err, &verr) {
		t.Errorf("inverted amount range err = %v, want ValidationError", err)
	}

	var nerr *NotFoundError
	_, err = svc.RunResults(ctx, "admin", "missing-run", types.ResultQuery{})
	if !errors.As(err, &nerr) {
		t.Errorf("missing run err = %v, want NotFoundError", err)
	}
}

func TestRunResultsFilters(t *testing.T) {
	svc, _ := newTestService(t)
	runID := finishedRun(t, svc)
	ctx := context.Background()

	page, err := svc.RunResults(ctx, "admin", runID, types.ResultQuery{Status: "matched"})
	require.NoError(t, err)
	if page.Total != 1 || page.Items[0].Status != "MATCHED" {
		t.Errorf("status filter: total=%d items=%+v", page.Total, page.Items)
	}

	page, err = svc.RunResults(ctx, "admin", runID, types.ResultQuery{Currency: "kzt"})
	require.NoError(t, err)
	if page.Total != 1 {
		t.Errorf("currency filter total = %d, want 1 (the KZT exact pair)", page.Total)
	}

	page, err = svc.RunResults(ctx, "admin", runID, types.ResultQuery{Search: "100005"})
	require.NoError(t, err)
	if page.Total != 1 || !strings.HasPrefix(page.Items[0].RowID, "E:") {
		t.Errorf("search filter: total=%d items=%+v", page.Total, page.Items)
	}
}

func TestLatestResults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	empty, err := svc.LatestResults(ctx, "admin", testDate, types.ResultQuery{})
	require.NoError(t, err)
	if empty.HasRun || empty.ResultsPage != nil {
		t.Errorf("empty = %+v, want no run", empty)
	}

	runID := finishedRun(t, svc)
	latest, err := svc.LatestResults(ctx, "admin", testDate, types.ResultQuery{})
	require.NoError(t, err)
	if !latest.HasRun || latest.Run.ID != runID {
		t.Errorf("latest = %+v, want run %s", latest, runID)
	}
}

func TestResultRowDetailsMatch(t *testing.T) {
	svc, _ := newTestService(t)
	runID := finishedRun(t, svc)
	ctx := context.Background()

	page, err := svc.RunResults(ctx, "admin", runID, types.ResultQuery{Status: "PARTIAL", Search: "100002"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	details, err := svc.ResultRowDetails(ctx, "admin", page.Items[0].RowID)
	require.NoError(t, err)
	require.NotNil(t, details.LeftRecord)
	require.NotNil(t, details.RightRecord)
	if details.LeftRecord.PANHash != "" || details.RightRecord.PANHash != "" {
		t.Error("pan_hash must not leak through result details")
	}
	if details.ReasonCode != "FUZZY_SCORE" || details.Score == nil {
		t.Errorf("details = %+v", details)
	}

	var foundAmount bool
	for _, d := range details.Differences {
		if d.Field == "amount" && d.Severity == "HIGH" {
			foundAmount = true
		}
	}
	if !foundAmount {
		t.Errorf("differences = %+v, want a HIGH amount diff", details.Differences)
	}
}

func TestResultRowDetailsException(t *testing.T) {
	svc, _ := newTestService(t)
	runID := finishedRun(t, svc)
	ctx := context.Background()

	page, err := svc.RunResults(ctx, "admin", runID, types.ResultQuery{Status: "MISSING_IN_LEFT"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	details, err := svc.ResultRowDetails(ctx, "admin", page.Items[0].RowID)
	require.NoError(t, err)
	// The orphan is a RIGHT row, so it sits in the right slot and the best
	// diagnostic candidate (if any) fills the left.
	require.NotNil(t, details.RightRecord)
	if details.RightRecord.RRN != "100005" {
		t.Errorf("right record rrn = %s, want 100005", details.RightRecord.RRN)
	}
	if details.ReasonCode != "MISSING_IN_LEFT" {
		t.Errorf("reason = %s", details.ReasonCode)
	}
	if details.Explain["candidate_source"] != "LEFT" {
		t.Errorf("explain = %v", details.Explain)
	}

	var verr *ValidationError
	if _, err := svc.ResultRowDetails(ctx, "admin", "bogus"); !errors.As(err, &verr) {
		t.Errorf("bogus row id err = %v, want ValidationError", err)
	}
	if _, err := svc.ResultRowDetails(ctx, "admin", "X:123"); !errors.As(err, &verr) {
		t.Errorf("unknown prefix err = %v, want ValidationError", err)
	}
}

func TestPutRuleset(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	var verr *ValidationError
	_, err := svc.PutRuleset(ctx, "admin", "test", &RulesetRequest{})
	if !errors.As(err, &verr) {
		t.Fatalf("empty request err = %v, want ValidationError", err)
	}

	_, err = svc.PutRuleset(ctx, "admin", "test", &RulesetRequest{
		AmountTolerance: fp(-1.0), DateWindowDays: ip(1), ScoreThreshold: fp(0.8),
	})
	if !errors.As(err, &verr) {
		t.Errorf("negative tolerance err = %v, want ValidationError", err)
	}

	rs, err := svc.PutRuleset(ctx, "admin", "test", &RulesetRequest{
		Version: "v2", AmountTolerance: fp(1.5), DateWindowDays: ip(2), ScoreThreshold: fp(0.8),
	})
	require.NoError(t, err)
	if rs.Version != "v2" || !rs.IsActive {
		t.Errorf("ruleset = %+v", rs)
	}

	active, err := store.ActiveRuleset(ctx)
	require.NoError(t, err)
	if active.Version != "v2" {
		t.Errorf("active = %s, want v2", active.Version)
	}

	list, err := svc.ListRulesets(ctx, "admin")
	require.NoError(t, err)
	if len(list.Items) != 2 {
		t.Errorf("got %d rulesets, want 2", len(list.Items))
	}

	// Omitted version gets generated.
	rs, err = svc.PutRuleset(ctx, "admin", "test", &RulesetRequest{
		AmountTolerance: fp(2.0), DateWindowDays: ip(1), ScoreThreshold: fp(0.75),
	})
	require.NoError(t, err)
	if !strings.HasPrefix(rs.Version, "v2") || len(rs.Version) < 10 {
		t.Errorf("generated version = %q", rs.Version)
	}

	events, err := store.ListAuditEvents(ctx, types.AuditFilter{Action: "RULESET_UPDATE"}, 100)
	require.NoError(t, err)
	if len(events) != 2 {
		t.Errorf("got %d ruleset audits, want 2", len(events))
	}
}

func ip(v int) *int { return &v }

func TestSourceBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	empty, err := svc.GetSourceBalance(ctx, "admin", testDate)
	require.NoError(t, err)
	if empty.ReadyForMatching || len(empty.Warnings) != 2 {
		t.Errorf("empty balance = %+v", empty)
	}

	ingestCohorts(t, svc)
	bal, err := svc.GetSourceBalance(ctx, "admin", testDate)
	require.NoError(t, err)
	if !bal.ReadyForMatching || bal.LeftRecords != 4 || bal.RightRecords != 5 {
		t.Errorf("balance = %+v", bal)
	}
	if bal.RatioLeftToRight == nil || *bal.RatioLeftToRight != 0.8 {
		t.Errorf("ratio = %v, want 0.8", bal.RatioLeftToRight)
	}
	if len(bal.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", bal.Warnings)
	}
	if bal.LeftFiles != 1 || bal.RightFiles != 1 {
		t.Errorf("files = %d/%d, want 1/1", bal.LeftFiles, bal.RightFiles)
	}
}

func TestAnalytics(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	before, err := svc.GetAnalytics(ctx, "finance", testDate)
	require.NoError(t, err)
	if before.Message == "" || before.RunID != "" {
		t.Errorf("pre-run analytics = %+v, want a no-run message", before)
	}

	runID := finishedRun(t, svc)
	a, err := svc.GetAnalytics(ctx, "finance", testDate)
	require.NoError(t, err)
	if a.RunID != runID || a.TotalLeft != 4 || a.TotalRight != 5 {
		t.Errorf("analytics = %+v", a)
	}
	// Three of the four left txns matched (exact, fuzzy, 1:N).
	if a.MatchedCount != 3 || a.MatchRatePct != 75.0 {
		t.Errorf("matched=%d rate=%v, want 3 and 75.0", a.MatchedCount, a.MatchRatePct)
	}
	if a.PartialCount != 3 {
		t.Errorf("partial = %d, want 3", a.PartialCount)
	}
	if a.UnmatchedCount != 2 {
		t.Errorf("unmatched (open cases) = %d, want 2", a.UnmatchedCount)
	}
	if a.VarianceAmount != 200.5 {
		t.Errorf("variance = %v, want 200.5", a.VarianceAmount)
	}
}
