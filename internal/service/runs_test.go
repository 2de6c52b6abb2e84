package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardworks/recon/internal/types"
)

func TestRunMatchingLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	ingestCohorts(t, svc)

	res, err := svc.RunMatching(ctx, "admin", "test", testDate, "")
	require.NoError(t, err)
	if res.MatchesCreated != 4 || res.ExceptionsCreated != 2 {
		t.Errorf("created %d matches, %d exceptions, want 4 and 2", res.MatchesCreated, res.ExceptionsCreated)
	}
	if res.RulesetVersion != "v1" {
		t.Errorf("ruleset version = %q, want v1", res.RulesetVersion)
	}

	run, err := store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	if run.Status != types.RunFinished || run.ScopeFilter != "ALL" {
		t.Errorf("run = %+v, want FINISHED with scope ALL", run)
	}

	status, err := svc.LatestRunStatus(ctx, "admin", testDate)
	require.NoError(t, err)
	if !status.HasRun || status.Run.ID != res.RunID {
		t.Errorf("status = %+v", status)
	}
	if status.MatchesCreated == nil || *status.MatchesCreated != 4 {
		t.Errorf("status matches = %v, want 4", status.MatchesCreated)
	}

	detail, err := svc.GetRun(ctx, "admin", res.RunID)
	require.NoError(t, err)
	if detail.MatchSummary["MATCHED"] != 1 || detail.MatchSummary["PARTIAL_MATCH"] != 3 {
		t.Errorf("match summary = %v", detail.MatchSummary)
	}
	if detail.ExceptionSummary["MISSING_IN_RIGHT"] != 1 || detail.ExceptionSummary["MISSING_IN_LEFT"] != 1 {
		t.Errorf("exception summary = %v", detail.ExceptionSummary)
	}

	events, err := store.ListAuditEvents(ctx, types.AuditFilter{Action: "MATCH_RUN_EXECUTE"}, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	if events[0].Result != types.AuditSuccess {
		t.Errorf("audit result = %v, want SUCCESS", events[0].Result)
	}
}

// Every staged output must be discarded when a run fails after matching:
// the run lands in FAILED with zero outputs and a FAILURE audit event.
func TestRunMatchingAtomicity(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	ingestCohorts(t, svc)

	induced := errors.New("induced staging failure")
	svc.runHook = func() error { return induced }

	_, err := svc.RunMatching(ctx, "admin", "test", testDate, "")
	if !errors.Is(err, induced) {
		t.Fatalf("RunMatching err = %v, want the induced failure", err)
	}

	run, err := store.LatestRun(ctx, testDate)
	require.NoError(t, err)
	if run.Status != types.RunFailed || run.FinishedAt == nil {
		t.Errorf("run = %+v, want FAILED with finished_at", run)
	}

	matches, exceptions, err := store.RunOutputCounts(ctx, run.ID)
	require.NoError(t, err)
	if matches != 0 || exceptions != 0 {
		t.Errorf("outputs = %d matches, %d exceptions, want none committed", matches, exceptions)
	}

	events, err := store.ListAuditEvents(ctx, types.AuditFilter{Action: "MATCH_RUN_EXECUTE"}, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	if events[0].Result != types.AuditFailure {
		t.Errorf("audit result = %v, want FAILURE", events[0].Result)
	}
}

func TestRunMatchingValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var verr *ValidationError

	_, err := svc.RunMatching(ctx, "admin", "test", "", "")
	if !errors.As(err, &verr) {
		t.Errorf("empty date err = %v, want ValidationError", err)
	}

	_, err = svc.RunMatching(ctx, "admin", "test", testDate, "")
	if !errors.As(err, &verr) {
		t.Errorf("no data err = %v, want ValidationError", err)
	}

	// Only one side loaded.
	_, err = svc.Ingest(ctx, "admin", "test", leftRequest(record("100001", 1.0, "USD")))
	require.NoError(t, err)
	_, err = svc.RunMatching(ctx, "admin", "test", testDate, "")
	if !errors.As(err, &verr) {
		t.Errorf("one-sided err = %v, want ValidationError", err)
	}
}

func TestListRunsScoping(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ingestCohorts(t, svc)

	_, err := svc.RunMatching(ctx, "admin", "test", testDate, "")
	require.NoError(t, err)
	_, err = svc.RunMatching(ctx, "admin", "test", testDate, "")
	require.NoError(t, err)

	runs, err := svc.ListRuns(ctx, "admin", testDate, 0)
	require.NoError(t, err)
	if len(runs) != 2 {
		t.Errorf("got %d runs, want 2", len(runs))
	}
	runs, err = svc.ListRuns(ctx, "admin", "2024-01-01", 0)
	require.NoError(t, err)
	if len(runs) != 0 {
		t.Errorf("other date returned %d runs", len(runs))
	}
}

func TestLatestRunStatusNoRun(t *testing.T) {
	svc, _ := newTestService(t)

	status, err := svc.LatestRunStatus(context.Background(), "admin", testDate)
	require.NoError(t, err)
	if status.HasRun || status.Run != nil {
		t.Errorf("status = %+v, want empty", status)
	}
}
