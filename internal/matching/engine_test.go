package matching

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/types"
)

func defaultRules() Rules {
	return Rules{
		Version:         "v1",
		AmountTolerance: decimal.NewFromFloat(2.0),
		DateWindowDays:  1,
		ScoreThreshold:  0.75,
	}
}

func txn(id string, side types.Side, rrn string, amount float64, currency, txnTime string) types.Txn {
	return types.Txn{
		ID:           id,
		Side:         side,
		BusinessDate: "2025-01-15",
		RRN:          rrn,
		Amount:       decimal.NewFromFloat(amount),
		Currency:     currency,
		TxnTime:      txnTime,
		OpType:       types.OpPurchase,
		MerchantID:   "M-1",
		ChannelID:    "POS",
	}
}

func TestRunExactMatch(t *testing.T) {
	left := []types.Txn{txn("L1", types.SideLeft, "100001", 15000.00, "KZT", "2025-01-15T10:00:00Z")}
	right := []types.Txn{txn("R1", types.SideRight, "100001", 15000.00, "KZT", "2025-01-15T10:05:00Z")}

	matches, exceptions := Run(left, right, defaultRules())

	if len(matches) != 1 || len(exceptions) != 0 {
		t.Fatalf("got %d matches, %d exceptions, want 1, 0", len(matches), len(exceptions))
	}
	m := matches[0]
	if m.MatchType != types.MatchFull {
		t.Errorf("MatchType = %v, want MATCHED", m.MatchType)
	}
	if m.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", m.Score)
	}
	if m.ReasonCode != "EXACT_RRN_AMOUNT_CURR_DATE" {
		t.Errorf("ReasonCode = %q", m.ReasonCode)
	}
	if m.LeftTxnID != "L1" || m.RightTxnID != "R1" {
		t.Errorf("pair = (%s, %s), want (L1, R1)", m.LeftTxnID, m.RightTxnID)
	}
}

func TestRunFuzzyMatchWithinTolerance(t *testing.T) {
	left := []types.Txn{txn("L1", types.SideLeft, "100002", 50.00, "USD", "2025-01-15T09:00:00Z")}
	right := []types.Txn{txn("R1", types.SideRight, "100002", 49.50, "USD", "2025-01-15T09:00:00Z")}

	matches, exceptions := Run(left, right, defaultRules())

	if len(matches) != 1 || len(exceptions) != 0 {
		t.Fatalf("got %d matches, %d exceptions, want 1, 0", len(matches), len(exceptions))
	}
	m := matches[0]
	if m.MatchType != types.MatchPartial {
		t.Errorf("MatchType = %v, want PARTIAL_MATCH", m.MatchType)
	}
	if m.ReasonCode != "FUZZY_SCORE" {
		t.Errorf("ReasonCode = %q, want FUZZY_SCORE", m.ReasonCode)
	}
	if m.Score < 0.75 || m.Score > 1.0 {
		t.Errorf("Score = %v, want within [0.75, 1.0]", m.Score)
	}
	if m.Explain["stage"] != "fuzzy" {
		t.Errorf("Explain stage = %v, want fuzzy", m.Explain["stage"])
	}
}

func TestRunOneToManySumMatch(t *testing.T) {
	left := []types.Txn{txn("L1", types.SideLeft, "100003", 200.00, "USD", "2025-01-15T12:00:00Z")}
	right := []types.Txn{
		txn("R1", types.SideRight, "100003", 120.00, "USD", "2025-01-15T12:00:00Z"),
		txn("R2", types.SideRight, "100003", 80.00, "USD", "2025-01-15T12:30:00Z"),
	}

	matches, exceptions := Run(left, right, defaultRules())

	if len(matches) != 2 || len(exceptions) != 0 {
		t.Fatalf("got %d matches, %d exceptions, want 2, 0", len(matches), len(exceptions))
	}
	seen := map[string]bool{}
	for _, m := range matches {
		if m.LeftTxnID != "L1" {
			t.Errorf("LeftTxnID = %s, want L1", m.LeftTxnID)
		}
		if m.MatchType != types.MatchPartial {
			t.Errorf("MatchType = %v, want PARTIAL_MATCH", m.MatchType)
		}
		if m.Score != 0.8 {
			t.Errorf("Score = %v, want 0.8", m.Score)
		}
		if m.ReasonCode != "ONE_TO_MANY_SUM_MATCH" {
			t.Errorf("ReasonCode = %q", m.ReasonCode)
		}
		if m.Explain["combo_size"] != 2 {
			t.Errorf("combo_size = %v, want 2", m.Explain["combo_size"])
		}
		seen[m.RightTxnID] = true
	}
	if !seen["R1"] || !seen["R2"] {
		t.Errorf("combo rights = %v, want R1 and R2", seen)
	}
}

func TestRunMissingCounterparts(t *testing.T) {
	left := []types.Txn{txn("L1", types.SideLeft, "100004", 10.00, "USD", "2025-01-15T08:00:00Z")}
	right := []types.Txn{txn("R1", types.SideRight, "100005", 25.00, "USD", "2025-01-15T08:00:00Z")}

	matches, exceptions := Run(left, right, defaultRules())

	if len(matches) != 0 || len(exceptions) != 2 {
		t.Fatalf("got %d matches, %d exceptions, want 0, 2", len(matches), len(exceptions))
	}
	// Left sweep runs before right sweep.
	if exceptions[0].Category != types.CatMissingInRight || exceptions[0].PrimaryTxnID != "L1" {
		t.Errorf("exception[0] = %+v, want MISSING_IN_RIGHT for L1", exceptions[0])
	}
	if exceptions[1].Category != types.CatMissingInLeft || exceptions[1].PrimaryTxnID != "R1" {
		t.Errorf("exception[1] = %+v, want MISSING_IN_LEFT for R1", exceptions[1])
	}
	for _, e := range exceptions {
		if e.Severity != "MEDIUM" {
			t.Errorf("Severity = %q, want MEDIUM", e.Severity)
		}
	}
}

func TestRunDuplicateCandidates(t *testing.T) {
	left := []types.Txn{txn("L1", types.SideLeft, "100006", 75.00, "EUR", "2025-01-15T14:00:00Z")}
	right := []types.Txn{
		txn("R1", types.SideRight, "100006", 75.00, "EUR", "2025-01-15T14:00:00Z"),
		txn("R2", types.SideRight, "100006", 75.00, "EUR", "2025-01-15T14:00:00Z"),
	}

	matches, exceptions := Run(left, right, defaultRules())

	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(matches))
	}
	var dup *Exception
	for i := range exceptions {
		if exceptions[i].Category == types.CatDuplicate {
			dup = &exceptions[i]
		}
	}
	if dup == nil {
		t.Fatalf("no DUPLICATE exception in %+v", exceptions)
	}
	if dup.PrimaryTxnID != "L1" || dup.Severity != "HIGH" || dup.Reason != "MULTI_CANDIDATE_EXACT" {
		t.Errorf("duplicate exception = %+v", *dup)
	}
	// The duplicate left row stays in the pool: the tied fuzzy candidates
	// fail the uniqueness gap, so the sweep reports all three rows missing.
	missing := 0
	for _, e := range exceptions {
		if e.Category == types.CatMissingInRight || e.Category == types.CatMissingInLeft {
			missing++
		}
	}
	if missing != 3 {
		t.Errorf("got %d missing exceptions, want 3", missing)
	}
}

func TestRunARNMatch(t *testing.T) {
	l := txn("L1", types.SideLeft, "200001", 30.00, "USD", "2025-01-15T10:00:00Z")
	l.ARN = "ARN-777"
	r := txn("R1", types.SideRight, "999999", 29.00, "USD", "2025-01-15T10:00:00Z")
	r.ARN = "ARN-777"

	matches, exceptions := Run([]types.Txn{l}, []types.Txn{r}, defaultRules())

	if len(matches) != 1 || len(exceptions) != 0 {
		t.Fatalf("got %d matches, %d exceptions, want 1, 0", len(matches), len(exceptions))
	}
	m := matches[0]
	if m.ReasonCode != "ARN_MATCH_WITH_TOLERANCE" {
		t.Errorf("ReasonCode = %q", m.ReasonCode)
	}
	if m.MatchType != types.MatchPartial {
		t.Errorf("MatchType = %v, want PARTIAL_MATCH (amounts differ)", m.MatchType)
	}
}

func TestRunExactTakesPrecedenceOverFuzzy(t *testing.T) {
	left := []types.Txn{txn("L1", types.SideLeft, "300001", 40.00, "USD", "2025-01-15T10:00:00Z")}
	right := []types.Txn{
		txn("R1", types.SideRight, "300001", 40.00, "USD", "2025-01-15T10:00:00Z"),
		txn("R2", types.SideRight, "300001", 39.00, "USD", "2025-01-15T10:00:00Z"),
	}

	matches, _ := Run(left, right, defaultRules())

	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].RightTxnID != "R1" || matches[0].MatchType != types.MatchFull {
		t.Errorf("match = %+v, want exact pair (L1, R1)", matches[0])
	}
}

func TestDateDeltaDays(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"2025-01-15T00:00:00Z", "2025-01-15T12:00:00Z", 0.5},
		{"2025-01-15", "2025-01-16", 1.0},
		{"2025-01-15T10:00:00Z", "2025-01-15T10:00:00Z", 0.0},
	}
	for _, tt := range tests {
		if got := DateDeltaDays(tt.a, tt.b); got != tt.want {
			t.Errorf("DateDeltaDays(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDateDeltaDaysUnparseable(t *testing.T) {
	got := DateDeltaDays("garbage", "2025-01-15")
	if got <= 365 {
		t.Errorf("DateDeltaDays with garbage input = %v, want far outside any window", got)
	}
}

func TestOpCompat(t *testing.T) {
	tests := []struct {
		left, right types.OpType
		want        float64
	}{
		{types.OpPurchase, types.OpPurchase, 0.2},
		{types.OpPurchase, types.OpClearing, 0.1},
		{types.OpClearing, types.OpPurchase, 0.1},
		{types.OpRefund, types.OpChargeback, 0.1},
		{types.OpPurchase, types.OpRefund, 0.0},
	}
	for _, tt := range tests {
		if got := OpCompat(tt.left, tt.right); got != tt.want {
			t.Errorf("OpCompat(%v, %v) = %v, want %v", tt.left, tt.right, got, tt.want)
		}
	}
}

func TestFuzzyScoreBreakdown(t *testing.T) {
	l := txn("L1", types.SideLeft, "1", 50.00, "USD", "2025-01-15T09:00:00Z")
	r := txn("R1", types.SideRight, "1", 49.00, "USD", "2025-01-15T09:00:00Z")

	score, details := FuzzyScore(l, r, defaultRules())

	// amount penalty min(1.0/2.0, 1)*0.5 = 0.25, no date penalty,
	// same op type bonus 0.2: 1 - 0.25 + 0.2 clamped to 1.0 is 0.95.
	if math.Abs(score-0.95) > 1e-9 {
		t.Errorf("score = %v, want 0.95", score)
	}
	if details["amount_penalty"] != 0.25 {
		t.Errorf("amount_penalty = %v, want 0.25", details["amount_penalty"])
	}
	if details["amount_delta"] != 1.0 {
		t.Errorf("amount_delta = %v, want 1.0", details["amount_delta"])
	}
}
