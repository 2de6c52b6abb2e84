package matching

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/types"
)

// ParseTime parses a transaction timestamp: RFC 3339 when a time component
// is present, otherwise a bare business date taken as midnight UTC.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339, value)
	return t, err
}

// DateDeltaDays returns the absolute distance between two timestamps in
// fractional days. Unparseable values count as infinitely far apart so
// they never land inside a date window.
func DateDeltaDays(a, b string) float64 {
	at, errA := ParseTime(a)
	bt, errB := ParseTime(b)
	if errA != nil || errB != nil {
		return math.Inf(1)
	}
	return math.Abs(at.Sub(bt).Seconds()) / 86400.0
}

// AmountClose reports whether |a-b| <= tolerance.
func AmountClose(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(tolerance) <= 0
}

// OpCompat scores operation-type compatibility: identical types earn 0.2,
// known clearing-cycle pairs 0.1, anything else 0.
func OpCompat(left, right types.OpType) float64 {
	if left == right {
		return 0.2
	}
	type pair struct{ a, b types.OpType }
	compatible := map[pair]bool{
		{types.OpPurchase, types.OpClearing}: true,
		{types.OpRefund, types.OpChargeback}: true,
		{types.OpReversal, types.OpReversal}: true,
	}
	if compatible[pair{left, right}] || compatible[pair{right, left}] {
		return 0.1
	}
	return 0.0
}

// FuzzyScore scores a candidate pair in [0,1] as
// 1 - amountPenalty - datePenalty + compatBonus, and returns the penalty
// breakdown for the match explain payload.
func FuzzyScore(left, right types.Txn, rules Rules) (float64, map[string]any) {
	amountDelta, _ := left.Amount.Sub(right.Amount).Abs().Float64()
	dateDelta := DateDeltaDays(left.TxnTime, right.TxnTime)

	tol, _ := rules.AmountTolerance.Float64()
	if tol < 0.01 {
		tol = 0.01
	}
	window := float64(rules.DateWindowDays)
	if window < 1 {
		window = 1
	}

	amountPenalty := math.Min(amountDelta/tol, 1.0) * 0.5
	datePenalty := math.Min(dateDelta/window, 1.0) * 0.3
	compatBonus := OpCompat(left.OpType, right.OpType)

	score := 1.0 - amountPenalty - datePenalty + compatBonus
	score = math.Max(0.0, math.Min(1.0, score))

	return score, map[string]any{
		"amount_delta":    round2(amountDelta),
		"date_delta_days": dateDelta,
		"amount_penalty":  round4(amountPenalty),
		"date_penalty":    round4(datePenalty),
		"compat_bonus":    round4(compatBonus),
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
