// Package matching implements the multi-pass reconciliation matcher.
//
// The matcher is a pure function over its two input cohorts and the rule
// parameters: it performs no I/O and keeps no state across invocations.
// Passes run in strict precedence order (exact > arn > fuzzy > one-to-many)
// and each pass only considers rows still present in both working sets.
// The pass order and the pass-3 uniqueness gap are a contract, not an
// optimization hint.
package matching

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cardworks/recon/internal/types"
)

// Rules are the matching parameters of the active ruleset.
type Rules struct {
	Version         string
	AmountTolerance decimal.Decimal
	DateWindowDays  int
	ScoreThreshold  float64
}

// Match is one emitted linkage between a left transaction and (optionally)
// a right one.
type Match struct {
	LeftTxnID  string
	RightTxnID string
	MatchType  types.MatchType
	Score      float64
	ReasonCode string
	Explain    map[string]any
}

// Exception is one emitted unmatched or ambiguous item.
type Exception struct {
	PrimaryTxnID string
	Category     types.ExceptionCategory
	Severity     string
	Reason       string
}

// uniquenessGap is the minimum lead the top fuzzy candidate must have over
// the runner-up before it is trusted.
const uniquenessGap = 0.05

// Run matches the left cohort against the right cohort and returns the
// emitted matches followed by the exceptions, in emission order.
func Run(left, right []types.Txn, rules Rules) ([]Match, []Exception) {
	e := newEngine(left, right, rules)
	e.exactPass()
	e.arnPass()
	e.fuzzyPass()
	e.oneToManyPass()
	e.sweepRemaining()
	return e.matches, e.exceptions
}

type engine struct {
	rules Rules

	leftOrder  []string
	leftLive   map[string]types.Txn
	rightLive  map[string]types.Txn
	rightOrder []string

	exactIdx  map[string][]types.Txn
	rrnCurIdx map[string][]types.Txn
	arnIdx    map[string][]types.Txn

	matches    []Match
	exceptions []Exception
}

func newEngine(left, right []types.Txn, rules Rules) *engine {
	e := &engine{
		rules:     rules,
		leftLive:  make(map[string]types.Txn, len(left)),
		rightLive: make(map[string]types.Txn, len(right)),
		exactIdx:  make(map[string][]types.Txn),
		rrnCurIdx: make(map[string][]types.Txn),
		arnIdx:    make(map[string][]types.Txn),
	}
	for _, t := range left {
		e.leftLive[t.ID] = t
		e.leftOrder = append(e.leftOrder, t.ID)
	}
	for _, t := range right {
		e.rightLive[t.ID] = t
		e.rightOrder = append(e.rightOrder, t.ID)
		e.exactIdx[exactKey(t)] = append(e.exactIdx[exactKey(t)], t)
		e.rrnCurIdx[rrnCurKey(t.RRN, t.Currency)] = append(e.rrnCurIdx[rrnCurKey(t.RRN, t.Currency)], t)
		if t.ARN != "" {
			e.arnIdx[t.ARN] = append(e.arnIdx[t.ARN], t)
		}
	}
	return e
}

func exactKey(t types.Txn) string {
	return fmt.Sprintf("%s|%s|%s|%s", t.RRN, t.Amount.Round(2).StringFixed(2), t.Currency, t.BusinessDate)
}

func rrnCurKey(rrn, currency string) string {
	return rrn + "|" + currency
}

// liveLeft returns the still-unmatched left rows in input order. Each pass
// snapshots this so removals inside the pass do not disturb iteration.
func (e *engine) liveLeft() []types.Txn {
	out := make([]types.Txn, 0, len(e.leftLive))
	for _, id := range e.leftOrder {
		if t, ok := e.leftLive[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (e *engine) liveCandidates(idx map[string][]types.Txn, key string) []types.Txn {
	var out []types.Txn
	for _, c := range idx[key] {
		if _, ok := e.rightLive[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (e *engine) recordMatch(left types.Txn, right *types.Txn, matchType types.MatchType, score float64, reason string, explain map[string]any) {
	m := Match{
		LeftTxnID:  left.ID,
		MatchType:  matchType,
		Score:      round4(score),
		ReasonCode: reason,
		Explain:    explain,
	}
	if right != nil {
		m.RightTxnID = right.ID
		delete(e.rightLive, right.ID)
	}
	e.matches = append(e.matches, m)
	delete(e.leftLive, left.ID)
}

func (e *engine) recordException(t types.Txn, category types.ExceptionCategory, severity, reason string) {
	e.exceptions = append(e.exceptions, Exception{
		PrimaryTxnID: t.ID,
		Category:     category,
		Severity:     severity,
		Reason:       reason,
	})
}

// exactPass matches on the (rrn, amount, currency, businessDate) quadruple.
// Multiple candidates produce a DUPLICATE exception; the left row is kept
// in the working set so later fuzzy passes may still resolve it.
func (e *engine) exactPass() {
	for _, l := range e.liveLeft() {
		candidates := e.liveCandidates(e.exactIdx, exactKey(l))
		switch {
		case len(candidates) == 1:
			c := candidates[0]
			e.recordMatch(l, &c, types.MatchFull, 1.0, "EXACT_RRN_AMOUNT_CURR_DATE", map[string]any{"stage": "exact"})
		case len(candidates) > 1:
			e.recordException(l, types.CatDuplicate, "HIGH", "MULTI_CANDIDATE_EXACT")
		}
	}
}

// arnPass matches left rows carrying an arn with exactly one surviving
// candidate, subject to the fuzzy score threshold.
func (e *engine) arnPass() {
	for _, l := range e.liveLeft() {
		if l.ARN == "" {
			continue
		}
		candidates := e.liveCandidates(e.arnIdx, l.ARN)
		if len(candidates) != 1 {
			continue
		}
		c := candidates[0]
		score, details := FuzzyScore(l, c, e.rules)
		if score < e.rules.ScoreThreshold {
			continue
		}
		matchType := types.MatchFull
		if !l.Amount.Equal(c.Amount) {
			matchType = types.MatchPartial
		}
		details["stage"] = "arn"
		e.recordMatch(l, &c, matchType, score, "ARN_MATCH_WITH_TOLERANCE", details)
	}
}

// fuzzyPass scores all (rrn, currency) candidates within the date window
// and takes the top one when it clears both the threshold and the
// uniqueness gap over the runner-up.
func (e *engine) fuzzyPass() {
	for _, l := range e.liveLeft() {
		var scored []struct {
			score   float64
			txn     types.Txn
			details map[string]any
		}
		for _, c := range e.liveCandidates(e.rrnCurIdx, rrnCurKey(l.RRN, l.Currency)) {
			if DateDeltaDays(l.TxnTime, c.TxnTime) > float64(e.rules.DateWindowDays) {
				continue
			}
			score, details := FuzzyScore(l, c, e.rules)
			scored = append(scored, struct {
				score   float64
				txn     types.Txn
				details map[string]any
			}{score, c, details})
		}
		if len(scored) == 0 {
			continue
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

		top := scored[0]
		second := -1.0
		if len(scored) > 1 {
			second = scored[1].score
		}
		if top.score < e.rules.ScoreThreshold || top.score-second <= uniquenessGap {
			continue
		}
		matchType := types.MatchFull
		if !l.Amount.Equal(top.txn.Amount) {
			matchType = types.MatchPartial
		}
		top.details["stage"] = "fuzzy"
		e.recordMatch(l, &top.txn, matchType, top.score, "FUZZY_SCORE", top.details)
	}
}

// oneToManyPass looks for 2- or 3-combinations of same-rrn/currency/merchant
// right rows whose sum lands within tolerance of the left amount. The first
// combination found wins; r=2 is tried before r=3.
func (e *engine) oneToManyPass() {
	for _, l := range e.liveLeft() {
		var candidates []types.Txn
		for _, id := range e.rightOrder {
			c, ok := e.rightLive[id]
			if !ok {
				continue
			}
			if c.RRN == l.RRN && c.Currency == l.Currency && c.MerchantID == l.MerchantID {
				candidates = append(candidates, c)
			}
		}

		combo := findSumCombo(candidates, l.Amount.Round(2), e.rules.AmountTolerance)
		if combo == nil {
			continue
		}
		for _, c := range combo {
			right := c
			e.recordMatch(l, &right, types.MatchPartial, 0.8, "ONE_TO_MANY_SUM_MATCH", map[string]any{
				"stage":      "one_to_many",
				"combo_size": len(combo),
			})
		}
	}
}

// findSumCombo enumerates r-combinations for r in {2, 3} and returns the
// first one whose rounded sum is within tolerance of target.
func findSumCombo(candidates []types.Txn, target, tolerance decimal.Decimal) []types.Txn {
	for _, r := range []int{2, 3} {
		if combo := sumComboOfSize(candidates, r, target, tolerance); combo != nil {
			return combo
		}
	}
	return nil
}

func sumComboOfSize(candidates []types.Txn, r int, target, tolerance decimal.Decimal) []types.Txn {
	n := len(candidates)
	if n < r {
		return nil
	}
	idx := make([]int, r)
	for i := range idx {
		idx[i] = i
	}
	for {
		sum := decimal.Zero
		for _, i := range idx {
			sum = sum.Add(candidates[i].Amount)
		}
		if AmountClose(sum.Round(2), target, tolerance) {
			combo := make([]types.Txn, r)
			for k, i := range idx {
				combo[k] = candidates[i]
			}
			return combo
		}
		// Advance to the next lexicographic combination.
		k := r - 1
		for k >= 0 && idx[k] == n-r+k {
			k--
		}
		if k < 0 {
			return nil
		}
		idx[k]++
		for j := k + 1; j < r; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// sweepRemaining turns every still-live row into a missing-counterpart
// exception, left side first.
func (e *engine) sweepRemaining() {
	for _, id := range e.leftOrder {
		if t, ok := e.leftLive[id]; ok {
			e.recordException(t, types.CatMissingInRight, "MEDIUM", "No cross-source candidate found")
		}
	}
	for _, id := range e.rightOrder {
		if t, ok := e.rightLive[id]; ok {
			e.recordException(t, types.CatMissingInLeft, "MEDIUM", "No counterpart candidate found")
		}
	}
}
