// Package normalize holds the ingest normalization rules: field casing,
// op-type mapping, PAN masking and the keyed PAN MAC.
package normalize

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/cardworks/recon/internal/types"
)

var (
	panDigitsRe = regexp.MustCompile(`^\d{12,19}$`)
	panMaskedRe = regexp.MustCompile(`^[0-9Xx*]{12,19}$`)
	panStripRe  = regexp.MustCompile(`[\s\-]`)
)

// OpType maps a raw op-type string to a normalized value. Unknown values
// fall back to PURCHASE.
func OpType(value string) types.OpType {
	op := types.OpType(strings.ToUpper(strings.TrimSpace(value)))
	if op.IsValid() {
		return op
	}
	return types.OpPurchase
}

// Currency upper-cases and truncates a currency code to 3 letters.
func Currency(value string) string {
	c := strings.ToUpper(strings.TrimSpace(value))
	if len(c) > 3 {
		c = c[:3]
	}
	return c
}

// Ref normalizes a reference field (rrn, arn, merchant, channel).
func Ref(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// PANMasked sanitizes a raw PAN value so that at most the first 6 and last
// 4 digits survive:
//
//   - 12-19 consecutive digits (after stripping whitespace and hyphens)
//     become first6 + '*'×max(2, len-10) + last4;
//   - an already-masked pattern of digits/X/* keeps its shape with X
//     mapped to '*';
//   - anything else is returned verbatim (it carries no full PAN);
//   - empty input becomes "****".
func PANMasked(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "****"
	}
	compact := panStripRe.ReplaceAllString(raw, "")
	if panDigitsRe.MatchString(compact) {
		stars := len(compact) - 10
		if stars < 2 {
			stars = 2
		}
		return compact[:6] + strings.Repeat("*", stars) + compact[len(compact)-4:]
	}
	if panMaskedRe.MatchString(compact) {
		compact = strings.ReplaceAll(compact, "X", "*")
		return strings.ReplaceAll(compact, "x", "*")
	}
	return raw
}

// PANHash returns the hex HMAC-SHA256 of the masked PAN under the
// configured secret. The hash column exists for cross-file correlation
// without ever storing a full PAN.
func PANHash(maskedPAN, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(maskedPAN))
	return hex.EncodeToString(mac.Sum(nil))
}
