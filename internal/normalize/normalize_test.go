package normalize

import (
	"testing"

	"github.com/cardworks/recon/internal/types"
)

func TestPANMasked(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "****"},
		{"  ", "****"},
		{"4111111111111111", "411111******1111"},
		{"4111 1111 1111 1111", "411111******1111"},
		{"4111-1111-1111-1111", "411111******1111"},
		{"411111111111", "411111**1111"},      // 12 digits keeps at least 2 stars
		{"4111111111111111111", "411111*********1111"}, // 19 digits
		{"411111XXXXXX1111", "411111******1111"},
		{"411111******1111", "411111******1111"},
		{"411111xxxxxx1111", "411111******1111"},
		{"not-a-pan", "not-a-pan"},
		{"12345", "12345"}, // too short to be a PAN
	}
	for _, tt := range tests {
		if got := PANMasked(tt.raw); got != tt.want {
			t.Errorf("PANMasked(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPANHashStableAndKeyed(t *testing.T) {
	a := PANHash("411111******1111", "secret-a")
	b := PANHash("411111******1111", "secret-a")
	c := PANHash("411111******1111", "secret-b")
	if a != b {
		t.Errorf("same input and key produced different hashes")
	}
	if a == c {
		t.Errorf("different keys produced the same hash")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestOpType(t *testing.T) {
	tests := []struct {
		raw  string
		want types.OpType
	}{
		{"purchase", types.OpPurchase},
		{" CLEARING ", types.OpClearing},
		{"Refund", types.OpRefund},
		{"garbage", types.OpPurchase},
		{"", types.OpPurchase},
	}
	for _, tt := range tests {
		if got := OpType(tt.raw); got != tt.want {
			t.Errorf("OpType(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"usd", "USD"},
		{" kzt ", "KZT"},
		{"USDT", "USD"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Currency(tt.raw); got != tt.want {
			t.Errorf("Currency(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestRef(t *testing.T) {
	if got := Ref("  abc123 "); got != "ABC123" {
		t.Errorf("Ref = %q, want ABC123", got)
	}
}
