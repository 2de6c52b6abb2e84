package ingestwatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsPayload(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"left-20250115.json", true},
		{"left-20250115.json.done", false},
		{"left-20250115.csv", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		if got := isPayload(tt.name); got != tt.want {
			t.Errorf("isPayload(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReadPayloadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.json")
	raw := []byte(`{"source":"WAY4_CORE","business_date":"2025-01-15","records":[]}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	w := New(nil, filepath.Dir(path))
	req, err := w.readPayload(context.Background(), path)
	if err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	if req.Source != "WAY4_CORE" || req.BusinessDate != "2025-01-15" {
		t.Errorf("payload = %+v", req)
	}
	if req.FileName != "drop.json" {
		t.Errorf("file_name = %q, want the base name", req.FileName)
	}
	if len(req.Checksum) != 64 {
		t.Errorf("checksum = %q, want a sha256 hex digest", req.Checksum)
	}
}

func TestReadPayloadKeepsExplicitFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.json")
	raw := []byte(`{"source":"VISA_BASEII","business_date":"2025-01-15","file_name":"base2.dat","checksum_sha256":"abc","records":[]}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	w := New(nil, filepath.Dir(path))
	req, err := w.readPayload(context.Background(), path)
	if err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	if req.FileName != "base2.dat" || req.Checksum != "abc" {
		t.Errorf("payload = %+v, want explicit file_name and checksum kept", req)
	}
}

func TestReadPayloadMissingFile(t *testing.T) {
	w := New(nil, t.TempDir())
	_, err := w.readPayload(context.Background(), filepath.Join(w.dir, "gone.json"))
	if err == nil || !strings.Contains(err.Error(), "read payload") {
		t.Errorf("err = %v, want an immediate read failure", err)
	}
}

func TestReadPayloadPartialWriteStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.json")
	if err := os.WriteFile(path, []byte(`{"source":"WAY4`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(nil, filepath.Dir(path))
	if _, err := w.readPayload(ctx, path); err == nil {
		t.Error("want an error for a payload that never parses")
	}
}
