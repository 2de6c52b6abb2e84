package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.DBPath != "data/recon.db" {
		t.Errorf("defaults = %+v", cfg)
	}
	if len(cfg.Sources.LeftPrefixes) == 0 || len(cfg.Sources.RightPrefixes) == 0 {
		t.Errorf("side prefixes missing: %+v", cfg.Sources)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.yaml")
	data := []byte("listen: \":9090\"\nsources:\n  left_prefixes: [WAY4, LEDGER]\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q, want :9090", cfg.Listen)
	}
	if len(cfg.Sources.LeftPrefixes) != 2 {
		t.Errorf("left prefixes = %v", cfg.Sources.LeftPrefixes)
	}
	// Keys absent from the file keep their defaults.
	if cfg.DBPath != "data/recon.db" {
		t.Errorf("db_path = %q", cfg.DBPath)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("want parse error for malformed yaml")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RECON_LISTEN", ":7070")
	t.Setenv("RECON_PAN_HASH_SECRET", "s3cret")
	t.Setenv("RECON_WATCH_DIR", "/var/spool/recon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" || cfg.PANHashSecret != "s3cret" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Dir != "/var/spool/recon" {
		t.Errorf("watch = %+v, want enabled via RECON_WATCH_DIR", cfg.Watch)
	}

	t.Setenv("RECON_WATCH_ENABLED", "false")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Watch.Enabled {
		t.Error("RECON_WATCH_ENABLED=false should win over RECON_WATCH_DIR")
	}
}
