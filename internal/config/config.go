// Package config loads the daemon configuration from a YAML file with
// RECON_* environment overrides applied on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Listen        string  `yaml:"listen"`
	DBPath        string  `yaml:"db_path"`
	PANHashSecret string  `yaml:"pan_hash_secret"`
	Sources       Sources `yaml:"sources"`
	Watch         Watch   `yaml:"watch"`
}

// Sources maps source_system prefixes onto the two reconciliation sides.
type Sources struct {
	LeftPrefixes  []string `yaml:"left_prefixes"`
	RightPrefixes []string `yaml:"right_prefixes"`
}

// Watch configures the optional drop-directory ingest watcher.
type Watch struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:        ":8080",
		DBPath:        "data/recon.db",
		PANHashSecret: "change-me-in-production",
		Sources: Sources{
			LeftPrefixes:  []string{"WAY4"},
			RightPrefixes: []string{"VISA"},
		},
		Watch: Watch{
			Enabled: false,
			Dir:     "data/inbox",
		},
	}
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RECON_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("RECON_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("RECON_PAN_HASH_SECRET"); v != "" {
		c.PANHashSecret = v
	}
	if v := os.Getenv("RECON_WATCH_DIR"); v != "" {
		c.Watch.Dir = v
		c.Watch.Enabled = true
	}
	if v := os.Getenv("RECON_WATCH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Watch.Enabled = b
		}
	}
}
