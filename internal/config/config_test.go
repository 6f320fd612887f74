package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadLayered_CLIOverridesEverything(t *testing.T) {
	embedded := []byte("server:\n  url: \"https://embedded.example.com\"\n  api_key: \"embedded_key\"")
	t.Setenv("DIAMOND_SERVER_URL", "https://env.example.com")
	cli := CLIOverrides{URL: "https://cli.example.com", APIKey: "cli_key"}

	cfg, err := LoadLayered(cli, embedded, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.URL != "https://cli.example.com" {
		t.Errorf("URL = %q, want CLI override", cfg.Server.URL)
	}
	if cfg.Server.APIKey != "cli_key" {
		t.Errorf("APIKey = %q, want CLI override", cfg.Server.APIKey)
	}
}

func TestLoadLayered_EnvOverridesEmbed(t *testing.T) {
	embedded := []byte("server:\n  url: \"https://embedded.example.com\"\n  api_key: \"embedded_key\"")
	t.Setenv("DIAMOND_SERVER_URL", "https://env.example.com")

	cfg, err := LoadLayered(CLIOverrides{}, embedded, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.URL != "https://env.example.com" {
		t.Errorf("URL = %q, want env override", cfg.Server.URL)
	}
	if cfg.Server.APIKey != "embedded_key" {
		t.Errorf("APIKey = %q, want embedded value", cfg.Server.APIKey)
	}
}

func TestLoadLayered_FileOverridesEmbed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	file := "publisher:\n  batch_size: 250\ncollection:\n  interval: 30s\n"
	if err := os.WriteFile(path, []byte(file), 0600); err != nil {
		t.Fatal(err)
	}
	embedded := []byte("publisher:\n  batch_size: 10\n")

	cfg, err := LoadLayered(CLIOverrides{}, embedded, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publisher.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250 from file", cfg.Publisher.BatchSize)
	}
	if cfg.Collection.Interval.Duration != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", cfg.Collection.Interval.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Publisher.MaxBacklogMultiplier != 5 {
		t.Errorf("MaxBacklogMultiplier = %d, want default 5", cfg.Publisher.MaxBacklogMultiplier)
	}
}

func TestLoadLayered_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := LoadLayered(CLIOverrides{}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collection.Interval.Duration.Seconds() != 60 {
		t.Errorf("Interval = %v, want 60s default", cfg.Collection.Interval.Duration)
	}
	if cfg.Publisher.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.Publisher.BatchSize)
	}
	if len(cfg.Server.KillCodes) != 2 || cfg.Server.KillCodes[0] != 410 || cfg.Server.KillCodes[1] != 418 {
		t.Errorf("KillCodes = %v, want [410 418]", cfg.Server.KillCodes)
	}
}

func TestLoadFromBytes_EnvBatchSize(t *testing.T) {
	t.Setenv("DIAMOND_BATCH_SIZE", "42")
	t.Setenv("DIAMOND_ELEMENT_ID", "web-01")

	cfg, err := LoadFromBytes(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publisher.BatchSize != 42 {
		t.Errorf("BatchSize = %d, want 42", cfg.Publisher.BatchSize)
	}
	if cfg.Element.ID != "web-01" {
		t.Errorf("Element.ID = %q, want web-01", cfg.Element.ID)
	}
}

func TestLoadFromBytes_InvalidDuration(t *testing.T) {
	_, err := LoadFromBytes([]byte("collection:\n  interval: soon\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Server.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with key", func(*Config) {}, ""},
		{"localhost over http", func(c *Config) { c.Server.URL = "http://localhost:8080/ingest" }, ""},
		{"plain http", func(c *Config) { c.Server.URL = "http://api.example.com" }, "must use HTTPS"},
		{"missing key", func(c *Config) { c.Server.APIKey = "" }, "api key is required"},
		{"zero batch", func(c *Config) { c.Publisher.BatchSize = 0 }, "batch_size"},
		{"multipliers inverted", func(c *Config) { c.Publisher.MaxBacklogMultiplier = 4 }, "must exceed"},
		{"bad tag", func(c *Config) { c.Element.Tags = []string{"novalue"} }, "name:value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.URL = ""
	cfg.Publisher.BatchSize = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server URL is required", "api key is required", "batch_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestWriteConfig_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.URL = "https://test.example.com"

	if err := WriteConfig(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.URL != "https://test.example.com" {
		t.Errorf("URL = %q after round trip", loaded.Server.URL)
	}
	if loaded.Publisher.SkewCheckInterval.Duration != 900*time.Second {
		t.Errorf("SkewCheckInterval = %v after round trip", loaded.Publisher.SkewCheckInterval.Duration)
	}
}
