package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sampling.Rows != 100 || cfg.Chunking.ColumnsPerChunk != 20 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Merge.ReservedWords) == 0 || len(cfg.Merge.PKNamePatterns) == 0 {
		t.Error("merge defaults not applied")
	}
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := writeConfig(t, `
sampling:
  rows: 250
chunking:
  columns_per_chunk: 10
  max_inflight: 2
inference:
  provider: claude
  model: claude-sonnet-4-20250514
output:
  dir: /tmp/out
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sampling.Rows != 250 {
		t.Errorf("sampling.rows = %d", cfg.Sampling.Rows)
	}
	if cfg.Chunking.ColumnsPerChunk != 10 || cfg.Chunking.MaxInflight != 2 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Inference.Provider != "claude" {
		t.Errorf("provider = %s", cfg.Inference.Provider)
	}
	if cfg.Output.Dir != "/tmp/out" || cfg.LogLevel != "debug" {
		t.Errorf("output/log = %+v %s", cfg.Output, cfg.LogLevel)
	}
	// Unset fields keep their defaults.
	if cfg.Inference.TimeoutSecs != 30 {
		t.Errorf("timeout = %d, want default 30", cfg.Inference.TimeoutSecs)
	}
}

func TestLoadAppliesEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://app@db/prod")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("CSV2PG_LOG_LEVEL", "warn")

	path := writeConfig(t, "inference:\n  provider: claude\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgresql://app@db/prod" {
		t.Errorf("database url = %s", cfg.Database.URL)
	}
	if cfg.Inference.APIKey != "sk-ant-test" {
		t.Errorf("api key = %s", cfg.Inference.APIKey)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %s", cfg.LogLevel)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rows too low", func(c *Config) { c.Sampling.Rows = 0 }, "sampling.rows"},
		{"rows too high", func(c *Config) { c.Sampling.Rows = 20000 }, "sampling.rows"},
		{"chunk too high", func(c *Config) { c.Chunking.ColumnsPerChunk = 500 }, "columns_per_chunk"},
		{"inflight too low", func(c *Config) { c.Chunking.MaxInflight = 0 }, "max_inflight"},
		{"retries too high", func(c *Config) { c.Inference.RetryAttempts = 99 }, "retry_attempts"},
		{"timeout too high", func(c *Config) { c.Inference.TimeoutSecs = 1000 }, "timeout_seconds"},
		{"unknown provider", func(c *Config) { c.Inference.Provider = "psychic" }, "provider"},
		{"null sample too low", func(c *Config) { c.Sampling.MinNullSample = 0 }, "min_null_sample"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "sampling: [not a map\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestDetectHostResources(t *testing.T) {
	res := DetectHostResources()
	if res.CPUCores < 1 {
		t.Errorf("cpu cores = %d", res.CPUCores)
	}
	if res.AvailableMemoryMB < 1 {
		t.Errorf("available memory = %d", res.AvailableMemoryMB)
	}
}
