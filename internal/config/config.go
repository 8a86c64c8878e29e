// Package config loads and validates the tool configuration from YAML,
// with environment-variable overrides for secrets. One Config value is
// built at startup and passed explicitly to every component.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	"gopkg.in/yaml.v3"

	"github.com/johndauphine/csv2pg/internal/secrets"
)

// SamplingConfig controls how the source CSV is sampled.
type SamplingConfig struct {
	Rows     int    `yaml:"rows"`
	Encoding string `yaml:"encoding"`
	// MinNullSample is the minimum sample size required before a column with
	// zero observed nulls may be declared NOT NULL.
	MinNullSample int `yaml:"min_null_sample"`
}

// ChunkingConfig controls column chunking for inference.
type ChunkingConfig struct {
	ColumnsPerChunk int `yaml:"columns_per_chunk"`
	// MaxInflight bounds simultaneous provider calls.
	MaxInflight int `yaml:"max_inflight"`
}

// InferenceConfig controls the AI inference provider.
type InferenceConfig struct {
	Provider       string `yaml:"provider"` // gemini, claude, openai, heuristic
	Model          string `yaml:"model"`
	APIKey         string `yaml:"-"` // env only, never serialized
	BaseURL        string `yaml:"base_url"`
	TimeoutSecs    int    `yaml:"timeout_seconds"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	RetryDelaySecs int    `yaml:"retry_delay_seconds"`
}

// MergeConfig carries the merge policy knobs that are deliberately not
// hard-coded: reserved identifier words and primary-key name patterns.
type MergeConfig struct {
	ReservedWords []string `yaml:"reserved_words"`
	// PKNamePatterns are matched case-insensitively against column names when
	// ranking primary-key candidates, in priority order.
	PKNamePatterns []string `yaml:"pk_name_patterns"`
}

// OutputConfig controls artifact generation.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	DryRun bool   `yaml:"dry_run"`
	Force  bool   `yaml:"force"`
}

// DatabaseConfig carries the target connection string.
type DatabaseConfig struct {
	URL string `yaml:"-"` // env only (DATABASE_URL)
}

// Config is the root configuration.
type Config struct {
	Sampling  SamplingConfig  `yaml:"sampling"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Inference InferenceConfig `yaml:"inference"`
	Merge     MergeConfig     `yaml:"merge"`
	Output    OutputConfig    `yaml:"output"`
	Database  DatabaseConfig  `yaml:"database"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

// defaultReservedWords are PostgreSQL reserved words most likely to collide
// with CSV headers. The full list is configurable; this is the safe core.
var defaultReservedWords = []string{
	"all", "and", "any", "array", "as", "asc", "between", "case", "cast",
	"check", "collate", "column", "constraint", "create", "cross", "current",
	"default", "desc", "distinct", "do", "else", "end", "except", "false",
	"for", "foreign", "from", "full", "grant", "group", "having", "in",
	"index", "inner", "insert", "intersect", "into", "join", "key", "left",
	"like", "limit", "natural", "new", "not", "null", "offset", "old", "on",
	"only", "or", "order", "outer", "primary", "references", "right",
	"select", "table", "then", "to", "true", "union", "unique", "update",
	"user", "using", "values", "when", "where", "window", "with",
}

// Default returns the configuration used when no YAML file is present.
func Default() *Config {
	return &Config{
		Sampling: SamplingConfig{
			Rows:          100,
			Encoding:      "",
			MinNullSample: 50,
		},
		Chunking: ChunkingConfig{
			ColumnsPerChunk: 20,
			MaxInflight:     4,
		},
		Inference: InferenceConfig{
			Provider:       "gemini",
			Model:          "gemini-1.5-pro",
			TimeoutSecs:    30,
			RetryAttempts:  3,
			RetryDelaySecs: 5,
		},
		Merge: MergeConfig{
			ReservedWords:  defaultReservedWords,
			PKNamePatterns: []string{"id", "*_id", "uuid", "identifier"},
		},
		Output: OutputConfig{
			Dir: "./output",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the YAML config at path, falling back to defaults when the file
// does not exist, and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv()

	if len(cfg.Merge.ReservedWords) == 0 {
		cfg.Merge.ReservedWords = defaultReservedWords
	}
	if len(cfg.Merge.PKNamePatterns) == 0 {
		cfg.Merge.PKNamePatterns = []string{"id", "*_id", "uuid", "identifier"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv pulls credentials and overrides from the environment, falling
// back to the user-level secrets file for anything not exported. Load calls
// it; callers that change the provider afterwards should call it again so
// the matching API key is picked up.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	} else if c.Database.URL == "" {
		c.Database.URL = secrets.DatabaseURL()
	}

	provider := strings.ToLower(c.Inference.Provider)
	switch provider {
	case "claude":
		c.Inference.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.Inference.APIKey = os.Getenv("OPENAI_API_KEY")
	default:
		c.Inference.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Inference.APIKey == "" {
		c.Inference.APIKey = secrets.APIKeyFor(provider)
	}

	if v := os.Getenv("CSV2PG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks configured values against their allowed ranges.
func (c *Config) Validate() error {
	if c.Sampling.Rows < 1 || c.Sampling.Rows > 10000 {
		return fmt.Errorf("sampling.rows must be between 1 and 10000, got %d", c.Sampling.Rows)
	}
	if c.Chunking.ColumnsPerChunk < 1 || c.Chunking.ColumnsPerChunk > 200 {
		return fmt.Errorf("chunking.columns_per_chunk must be between 1 and 200, got %d", c.Chunking.ColumnsPerChunk)
	}
	if c.Chunking.MaxInflight < 1 {
		return fmt.Errorf("chunking.max_inflight must be at least 1, got %d", c.Chunking.MaxInflight)
	}
	if c.Inference.RetryAttempts < 0 || c.Inference.RetryAttempts > 10 {
		return fmt.Errorf("inference.retry_attempts must be between 0 and 10, got %d", c.Inference.RetryAttempts)
	}
	if c.Inference.TimeoutSecs < 1 || c.Inference.TimeoutSecs > 300 {
		return fmt.Errorf("inference.timeout_seconds must be between 1 and 300, got %d", c.Inference.TimeoutSecs)
	}
	switch strings.ToLower(c.Inference.Provider) {
	case "gemini", "claude", "openai", "heuristic":
	default:
		return fmt.Errorf("inference.provider must be one of gemini, claude, openai, heuristic; got %q", c.Inference.Provider)
	}
	if c.Sampling.MinNullSample < 1 {
		return fmt.Errorf("sampling.min_null_sample must be at least 1, got %d", c.Sampling.MinNullSample)
	}
	return nil
}

// HostResources describes the machine the generated artifacts will run on.
type HostResources struct {
	CPUCores          int
	AvailableMemoryMB int64
}

// DetectHostResources inspects the local machine. The generator clamps these
// values, so a failed detection only means conservative defaults.
func DetectHostResources() HostResources {
	res := HostResources{
		CPUCores:          runtime.NumCPU(),
		AvailableMemoryMB: 4096,
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		res.AvailableMemoryMB = int64(vm.Available / (1024 * 1024))
	}
	return res
}
