package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nexus/internal/pkg/retry"
)

// EnvPrefix prefixes every environment override, e.g. NEXUS_LLM_BASE_URL.
const EnvPrefix = "NEXUS_"

// DataDirName is the per-workspace directory holding the embedded database.
const DataDirName = ".nexus"

// Config holds all configuration for nexus. It is read once at startup and
// never mutated while serving requests.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk" envPrefix:"CHUNK_"`
	Embedding EmbeddingConfig `yaml:"embedding" envPrefix:"EMBEDDING_"`
	Index     IndexConfig     `yaml:"index" envPrefix:"INDEX_"`
	Ingest    IngestConfig    `yaml:"ingest" envPrefix:"INGEST_"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" envPrefix:"RETRIEVE_"`
	Chat      ChatConfig      `yaml:"chat" envPrefix:"CHAT_"`
	LLM       LLMConfig       `yaml:"llm" envPrefix:"LLM_"`
	Summary   SummaryConfig   `yaml:"summary" envPrefix:"SUMMARY_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
}

// ChunkConfig holds chunking configuration.
type ChunkConfig struct {
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	Overlap   int `yaml:"overlap" env:"OVERLAP"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider" env:"PROVIDER"` // "openai", "lmstudio", "ollama", "jina", "deepseek", "hash"
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Model             string        `yaml:"model" env:"MODEL"`
	APIKeyEnv         string        `yaml:"api_key_env" env:"API_KEY_ENV"` // Environment variable for API key
	Dimension         int           `yaml:"dimension" env:"DIMENSION"`
	BatchSize         int           `yaml:"batch_size" env:"BATCH_SIZE"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"` // 0 = unlimited
	Burst             int           `yaml:"burst" env:"BURST"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Retry             retry.Config  `yaml:"retry" envPrefix:"RETRY_"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Provider    string `yaml:"provider" env:"PROVIDER"` // "bolt", "pgvector", "memory"
	Path        string `yaml:"path" env:"PATH"`         // bolt file, defaults to .nexus/nexus.db
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	MaxConns    int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

// IngestConfig holds ingestion configuration.
type IngestConfig struct {
	Workers  int      `yaml:"workers" env:"WORKERS"`
	Includes []string `yaml:"includes" env:"INCLUDES" envSeparator:","`
	Excludes []string `yaml:"excludes" env:"EXCLUDES" envSeparator:","`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK              int     `yaml:"top_k" env:"TOP_K"`
	MinScoreThreshold float64 `yaml:"min_score_threshold" env:"MIN_SCORE_THRESHOLD"` // Filter results below this score (0 = disabled)
}

// ChatConfig holds conversation configuration.
type ChatConfig struct {
	HistoryBudget  int           `yaml:"history_budget" env:"HISTORY_BUDGET"`
	ContextBudget  int           `yaml:"context_budget" env:"CONTEXT_BUDGET"`
	FileSessionTTL time.Duration `yaml:"file_session_ttl" env:"FILE_SESSION_TTL"`
	SystemPrompt   string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"` // overrides the built-in instruction
}

// LLMConfig holds chat model configuration.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	APIKeyEnv   string        `yaml:"api_key_env" env:"API_KEY_ENV"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type SummaryConfig struct {
	MaxChars int `yaml:"max_chars" env:"MAX_CHARS"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"ADDR"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" env:"SHUTDOWN_GRACE"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // "console" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunk: ChunkConfig{
			MaxTokens: 256,
			Overlap:   32,
		},
		Embedding: EmbeddingConfig{
			Provider:          "lmstudio",
			BaseURL:           "http://localhost:1234/v1",
			Model:             "text-embedding-nomic-embed-text-v1.5",
			APIKeyEnv:         "OPENAI_API_KEY",
			Dimension:         768,
			BatchSize:         64,
			RequestsPerSecond: 0,
			Burst:             1,
			Timeout:           60 * time.Second,
			Retry:             retry.DefaultConfig(),
		},
		Index: IndexConfig{
			Provider: "bolt",
			MaxConns: 10,
		},
		Ingest: IngestConfig{
			Workers:  4,
			Includes: []string{"**/*.md", "**/*.txt", "**/*.markdown"},
			Excludes: []string{"**/node_modules/**", "**/.git/**", "**/" + DataDirName + "/**"},
		},
		Retrieve: RetrieveConfig{
			TopK: 5,
		},
		Chat: ChatConfig{
			HistoryBudget:  1500,
			ContextBudget:  2500,
			FileSessionTTL: 30 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:1234/v1",
			Model:       "local-model",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.7,
			Timeout:     5 * time.Minute,
		},
		Summary: SummaryConfig{
			MaxChars: 8000,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			RequestTimeout: 10 * time.Minute,
			ShutdownGrace:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file and applies NEXUS_* environment
// overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads .env from dir, then nexus.yaml or .nexus/config.yaml.
func LoadFromDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Try nexus.yaml in the directory
	path := filepath.Join(dir, "nexus.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Try .nexus/config.yaml
	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Chunk.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chunk.max_tokens must be positive, got %d", c.Chunk.MaxTokens))
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.MaxTokens {
		errs = append(errs, fmt.Errorf("chunk.overlap must be in [0, max_tokens), got %d", c.Chunk.Overlap))
	}
	switch c.Embedding.Provider {
	case "openai", "lmstudio", "ollama", "jina", "deepseek", "hash":
	default:
		errs = append(errs, fmt.Errorf("unsupported embedding provider: %q", c.Embedding.Provider))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}
	switch c.Index.Provider {
	case "bolt", "memory":
	case "pgvector":
		if c.Index.DatabaseURL == "" {
			errs = append(errs, errors.New("index.database_url is required for the pgvector provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported index provider: %q", c.Index.Provider))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers))
	}
	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Chat.HistoryBudget < 0 || c.Chat.ContextBudget < 0 {
		errs = append(errs, errors.New("chat budgets must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the embedded database for a workspace.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, DataDirName, "nexus.db")
}

// DBPath resolves the bolt file for cfg, relative to dir unless absolute.
func (c *Config) DBPath(dir string) string {
	if c.Index.Path == "" {
		return IndexDBPath(dir)
	}
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(dir, c.Index.Path)
}

// EnsureDataDir ensures the .nexus directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}
