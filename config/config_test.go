package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunk.MaxTokens != 256 {
		t.Errorf("expected MaxTokens=256, got %d", cfg.Chunk.MaxTokens)
	}
	if cfg.Chunk.Overlap != 32 {
		t.Errorf("expected Overlap=32, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Chat.FileSessionTTL != 30*time.Minute {
		t.Errorf("expected FileSessionTTL=30m, got %s", cfg.Chat.FileSessionTTL)
	}
	if cfg.Summary.MaxChars != 8000 {
		t.Errorf("expected MaxChars=8000, got %d", cfg.Summary.MaxChars)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nexus.yaml")

	content := `
chunk:
  max_tokens: 128
  overlap: 16
retrieve:
  top_k: 10
chat:
  file_session_ttl: 5m
embedding:
  provider: hash
  retry:
    attempts: 7
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.MaxTokens != 128 {
		t.Errorf("expected MaxTokens=128, got %d", cfg.Chunk.MaxTokens)
	}
	if cfg.Chunk.Overlap != 16 {
		t.Errorf("expected Overlap=16, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected TopK=10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Chat.FileSessionTTL != 5*time.Minute {
		t.Errorf("expected FileSessionTTL=5m, got %s", cfg.Chat.FileSessionTTL)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("expected Provider=hash, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Retry.Attempts != 7 {
		t.Errorf("expected Retry.Attempts=7, got %d", cfg.Embedding.Retry.Attempts)
	}
	// untouched sections keep defaults
	if cfg.Server.Addr != ":8000" {
		t.Errorf("expected Addr=:8000, got %s", cfg.Server.Addr)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nexus.yaml")
	if err := os.WriteFile(configPath, []byte("chunk: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NEXUS_LLM_BASE_URL", "http://llm.internal/v1")
	t.Setenv("NEXUS_RETRIEVE_TOP_K", "12")
	t.Setenv("NEXUS_INGEST_INCLUDES", "**/*.md,**/*.rst")
	t.Setenv("NEXUS_EMBEDDING_RETRY_ATTEMPTS", "2")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.BaseURL != "http://llm.internal/v1" {
		t.Errorf("expected LLM.BaseURL override, got %s", cfg.LLM.BaseURL)
	}
	if cfg.Retrieve.TopK != 12 {
		t.Errorf("expected TopK=12, got %d", cfg.Retrieve.TopK)
	}
	if len(cfg.Ingest.Includes) != 2 || cfg.Ingest.Includes[1] != "**/*.rst" {
		t.Errorf("expected includes from env, got %v", cfg.Ingest.Includes)
	}
	if cfg.Embedding.Retry.Attempts != 2 {
		t.Errorf("expected Retry.Attempts=2, got %d", cfg.Embedding.Retry.Attempts)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nexus.yaml")

	content := `
chat:
  history_budget: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chat.HistoryBudget != 9000 {
		t.Errorf("expected HistoryBudget=9000, got %d", cfg.Chat.HistoryBudget)
	}
}

func TestLoadFromDir_DataDirConfig(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDataDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	content := "server:\n  addr: \":9999\"\n"
	if err := os.WriteFile(filepath.Join(tmpDir, DataDirName, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected Addr=:9999, got %s", cfg.Server.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"overlap equals max", func(c *Config) { c.Chunk.Overlap = c.Chunk.MaxTokens }, "chunk.overlap"},
		{"zero max tokens", func(c *Config) { c.Chunk.MaxTokens = 0 }, "chunk.max_tokens"},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "voyage" }, "embedding provider"},
		{"pgvector without url", func(c *Config) { c.Index.Provider = "pgvector" }, "database_url"},
		{"zero top k", func(c *Config) { c.Retrieve.TopK = 0 }, "top_k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	cfg := DefaultConfig()
	cfg.Retrieve.TopK = 42
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Retrieve.TopK != 42 {
		t.Errorf("expected TopK=42, got %d", loaded.Retrieve.TopK)
	}
}

func TestIndexDBPath(t *testing.T) {
	path := IndexDBPath("/home/user/project")
	expected := filepath.Join("/home/user/project", ".nexus", "nexus.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg := DefaultConfig()
	cfg.Index.Path = "/var/lib/nexus.db"
	if got := cfg.DBPath("/home/user/project"); got != "/var/lib/nexus.db" {
		t.Errorf("expected absolute override, got %s", got)
	}
}
