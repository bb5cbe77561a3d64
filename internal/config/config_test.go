package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Extraction.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Extraction.Provider)
	}
	if cfg.Extraction.Concurrency != 3 {
		t.Errorf("expected concurrency 3, got %d", cfg.Extraction.Concurrency)
	}
	if len(cfg.Extraction.DefaultTemplates) == 0 {
		t.Error("expected default templates to be populated")
	}
	if len(cfg.Categories.Table) == 0 {
		t.Error("expected category table to be populated")
	}
	if cfg.Interview.MaxTurns != 3 {
		t.Errorf("expected max_turns 3, got %d", cfg.Interview.MaxTurns)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
extraction:
  provider: openai
  openai_model: gpt-4o
interview:
  max_turns: 5
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Extraction.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Extraction.Provider)
	}
	if cfg.Interview.MaxTurns != 5 {
		t.Errorf("expected max_turns 5, got %d", cfg.Interview.MaxTurns)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Extraction.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Extraction.OllamaURL)
	}
	if cfg.Extraction.TTLDays != 30 {
		t.Errorf("expected default extraction ttl_days 30, got %d", cfg.Extraction.TTLDays)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Categories.Table) == 0 {
		t.Error("expected categories to be populated from file")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
