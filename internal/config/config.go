package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Transcription Transcription `yaml:"transcription"`
	Extraction    Extraction    `yaml:"extraction"`
	Categories    Categories    `yaml:"categories"`
	Interview     Interview     `yaml:"interview"`
	Output        Output        `yaml:"output"`
	Logging       Logging       `yaml:"logging"`
}

type Transcription struct {
	ServiceURL string `yaml:"service_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	// TTLDays controls how long cached transcripts stay valid.
	// 0 means transcripts never expire.
	TTLDays int `yaml:"ttl_days"`
}

type Extraction struct {
	Provider         string   `yaml:"provider"`
	Model            string   `yaml:"model"`
	OllamaURL        string   `yaml:"ollama_url"`
	OpenAIModel      string   `yaml:"openai_model"`
	APIKeyEnv        string   `yaml:"api_key_env"`
	MaxTokens        int      `yaml:"max_tokens"`
	Concurrency      int      `yaml:"concurrency"`
	DefaultTemplates []string `yaml:"default_templates"`
	PromptVersion    string   `yaml:"prompt_version"`
	TTLDays          int      `yaml:"ttl_days"`
}

type Categories struct {
	// Threshold is the minimum number of keyword hits for a category to match.
	Threshold int        `yaml:"threshold"`
	Table     []Category `yaml:"table"`
}

type Category struct {
	Name      string   `yaml:"name"`
	Keywords  []string `yaml:"keywords"`
	Templates []string `yaml:"templates"`
}

type Interview struct {
	MaxTurns int    `yaml:"max_turns"`
	Style    string `yaml:"style"`
}

type Output struct {
	DataDir  string `yaml:"data_dir"`
	NotesDir string `yaml:"notes_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for podnotes.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "podnotes")
}

// DataDir returns the XDG data directory for podnotes.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "podnotes")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/podnotes/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'podnotes init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Transcription: Transcription{
			APIKeyEnv: "TRANSCRIBE_API_KEY",
			TTLDays:   0,
		},
		Extraction: Extraction{
			Provider:         "ollama",
			Model:            "qwen2.5:7b",
			OllamaURL:        "http://localhost:11434",
			OpenAIModel:      "gpt-4o-mini",
			APIKeyEnv:        "OPENAI_API_KEY",
			MaxTokens:        1024,
			Concurrency:      3,
			DefaultTemplates: []string{"summary", "quotes"},
			PromptVersion:    "v1",
			TTLDays:          30,
		},
		Categories: Categories{
			Threshold: 1,
		},
		Interview: Interview{
			MaxTurns: 3,
			Style:    "reflective",
		},
		Logging: Logging{Level: "INFO"},
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetNotesDir returns the directory episode workspaces are created under.
func (c *Config) GetNotesDir() string {
	if c.Output.NotesDir != "" {
		return c.Output.NotesDir
	}
	return filepath.Join(homeDir(), "podnotes")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
