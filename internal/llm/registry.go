package llm

import (
	"fmt"
	"strings"

	"podnotes/internal/config"
	"podnotes/internal/logger"
)

// Registry holds the configured providers by name plus a default. Templates
// may pin one of the registered names; everything else uses the default.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

// NewRegistry builds the provider table from config. The default provider
// follows the configured preference, falling back to OpenAI when Ollama is
// not reachable.
func NewRegistry(cfg config.Extraction) *Registry {
	log := logger.New("llm")

	ollama := NewOllamaProvider(cfg.Model, cfg.OllamaURL, cfg.MaxTokens)
	openai := NewOpenAIProvider(cfg.OpenAIModel, cfg.APIKeyEnv, cfg.MaxTokens)

	r := &Registry{
		providers: map[string]Provider{
			ollama.Name(): ollama,
			openai.Name(): openai,
		},
	}

	if strings.ToLower(cfg.Provider) == "ollama" {
		if ollama.IsConfigured() {
			log.WithField("model", cfg.Model).Info("using ollama")
			r.defaultName = ollama.Name()
			return r
		}
		log.Warn("ollama not available, falling back to openai")
	}

	if openai.IsConfigured() {
		log.WithField("model", cfg.OpenAIModel).Info("using openai")
		r.defaultName = openai.Name()
		return r
	}

	log.Warn("no LLM provider available; check ollama is running or set the API key")
	return r
}

// Default returns the default provider, or nil when none is configured.
func (r *Registry) Default() Provider {
	if r.defaultName == "" {
		return nil
	}
	return r.providers[r.defaultName]
}

// Get resolves a provider by name; an empty name resolves the default.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		if p := r.Default(); p != nil {
			return p, nil
		}
		return nil, fmt.Errorf("no default LLM provider configured")
	}
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}
	return p, nil
}

// Register adds or replaces a provider, used by tests to install mocks.
func (r *Registry) Register(p Provider, makeDefault bool) {
	r.providers[p.Name()] = p
	if makeDefault {
		r.defaultName = p.Name()
	}
}
