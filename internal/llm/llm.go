package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Completion is the result of a single provider call.
type Completion struct {
	Text string
	// Cost is the estimated spend for this call in USD. Zero for local models.
	Cost float64
}

// Provider is the interface for LLM providers.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
	Name() string
	IsConfigured() bool
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildMessages(systemPrompt, userPrompt string) []chatMessage {
	var msgs []chatMessage
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: userPrompt})
	return msgs
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model     string
	BaseURL   string
	MaxTokens int
	client    *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, maxTokens int) *OllamaProvider {
	return &OllamaProvider{
		Model:     model,
		BaseURL:   baseURL,
		MaxTokens: maxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name used in cost records and provider pins.
func (o *OllamaProvider) Name() string { return "ollama" }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// Complete sends a prompt to Ollama. Local inference is free, so Cost is
// always zero.
func (o *OllamaProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	body := map[string]any{
		"model":    o.Model,
		"messages": buildMessages(systemPrompt, userPrompt),
		"stream":   false,
		"options": map[string]any{
			"num_predict": o.MaxTokens,
			"temperature": 0.3,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &Completion{Text: result.Message.Content}, nil
}

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model     string
	APIKey    string
	MaxTokens int
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider reading its key from the
// named environment variable.
func NewOpenAIProvider(model, apiKeyEnv string, maxTokens int) *OpenAIProvider {
	return &OpenAIProvider{
		Model:     model,
		APIKey:    os.Getenv(apiKeyEnv),
		MaxTokens: maxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name used in cost records and provider pins.
func (o *OpenAIProvider) Name() string { return "openai" }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Complete sends a prompt to OpenAI and estimates the call cost from the
// token usage reported in the response.
func (o *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model":       o.Model,
		"messages":    buildMessages(systemPrompt, userPrompt),
		"max_tokens":  o.MaxTokens,
		"temperature": 0.3,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in OpenAI response")
	}

	return &Completion{
		Text: result.Choices[0].Message.Content,
		Cost: estimateCost(o.Model, result.Usage.PromptTokens, result.Usage.CompletionTokens),
	}, nil
}

// Per-million-token pricing. Unknown models fall back to the gpt-4o-mini rates.
var modelPricing = map[string][2]float64{
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
}

func estimateCost(model string, promptTokens, completionTokens int) float64 {
	rates, ok := modelPricing[model]
	if !ok {
		rates = modelPricing["gpt-4o-mini"]
	}
	return float64(promptTokens)/1e6*rates[0] + float64(completionTokens)/1e6*rates[1]
}
