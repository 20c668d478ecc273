package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured marks a provider that cannot be built from its settings,
// typically a missing credential.
var ErrNotConfigured = errors.New("generator not configured")

const groqBaseURL = "https://api.groq.com/openai/v1"

// LLMClient abstracts the completion model so it can be swapped or mocked.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the provider-independent model configuration.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// NewLLM builds the client for cfg.Provider.
func NewLLM(cfg *LLMSettings) (LLMClient, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, fmt.Errorf("%w: generator.provider missing", ErrNotConfigured)
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAILLMFromConfig(cfg)
	case "groq":
		// Groq serves an OpenAI-compatible API.
		c := *cfg
		if c.BaseURL == "" {
			c.BaseURL = groqBaseURL
		}
		return NewOpenAILLMFromConfig(&c)
	case "deepseek":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: provider deepseek requires base_url (OpenAI-compatible endpoint)", ErrNotConfigured)
		}
		return NewOpenAILLMFromConfig(cfg)
	case "anthropic":
		return NewAnthropicLLMFromConfig(cfg)
	case "ollama":
		return NewOllamaLLMFromConfig(cfg)
	case "mock":
		return MockLLM{}, nil
	default:
		return nil, fmt.Errorf("%w: provider %s not supported", ErrNotConfigured, cfg.Provider)
	}
}
