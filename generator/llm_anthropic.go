package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicLLM implements LLMClient with the Anthropic Messages API.
type AnthropicLLM struct {
	Model       string
	Temperature float64
	MaxTokens   int
	client      anthropic.Client
}

func NewAnthropicLLMFromConfig(cfg *LLMSettings) (*AnthropicLLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key missing; set generator.api_key", ErrNotConfigured)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: generator.model is required", ErrNotConfigured)
	}
	opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicLLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   maxTokens,
		client:      anthropic.NewClient(opts...),
	}, nil
}

func (a *AnthropicLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User))}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   int64(a.MaxTokens),
		Messages:    msgs,
		Temperature: anthropic.Float(a.Temperature),
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("anthropic: no text content")
	}
	return b.String(), nil
}
