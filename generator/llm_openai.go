package generator

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// It also serves OpenAI-compatible providers such as Groq and DeepSeek.
type OpenAILLM struct {
	Model       string
	Temperature float64
	MaxTokens   int
	client      openai.Client
}

func NewOpenAILLMFromConfig(cfg *LLMSettings, extra ...option.RequestOption) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: llm config is nil", ErrNotConfigured)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key missing; set generator.api_key", ErrNotConfigured, cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: generator.model is required", ErrNotConfigured)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	return &OpenAILLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		client:      openai.NewClient(opts...),
	}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.Model),
		Messages:    msgs,
		Temperature: openai.Float(o.Temperature),
	}
	if o.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.MaxTokens))
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
