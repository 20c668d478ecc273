package generator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaLLM implements LLMClient against a local Ollama daemon. It needs no credential.
type OllamaLLM struct {
	Model       string
	Temperature float64
	client      *ollama.Client
}

func NewOllamaLLMFromConfig(cfg *LLMSettings) (*OllamaLLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: generator.model is required", ErrNotConfigured)
	}
	host := cfg.BaseURL
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = defaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama host %q: %v", ErrNotConfigured, host, err)
	}
	return &OllamaLLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		client:      ollama.NewClient(u, http.DefaultClient),
	}, nil
}

func (o *OllamaLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	var msgs []ollama.Message
	if prompt.System != "" {
		msgs = append(msgs, ollama.Message{Role: "system", Content: prompt.System})
	}
	msgs = append(msgs, ollama.Message{Role: "user", Content: prompt.User})

	stream := false
	req := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": o.Temperature},
	}
	var out strings.Builder
	err := o.client.Chat(ctx, req, func(resp ollama.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
