package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNotConfigured marks a missing credential or model for the agent.
var ErrNotConfigured = errors.New("agent not configured")

const defaultMaxSteps = 30

// Settings configures the model behind the agent.
type Settings struct {
	Model       string
	Temperature float64
	APIKey      string
	BaseURL     string
	MaxSteps    int
}

// Factory hands out ready-to-run agents. The chat client and the tool
// sessions are shared between agents and live as long as the factory.
type Factory struct {
	settings Settings
	tools    Toolbox
	logger   *log.Logger
	newChat  func(Settings) ChatCompleter

	mu   sync.Mutex
	chat ChatCompleter
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithChatCompleter replaces the OpenAI client, mainly for tests.
func WithChatCompleter(c ChatCompleter) FactoryOption {
	return func(f *Factory) {
		f.newChat = func(Settings) ChatCompleter { return c }
	}
}

func NewFactory(settings Settings, tools Toolbox, logger *log.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = log.Default()
	}
	if settings.MaxSteps <= 0 {
		settings.MaxSteps = defaultMaxSteps
	}
	f := &Factory{
		settings: settings,
		tools:    tools,
		logger:   logger,
		newChat:  newOpenAIChat,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Agent returns an agent bound to the shared chat client and tool pool.
// Missing credentials are reported here, on first use, not at startup.
func (f *Factory) Agent(ctx context.Context) (*Agent, error) {
	if f.settings.APIKey == "" {
		return nil, fmt.Errorf("%w: agent.api_key (OPAPIKEY / OPENAI_API_KEY) is not set", ErrNotConfigured)
	}
	if f.settings.Model == "" {
		return nil, fmt.Errorf("%w: agent.model is required", ErrNotConfigured)
	}
	if f.tools == nil {
		return nil, fmt.Errorf("%w: no tool pool", ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.chat == nil {
		f.chat = f.newChat(f.settings)
	}
	chat := f.chat
	f.mu.Unlock()

	return &Agent{
		chat:        chat,
		tools:       f.tools,
		model:       f.settings.Model,
		temperature: f.settings.Temperature,
		maxSteps:    f.settings.MaxSteps,
		logger:      f.logger,
	}, nil
}

type openAIChat struct {
	client openai.Client
}

func newOpenAIChat(s Settings) ChatCompleter {
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &openAIChat{client: openai.NewClient(opts...)}
}

func (c *openAIChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, req)
}
