package generator

import (
	"context"
	"errors"
	"sync"
)

// Generator writes a post for a topic from search results.
type Generator struct {
	llm LLMClient
}

func New(llm LLMClient) (*Generator, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Generator{llm: llm}, nil
}

// Generate issues one completion and post-processes it.
func (g *Generator) Generate(ctx context.Context, req Request) (Draft, error) {
	raw, err := g.llm.Complete(ctx, BuildBlogPrompt(req))
	if err != nil {
		return Draft{}, err
	}
	return PostProcess(raw)
}

// Lazy builds its Generator on first use and keeps it for the process
// lifetime. A failed build is not cached, so a fixed configuration is picked
// up by the next request.
type Lazy struct {
	settings LLMSettings
	build    func(*LLMSettings) (LLMClient, error)

	mu  sync.Mutex
	gen *Generator
}

func NewLazy(settings LLMSettings) *Lazy {
	return &Lazy{settings: settings, build: NewLLM}
}

func (l *Lazy) get() (*Generator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != nil {
		return l.gen, nil
	}
	llm, err := l.build(&l.settings)
	if err != nil {
		return nil, err
	}
	gen, err := New(llm)
	if err != nil {
		return nil, err
	}
	l.gen = gen
	return gen, nil
}

func (l *Lazy) Generate(ctx context.Context, req Request) (Draft, error) {
	gen, err := l.get()
	if err != nil {
		return Draft{}, err
	}
	return gen.Generate(ctx, req)
}
