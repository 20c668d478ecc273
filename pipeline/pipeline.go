// Package pipeline sequences the blog workflow: search through the tool
// agent, generate the post, then persist it through the agent again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"mcp_blog_generator/agent"
	"mcp_blog_generator/generator"
)

// Step names used in errors, logs and metrics.
const (
	StepSearch   = "search"
	StepGenerate = "generate"
	StepPersist  = "persist"
)

// ErrNoResults is returned when the search agent answers with nothing.
var ErrNoResults = errors.New("search returned no results")

// Runner executes one natural-language instruction against the tool servers.
type Runner interface {
	Run(ctx context.Context, instruction string) (string, error)
}

// AgentSource hands out a Runner per pipeline step.
type AgentSource interface {
	Runner(ctx context.Context) (Runner, error)
}

// Drafter writes the post.
type Drafter interface {
	Generate(ctx context.Context, req generator.Request) (generator.Draft, error)
}

// FromFactory adapts an agent.Factory to AgentSource.
func FromFactory(f *agent.Factory) AgentSource {
	return factorySource{f}
}

type factorySource struct{ f *agent.Factory }

func (s factorySource) Runner(ctx context.Context) (Runner, error) {
	a, err := s.f.Agent(ctx)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// BlogResult is one completed generation.
type BlogResult struct {
	ID            string
	Topic         string
	SearchResults string
	BlogPost      string
	Title         string
	Digest        string
	Filename      string
	SaveResult    string
	CreatedAt     time.Time
}

// Options names the tool servers and artifact layout the instructions refer to.
type Options struct {
	SearchServer string
	FileServer   string
	WriteTool    string
	ArtifactDir  string
	Extension    string
	// Now defaults to time.Now.
	Now func() time.Time
}

type Pipeline struct {
	agents  AgentSource
	drafter Drafter
	opts    Options
	metrics *Metrics
	logger  *log.Logger
}

func New(agents AgentSource, drafter Drafter, opts Options, metrics *Metrics, logger *log.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Extension == "" {
		opts.Extension = "md"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{agents: agents, drafter: drafter, opts: opts, metrics: metrics, logger: logger}
}

// SearchInstruction is the instruction sent to the agent for a topic.
func (p *Pipeline) SearchInstruction(topic string) string {
	return fmt.Sprintf("Use the '%s' server to search for: %s", p.opts.SearchServer, topic)
}

// PersistInstruction is the instruction that makes the agent save content.
func (p *Pipeline) PersistInstruction(filename, content string) string {
	return fmt.Sprintf("Use the tool `%s` from the `%s` server and write filename: '%s' at %s directory and save content: %s",
		p.opts.WriteTool, p.opts.FileServer, filename, p.opts.ArtifactDir, content)
}

// Search runs the search step and returns the agent's answer verbatim.
func (p *Pipeline) Search(ctx context.Context, topic string) (string, error) {
	logger := p.logger.With("run", uuid.NewString(), "topic", topic)
	out, err := p.run(ctx, logger, StepSearch, topic, p.SearchInstruction(topic))
	if err == nil && strings.TrimSpace(out) == "" {
		err = stepError(StepSearch, topic, ErrNoResults)
	}
	return out, err
}

// Generate writes the post for topic from searchResults and saves it through
// the file tool server. The caller decides where the result is published.
func (p *Pipeline) Generate(ctx context.Context, topic, searchResults string) (*BlogResult, error) {
	id := uuid.NewString()
	logger := p.logger.With("run", id, "topic", topic)

	start := time.Now()
	logger.Info("step started", "step", StepGenerate)
	draft, err := p.drafter.Generate(ctx, generator.Request{Topic: topic, SearchResults: searchResults})
	p.metrics.observe(StepGenerate, start, err)
	if err != nil {
		logger.Error("step failed", "step", StepGenerate, "err", err, "elapsed", time.Since(start))
		return nil, stepError(StepGenerate, topic, err)
	}
	logger.Info("step finished", "step", StepGenerate, "bytes", len(draft.Markdown), "elapsed", time.Since(start))

	now := p.opts.Now()
	filename := Filename(topic, now, p.opts.Extension)
	saved, err := p.run(ctx, logger, StepPersist, topic, p.PersistInstruction(filename, draft.Markdown))
	if err != nil {
		return nil, err
	}

	return &BlogResult{
		ID:            id,
		Topic:         topic,
		SearchResults: searchResults,
		BlogPost:      draft.Markdown,
		Title:         draft.Title,
		Digest:        draft.Digest,
		Filename:      filename,
		SaveResult:    saved,
		CreatedAt:     now,
	}, nil
}

func (p *Pipeline) run(ctx context.Context, logger *log.Logger, step, topic, instruction string) (string, error) {
	start := time.Now()
	logger.Info("step started", "step", step)
	out, err := p.invoke(ctx, instruction)
	p.metrics.observe(step, start, err)
	if err != nil {
		logger.Error("step failed", "step", step, "err", err, "elapsed", time.Since(start))
		return "", stepError(step, topic, err)
	}
	logger.Info("step finished", "step", step, "bytes", len(out), "elapsed", time.Since(start))
	return out, nil
}

func (p *Pipeline) invoke(ctx context.Context, instruction string) (string, error) {
	if p.agents == nil {
		return "", fmt.Errorf("%w: no agent source", agent.ErrNotConfigured)
	}
	r, err := p.agents.Runner(ctx)
	if err != nil {
		return "", err
	}
	return r.Run(ctx, instruction)
}

// Filename derives the artifact name for topic at t:
// blog_<lower-cased topic, spaces as underscores>_<YYYYMMDD_HHMMSS>.<ext>.
// Path separators are replaced too, so the name stays a single segment.
func Filename(topic string, t time.Time, ext string) string {
	slug := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(strings.ToLower(topic))
	return fmt.Sprintf("blog_%s_%s.%s", slug, t.Format("20060102_150405"), strings.TrimPrefix(ext, "."))
}
