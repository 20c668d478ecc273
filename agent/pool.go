package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolSeparator joins server and tool names in the names shown to the model.
const toolSeparator = "__"

var (
	// ErrUnknownTool is returned when the model asks for a tool nobody serves.
	ErrUnknownTool = errors.New("unknown tool")

	invalidToolChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// Session is the part of an MCP client session the agent needs.
// *client.Client satisfies it.
type Session interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer opens and initializes a session to one configured server.
type Dialer func(ctx context.Context, name string, cfg ServerConfig) (Session, error)

// Tool is an MCP tool as advertised to the model.
type Tool struct {
	// Name is the model-facing name, "<server>__<tool>".
	Name        string
	Server      string
	Tool        string
	Description string
	Parameters  map[string]any
}

// Pool holds MCP sessions for the lifetime of the process. Sessions are
// opened on first use; a failed connect is not cached. A session whose
// transport fails is closed and dropped, and the next use redials it.
type Pool struct {
	load   func() (ToolServers, error)
	dial   Dialer
	logger *log.Logger

	mu       sync.Mutex
	sessions map[string]Session
	tools    []Tool
	byName   map[string]Tool
	ready    bool
	closed   bool
}

// NewPool returns a pool reading its configuration from path on first use.
func NewPool(path string, dial Dialer, logger *log.Logger) *Pool {
	return newPool(func() (ToolServers, error) { return LoadToolServers(path) }, dial, logger)
}

// NewStaticPool returns a pool over an already parsed configuration.
func NewStaticPool(servers ToolServers, dial Dialer, logger *log.Logger) *Pool {
	return newPool(func() (ToolServers, error) { return servers, nil }, dial, logger)
}

func newPool(load func() (ToolServers, error), dial Dialer, logger *log.Logger) *Pool {
	if dial == nil {
		dial = DialServer
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pool{
		load:     load,
		dial:     dial,
		logger:   logger,
		sessions: make(map[string]Session),
	}
}

// Tools connects every configured server if needed and returns their tools.
func (p *Pool) Tools(ctx context.Context) ([]Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]Tool, len(p.tools))
	copy(out, p.tools)
	return out, nil
}

func (p *Pool) connectLocked(ctx context.Context) error {
	if p.closed {
		return errors.New("tool pool closed")
	}
	if p.ready {
		return nil
	}
	servers, err := p.load()
	if err != nil {
		return err
	}

	var tools []Tool
	byName := make(map[string]Tool)
	for _, name := range servers.Names() {
		sess, ok := p.sessions[name]
		if !ok {
			p.logger.Info("connecting tool server", "server", name)
			sess, err = p.dial(ctx, name, servers.Servers[name])
			if err != nil {
				return fmt.Errorf("connect tool server %s: %w", name, err)
			}
			p.sessions[name] = sess
		}
		res, err := sess.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			p.dropLocked(name, sess, err)
			return fmt.Errorf("list tools of %s: %w", name, err)
		}
		for _, t := range res.Tools {
			tool := Tool{
				Name:        qualifiedName(name, t.Name),
				Server:      name,
				Tool:        t.Name,
				Description: t.Description,
				Parameters:  toolParameters(t),
			}
			tools = append(tools, tool)
			byName[tool.Name] = tool
		}
		p.logger.Debug("tool server ready", "server", name, "tools", len(res.Tools))
	}
	p.tools = tools
	p.byName = byName
	p.ready = true
	return nil
}

// Call invokes a tool by its model-facing name and flattens the result to text.
// A tool-level failure (IsError) is returned as an error carrying the text.
func (p *Pool) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	p.mu.Lock()
	if err := p.connectLocked(ctx); err != nil {
		p.mu.Unlock()
		return "", err
	}
	tool, ok := p.byName[name]
	var sess Session
	if ok {
		sess = p.sessions[tool.Server]
	}
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool.Tool
	req.Params.Arguments = args
	res, err := sess.CallTool(ctx, req)
	if err != nil {
		p.mu.Lock()
		p.dropLocked(tool.Server, sess, err)
		p.mu.Unlock()
		return "", fmt.Errorf("call %s: %w", name, err)
	}
	text := ResultText(res)
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

// dropLocked forgets a session after a transport failure so the next call
// reconnects. Cancellation by the caller leaves the session in place.
func (p *Pool) dropLocked(name string, sess Session, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if p.sessions[name] != sess {
		return
	}
	p.logger.Warn("dropping tool session", "server", name, "err", err)
	delete(p.sessions, name)
	p.ready = false
	if cerr := sess.Close(); cerr != nil {
		p.logger.Debug("close dropped session", "server", name, "err", cerr)
	}
}

// Close closes every open session. The pool cannot be used afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var errs []error
	for name, sess := range p.sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(p.sessions, name)
	}
	return errors.Join(errs...)
}

// ResultText joins the text parts of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.EmbeddedResource, *mcp.EmbeddedResource:
			parts = append(parts, "[embedded resource]")
		case mcp.ImageContent, *mcp.ImageContent:
			parts = append(parts, "[image]")
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func qualifiedName(server, tool string) string {
	return invalidToolChars.ReplaceAllString(server, "_") + toolSeparator + invalidToolChars.ReplaceAllString(tool, "_")
}

// toolParameters converts an MCP input schema to the JSON schema object
// expected by function-calling models.
func toolParameters(t mcp.Tool) map[string]any {
	var raw []byte
	if len(t.RawInputSchema) > 0 {
		raw = t.RawInputSchema
	} else {
		raw, _ = json.Marshal(t.InputSchema)
	}
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil || len(params) == 0 {
		params = map[string]any{}
	}
	if _, ok := params["type"]; !ok {
		params["type"] = "object"
	}
	if _, ok := params["properties"]; !ok {
		params["properties"] = map[string]any{}
	}
	return params
}

// DialServer is the default Dialer: it starts or connects to the server with
// mcp-go and performs the initialize handshake.
func DialServer(ctx context.Context, name string, cfg ServerConfig) (Session, error) {
	transport, err := cfg.transport()
	if err != nil {
		return nil, fmt.Errorf("%w: server %s: %v", ErrToolConfig, name, err)
	}

	var c *client.Client
	switch transport {
	case TransportStdio:
		c, err = client.NewStdioMCPClient(cfg.Command, cfg.environ(), cfg.Args...)
		if err != nil {
			return nil, err
		}
	case TransportSSE:
		c, err = client.NewSSEMCPClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, err
		}
	case TransportHTTP:
		c, err = client.NewStreamableHttpClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	if err := Initialize(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Initialize performs the MCP initialize handshake on a started client.
func Initialize(ctx context.Context, c *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "mcpblog", Version: Version}
	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}
