package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrToolConfig marks an unreadable or malformed tool-server configuration.
var ErrToolConfig = errors.New("invalid tool server configuration")

// Transport names accepted in the tool-server configuration.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// ServerConfig is one entry of the "mcpServers" map.
type ServerConfig struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport string            `json:"transport,omitempty"`
}

// ToolServers maps server names to launch or connection parameters.
type ToolServers struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// Names returns the configured server names in a stable order.
func (t ToolServers) Names() []string {
	names := make([]string, 0, len(t.Servers))
	for name := range t.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadToolServers reads and validates a tool-server configuration file.
func LoadToolServers(path string) (ToolServers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ToolServers{}, fmt.Errorf("%w: %v", ErrToolConfig, err)
	}
	return ParseToolServers(data)
}

// ParseToolServers decodes and validates a tool-server configuration.
func ParseToolServers(data []byte) (ToolServers, error) {
	var cfg ToolServers
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ToolServers{}, fmt.Errorf("%w: %v", ErrToolConfig, err)
	}
	for name, sc := range cfg.Servers {
		if strings.TrimSpace(name) == "" {
			return ToolServers{}, fmt.Errorf("%w: empty server name", ErrToolConfig)
		}
		if strings.Contains(name, toolSeparator) {
			return ToolServers{}, fmt.Errorf("%w: server name %q must not contain %q", ErrToolConfig, name, toolSeparator)
		}
		transport, err := sc.transport()
		if err != nil {
			return ToolServers{}, fmt.Errorf("%w: server %s: %v", ErrToolConfig, name, err)
		}
		if transport == TransportStdio && sc.Command == "" {
			return ToolServers{}, fmt.Errorf("%w: server %s: command required for stdio", ErrToolConfig, name)
		}
		if transport != TransportStdio && sc.URL == "" {
			return ToolServers{}, fmt.Errorf("%w: server %s: url required for %s", ErrToolConfig, name, transport)
		}
	}
	return cfg, nil
}

// transport infers the transport when it is not set: a command means stdio,
// a url means SSE.
func (s ServerConfig) transport() (string, error) {
	switch strings.ToLower(s.Transport) {
	case "":
		if s.Command != "" {
			return TransportStdio, nil
		}
		if s.URL != "" {
			return TransportSSE, nil
		}
		return "", errors.New("either command or url is required")
	case TransportStdio:
		return TransportStdio, nil
	case TransportSSE:
		return TransportSSE, nil
	case TransportHTTP, "streamable-http", "streamable_http":
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("unknown transport %q", s.Transport)
	}
}

// environ returns the server's extra environment as KEY=VALUE pairs. mcp-go
// appends them to the parent process environment.
func (s ServerConfig) environ() []string {
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+os.ExpandEnv(s.Env[k]))
	}
	return env
}
