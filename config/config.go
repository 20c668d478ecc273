package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration for mcpblog.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Search    SearchConfig    `mapstructure:"search"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AgentConfig configures the tool-calling agent used for search and persistence.
type AgentConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxSteps    int     `mapstructure:"max_steps"`
	ToolConfig  string  `mapstructure:"tool_config"`
}

// GeneratorConfig configures the model that writes the post.
type GeneratorConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type PipelineConfig struct {
	SearchServer string `mapstructure:"search_server"`
	FileServer   string `mapstructure:"file_server"`
	WriteTool    string `mapstructure:"write_tool"`
	ArtifactDir  string `mapstructure:"artifact_dir"`
	Extension    string `mapstructure:"extension"`
}

// SearchConfig is read by the bundled search tool server only.
type SearchConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Count    int    `mapstructure:"count"`
}

// envAliases lets the variable names used by earlier deployments keep working.
var envAliases = map[string][]string{
	"agent.api_key":     {"MCPBLOG_AGENT_API_KEY", "OPAPIKEY", "OPENAI_API_KEY"},
	"generator.api_key": {"MCPBLOG_GENERATOR_API_KEY", "GROQ_API_KEY"},
	"search.api_key":    {"MCPBLOG_SEARCH_API_KEY", "BRAVE_API_KEY", "SERPER_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("log.level", "info")

	v.SetDefault("agent.model", "gpt-4o-mini")
	v.SetDefault("agent.temperature", 0.7)
	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.tool_config", "multiserver_setup_config.json")
	v.SetDefault("agent.base_url", "")

	v.SetDefault("generator.provider", "groq")
	v.SetDefault("generator.model", "deepseek-r1-distill-llama-70b")
	v.SetDefault("generator.temperature", 0.7)
	v.SetDefault("generator.max_tokens", 4096)
	v.SetDefault("generator.base_url", "")

	v.SetDefault("pipeline.search_server", "linkup")
	v.SetDefault("pipeline.file_server", "filesystem")
	v.SetDefault("pipeline.write_tool", "write_file")
	v.SetDefault("pipeline.artifact_dir", "filestore")
	v.SetDefault("pipeline.extension", "md")

	v.SetDefault("search.provider", "brave")
	v.SetDefault("search.count", 8)
}

// Load reads .env, the optional JSON config file and environment overrides.
// An empty path searches ./config and the working directory for config.json;
// a missing file is not an error, an unreadable or malformed one is.
func Load(path string) (Config, error) {
	// .env is optional; real environment variables always win over it.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MCPBLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural settings only. Credentials are checked by the
// components that use them, at first use.
func (c Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return errors.New("agent.max_steps must be greater than zero")
	}
	if strings.TrimSpace(c.Pipeline.ArtifactDir) == "" {
		return errors.New("pipeline.artifact_dir is required")
	}
	if strings.TrimSpace(c.Pipeline.SearchServer) == "" || strings.TrimSpace(c.Pipeline.FileServer) == "" {
		return errors.New("pipeline.search_server and pipeline.file_server are required")
	}
	if strings.Contains(c.Pipeline.Extension, "/") {
		return fmt.Errorf("pipeline.extension %q is not a file extension", c.Pipeline.Extension)
	}
	return nil
}
