package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mcp_blog_generator/agent"
	"mcp_blog_generator/config"
	"mcp_blog_generator/filestore"
	"mcp_blog_generator/generator"
	"mcp_blog_generator/pipeline"
	"mcp_blog_generator/toolserver"
)

var version = "dev"

var (
	cfgPath string
	verbose bool
)

func main() {
	agent.Version = version
	toolserver.Version = version

	root := &cobra.Command{
		Use:          "mcpblog",
		Short:        "Search the web through MCP tool servers and turn the results into a blog post",
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(serveCMD(), generateCMD(), toolsCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *log.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(cfg.Log.Level), nil
}

// newLogger writes to stderr so stdout stays free for command output and
// the stdio MCP protocol.
func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// app is the wired pipeline shared by serve and generate.
type app struct {
	cfg      config.Config
	logger   *log.Logger
	pool     *agent.Pool
	files    *filestore.Store
	pipe     *pipeline.Pipeline
	registry *prometheus.Registry
}

func newApp(cfg config.Config, logger *log.Logger) (*app, error) {
	files, err := filestore.New(cfg.Pipeline.ArtifactDir)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(registry)

	pool := agent.NewPool(cfg.Agent.ToolConfig, nil, logger.WithPrefix("tools"))
	factory := agent.NewFactory(agent.Settings{
		Model:       cfg.Agent.Model,
		Temperature: cfg.Agent.Temperature,
		APIKey:      cfg.Agent.APIKey,
		BaseURL:     cfg.Agent.BaseURL,
		MaxSteps:    cfg.Agent.MaxSteps,
	}, pool, logger.WithPrefix("agent"))

	drafter := generator.NewLazy(generator.LLMSettings{
		Provider:    cfg.Generator.Provider,
		Model:       cfg.Generator.Model,
		APIKey:      cfg.Generator.APIKey,
		BaseURL:     cfg.Generator.BaseURL,
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
	})

	pipe := pipeline.New(pipeline.FromFactory(factory), drafter, pipeline.Options{
		SearchServer: cfg.Pipeline.SearchServer,
		FileServer:   cfg.Pipeline.FileServer,
		WriteTool:    cfg.Pipeline.WriteTool,
		ArtifactDir:  cfg.Pipeline.ArtifactDir,
		Extension:    cfg.Pipeline.Extension,
	}, metrics, logger.WithPrefix("pipeline"))

	return &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		files:    files,
		pipe:     pipe,
		registry: registry,
	}, nil
}

func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("close tool sessions", "err", err)
	}
}
