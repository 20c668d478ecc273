package main

import (
	"github.com/spf13/cobra"

	"mcp_blog_generator/filestore"
	"mcp_blog_generator/toolserver"
)

func toolsCMD() *cobra.Command {
	tools := &cobra.Command{
		Use:   "tools",
		Short: "Serve the bundled MCP tool servers over stdio",
	}
	tools.AddCommand(searchToolCMD(), filesystemToolCMD())
	return tools
}

func searchToolCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Web search tool server (web_search)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			searcher, err := toolserver.NewSearcher(cfg.Search.Provider, cfg.Search.APIKey, nil)
			if err != nil {
				return err
			}
			logger = logger.WithPrefix("search")
			logger.Debug("serving on stdio", "provider", cfg.Search.Provider)
			return toolserver.ServeStdio(toolserver.NewSearchServer(searcher, cfg.Search.Count, logger), logger)
		},
	}
}

func filesystemToolCMD() *cobra.Command {
	var root string
	fsCmd := &cobra.Command{
		Use:   "filesystem",
		Short: "Filesystem tool server (write_file, read_file, list_files)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if root == "" {
				root = cfg.Pipeline.ArtifactDir
			}
			store, err := filestore.New(root)
			if err != nil {
				return err
			}
			logger = logger.WithPrefix("filesystem")
			logger.Debug("serving on stdio", "root", store.Root())
			return toolserver.ServeStdio(toolserver.NewFilesystemServer(store, logger), logger)
		},
	}
	fsCmd.Flags().StringVar(&root, "root", "", "artifact directory (default pipeline.artifact_dir)")
	return fsCmd
}
