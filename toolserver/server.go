package toolserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcp_blog_generator/filestore"
)

// Version is reported by the bundled servers in their initialize response.
var Version = "dev"

// NewSearchServer exposes web_search(query, count) backed by s.
func NewSearchServer(s Searcher, defaultCount int, logger *log.Logger) *server.MCPServer {
	if logger == nil {
		logger = log.Default()
	}
	if defaultCount < 1 || defaultCount > maxCount {
		defaultCount = 8
	}
	srv := server.NewMCPServer("mcpblog-search", Version, server.WithToolCapabilities(false))
	srv.AddTool(mcp.NewTool("web_search",
		mcp.WithDescription("Search the web and return the top results with title, URL and snippet."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("count", mcp.Description(fmt.Sprintf("Number of results (1-%d)", maxCount))),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(req.GetString("query", ""))
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		count := req.GetInt("count", defaultCount)
		results, err := s.Search(ctx, query, count)
		if err != nil {
			logger.Warn("web search failed", "query", query, "err", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		logger.Info("web search", "query", query, "results", len(results))
		if len(results) == 0 {
			return mcp.NewToolResultText("no results"), nil
		}
		return mcp.NewToolResultText(FormatResults(results)), nil
	})
	return srv
}

// NewFilesystemServer exposes write_file, read_file and list_files over store.
func NewFilesystemServer(store *filestore.Store, logger *log.Logger) *server.MCPServer {
	if logger == nil {
		logger = log.Default()
	}
	srv := server.NewMCPServer("mcpblog-filesystem", Version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Create or overwrite a file in the artifact directory ("+store.Root()+")."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File name, relative to the artifact directory")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		content := req.GetString("content", "")
		name, err := store.Write(path, content)
		if err != nil {
			logger.Warn("write_file failed", "path", path, "err", err)
			return mcp.NewToolResultError(fmt.Sprintf("cannot write %q: %v", path, err)), nil
		}
		logger.Info("write_file", "name", name, "bytes", len(content))
		return mcp.NewToolResultText(fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), name)), nil
	})

	srv.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a file from the artifact directory."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File name, relative to the artifact directory")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		data, err := store.ReadFile(path)
		if errors.Is(err, filestore.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("%s: file not found", path)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})

	srv.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List files in the artifact directory, newest first."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := store.List()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(entries) == 0 {
			return mcp.NewToolResultText("(empty)"), nil
		}
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			lines = append(lines, fmt.Sprintf("%s\t%d\t%s", e.Name, e.Size, e.ModTime.Format("2006-01-02 15:04:05")))
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	})
	return srv
}

// ServeStdio runs srv on stdin/stdout until the input closes. Errors are
// logged through logger, which must not write to stdout.
func ServeStdio(srv *server.MCPServer, logger *log.Logger) error {
	return server.ServeStdio(srv, server.WithErrorLogger(logger.StandardLog()))
}
