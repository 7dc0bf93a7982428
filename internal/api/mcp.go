package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/hrcode/internal/ingest"
	"github.com/kalambet/hrcode/internal/solution"
	"github.com/kalambet/hrcode/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Loader *solution.Loader
}

// NewMCPServer creates an MCP server with all hrcode tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"hrcode",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("hrcode archives HackerRank solution downloads into a git repository."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("preview_solution",
			mcp.WithDescription("Read a solution download file and show the commit message and target directory it would get."),
			mcp.WithString("path", mcp.Description("Path to the downloaded JSON file"), mcp.Required()),
			mcp.WithNumber("attempt", mcp.Description("Attempt number; omit or 0 for a first solution")),
		),
		mcpPreviewSolution(deps),
	)

	s.AddTool(
		mcp.NewTool("archive_solution",
			mcp.WithDescription("Queue a solution download file to be committed to the solutions repository."),
			mcp.WithString("path", mcp.Description("Path to the downloaded JSON file"), mcp.Required()),
			mcp.WithNumber("attempt", mcp.Description("Attempt number; omit to number repeats automatically")),
		),
		mcpArchiveSolution(deps),
	)

	s.AddTool(
		mcp.NewTool("list_archives",
			mcp.WithDescription("List recently archived solutions, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpListArchives(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"archives://recent",
			"Recent Archives",
			mcp.WithResourceDescription("Last 10 archived solutions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpPreviewSolution(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}
		attempt := req.GetInt("attempt", 0)

		rec, err := deps.Loader.Load(path, attempt)
		switch {
		case errors.Is(err, solution.ErrNotFound):
			return mcpError(fmt.Sprintf("no such file: %s", path)), nil
		case err != nil:
			return mcpError(err.Error()), nil
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal record: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpArchiveSolution(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}
		attempt := req.GetInt("attempt", 0)

		// Reject unreadable files now rather than in a failed job later.
		if _, err := deps.Loader.Load(path, attempt); err != nil {
			return mcpError(err.Error()), nil
		}

		jobID, err := ingest.Enqueue(deps.Store, path, attempt)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue archive: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued job %s for %s", jobID, path)), nil
	}
}

func mcpListArchives(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		archives, err := deps.Store.ListArchives(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list archives: %v", err)), nil
		}
		if archives == nil {
			archives = []storage.Archive{}
		}

		b, err := json.Marshal(archives)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal archives: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		archives, err := deps.Store.ListArchives(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent archives: %w", err)
		}

		type archiveSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Message   string `json:"message"`
			File      string `json:"file"`
		}

		summaries := make([]archiveSummary, len(archives))
		for i, a := range archives {
			summaries[i] = archiveSummary{
				ID:        a.ID,
				CreatedAt: a.CreatedAt.Format(time.RFC3339),
				Message:   a.Message,
				File:      a.FullPath + a.Filename,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal archives: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
