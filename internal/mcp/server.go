package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/filescope-mcp/internal/app"
)

const (
	// ServerName is the MCP server name
	ServerName = "filescope-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes an App's scan and search operations as MCP tools
type Server struct {
	mcp    *server.MCPServer
	app    *app.App
	logger *slog.Logger
}

// NewServer creates a new MCP server instance over a wired App.
// The caller keeps ownership of the App and closes it after Serve returns.
func NewServer(a *app.App, logger *slog.Logger) (*Server, error) {
	if a == nil {
		return nil, errors.New("app is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:    mcpServer,
		app:    a,
		logger: logger.With("component", "mcp"),
	}

	s.registerTools()
	return s, nil
}

// Serve runs the protocol over stdin/stdout until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs the protocol over the given streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("MCP server ready, listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(startScanTool(), s.handleStartScan)
	s.mcp.AddTool(cancelScanTool(), s.handleCancelScan)
	s.mcp.AddTool(scanProgressTool(), s.handleScanProgress)
	s.mcp.AddTool(searchFilesTool(), s.handleSearchFiles)
	s.mcp.AddTool(getRecordTool(), s.handleGetRecord)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
