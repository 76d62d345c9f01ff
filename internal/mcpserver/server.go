// Package mcpserver bridges the hybrid search engine kernel to AI clients
// (Claude Code, Cursor, and other MCP hosts) over the Model Context
// Protocol, the way the teacher's internal/mcp bridges its code index.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/pkg/version"
)

// Server is the MCP server fronting a single open Engine.
type Server struct {
	mcp    *mcp.Server
	engine *engine.Engine
	logger *slog.Logger

	mu sync.RWMutex
}

// NewServer creates an MCP server bound to eng. eng must already be open.
func NewServer(eng *engine.Engine, logger *slog.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: eng, logger: logger}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "irisd",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying go-sdk server, for tests and for callers
// that need transports this package doesn't wrap directly.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server over the stdio transport until ctx is cancelled;
// irisd is a single-writer, single-client-at-a-time process.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

// Close releases server-owned resources. The engine itself is owned by the
// caller that created it and is closed independently.
func (s *Server) Close() error {
	return nil
}
