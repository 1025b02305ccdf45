// Package mcp exposes orchestd's operations as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestd/internal/orchestrator"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Logger  *zap.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "orchestd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// Server wraps the MCP server and the orchestrator it fronts.
type Server struct {
	mcp    *mcp.Server
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg *Config, orch *orchestrator.Orchestrator) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:    mcpServer,
		orch:   orch,
		logger: cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
