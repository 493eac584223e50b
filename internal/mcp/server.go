package mcp

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/gitmem/internal/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Engine is the part of memory.Service the tools call.
type Engine interface {
	Capture(ctx context.Context, req memory.CaptureRequest) (string, error)
	Search(ctx context.Context, req memory.SearchRequest) ([]memory.Result, error)
	Get(ctx context.Context, id string) (*memory.Memory, error)
	Reconcile(ctx context.Context) (int, error)
	Namespaces() []string
}

var _ Engine = (*memory.Service)(nil)

// Server registers the memory tools on an MCP server.
type Server struct {
	mcp     *mcp.Server
	engine  Engine
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "gitmem")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gitmem",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server backed by engine.
func NewServer(cfg *Config, engine Engine) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if engine == nil {
		return nil, fmt.Errorf("memory engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp:     mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		engine:  engine,
		metrics: NewMetrics(logger),
		logger:  logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
