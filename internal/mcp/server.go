package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
	"github.com/fyrsmithlabs/opsdocs/internal/vectorstore"
)

// Retriever is the query side of the retriever.
type Retriever interface {
	Query(ctx context.Context, text string, opts retriever.QueryOptions) ([]retriever.Result, error)
	Stats() (*vectorstore.Metadata, error)
}

// Server is an MCP server backed by a Retriever.
type Server struct {
	mcp       *mcp.Server
	retriever Retriever
	metrics   *Metrics
	logger    *zap.Logger
	maxK      int
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "opsdocs")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging. Must not write to stdout when the
	// stdio transport is used.
	Logger *zap.Logger

	// MaxK caps the k a client may request (default: 50)
	MaxK int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "opsdocs",
		Version: "dev",
		Logger:  zap.NewNop(),
		MaxK:    50,
	}
}

// NewServer creates a new MCP server over r.
func NewServer(cfg *Config, r Retriever) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if r == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxK := cfg.MaxK
	if maxK <= 0 {
		maxK = 50
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "opsdocs"
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp:       mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		retriever: r,
		metrics:   NewMetrics(logger),
		logger:    logger,
		maxK:      maxK,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over transport. The session runs until the
// peer closes it.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
