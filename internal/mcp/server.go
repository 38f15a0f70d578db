package mcp

import (
	"context"
	"errors"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/markalosey/design-patterns-mcp-sub000/internal/cache"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/embedder"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/indexer"
	"github.com/markalosey/design-patterns-mcp-sub000/internal/matcher"
	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "design-patterns-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Catalog is the part of the pattern store the tools read directly
type Catalog interface {
	GetPattern(ctx context.Context, id string) (*types.Pattern, error)
	ListCategories(ctx context.Context) ([]types.CategoryCount, error)
	CountPatterns(ctx context.Context) (int, error)
}

// Searcher answers find_patterns
type Searcher interface {
	FindMatchingPatterns(ctx context.Context, req matcher.Request) ([]types.Recommendation, error)
	CacheStats() cache.Stats
}

// Rebuilder runs rebuild_embeddings
type Rebuilder interface {
	Index(ctx context.Context, opts indexer.Options) (*indexer.Statistics, error)
	InProgress() bool
}

// EmbeddingReporter exposes the active embedding strategy
type EmbeddingReporter interface {
	GetStrategyInfo() embedder.StrategyInfo
}

// StrategyLister checks every known strategy
type StrategyLister interface {
	GetAvailableStrategies(ctx context.Context) []embedder.StrategyStatus
}

// StrategySwitcher changes the active embedding strategy
type StrategySwitcher interface {
	SwitchStrategy(ctx context.Context, name string) error
}

// VectorIndex reports what the similarity index holds
type VectorIndex interface {
	ModelID() string
	Dimensions() int
	Count() int
}

// Dependencies are the components the tools delegate to. Strategies and
// Switcher may be nil when only a pinned strategy is in use.
type Dependencies struct {
	Catalog    Catalog
	Searcher   Searcher
	Rebuilder  Rebuilder
	Embeddings EmbeddingReporter
	Strategies StrategyLister
	Switcher   StrategySwitcher
	Index      VectorIndex
	Logger     zerolog.Logger
}

// ErrMissingDependency is returned by NewServer when a required component is nil
var ErrMissingDependency = errors.New("missing server dependency")

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp  *server.MCPServer
	deps Dependencies
	log  zerolog.Logger
}

// NewServer creates a new MCP server instance and registers its tools
func NewServer(deps Dependencies) (*Server, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("catalog"))
	case deps.Searcher == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("searcher"))
	case deps.Rebuilder == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("rebuilder"))
	case deps.Embeddings == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("embeddings"))
	case deps.Index == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("vector index"))
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:  mcpServer,
		deps: deps,
		log:  deps.Logger,
	}
	s.registerTools()

	return s, nil
}

// Serve runs the MCP protocol on stdin/stdout until ctx is done or the
// client disconnects. Nothing else may write to stdout meanwhile.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info().Str("server", ServerName).Str("version", ServerVersion).Msg("serving MCP over stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(findPatternsTool(), s.handleFindPatterns)
	s.mcp.AddTool(getPatternTool(), s.handleGetPattern)
	s.mcp.AddTool(listCategoriesTool(), s.handleListCategories)
	s.mcp.AddTool(embeddingStatusTool(), s.handleEmbeddingStatus)
	s.mcp.AddTool(rebuildEmbeddingsTool(), s.handleRebuildEmbeddings)
}
