// Package mcpserver exposes the retrieval engine over the Model
// Context Protocol. Three tools are registered: kb_search,
// kb_record_usage and kb_index_status. The transport is stdio; stdout
// carries JSON-RPC exclusively, so nothing here may print.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/helpbase/kbengine/internal/lifecycle"
	"github.com/helpbase/kbengine/internal/search"
	"github.com/helpbase/kbengine/internal/store"
	"github.com/helpbase/kbengine/internal/usage"
	"github.com/helpbase/kbengine/pkg/version"
)

// SearchService is the engine surface the server needs. *search.Engine
// satisfies it.
type SearchService interface {
	HybridSearch(ctx context.Context, query string, opts search.Options) ([]*search.SearchResult, error)
	IndexStatus() lifecycle.Status
	Stats(ctx context.Context) search.Stats
}

// Server bridges MCP clients (support chatbots, agent runtimes) to the
// retrieval engine.
type Server struct {
	mcp      *mcp.Server
	engine   SearchService
	recorder search.UsageRecorder // nil disables kb_record_usage writes
	config   search.Config
	logger   *slog.Logger
}

// ErrNilEngine is returned when no search service is provided.
var ErrNilEngine = errors.New("nil search service")

// NewServer creates the MCP server and registers its tools.
func NewServer(engine SearchService, recorder search.UsageRecorder, cfg search.Config, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   engine,
		recorder: recorder,
		config:   cfg,
		logger:   logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "kbengine",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "kb_search",
		Description: "Search the support knowledge base. Combines keyword and semantic " +
			"matching over indexed documents and returns ranked passages with scores. " +
			"Use the category filter to restrict results to one documentation area.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "kb_record_usage",
		Description: "Record which knowledge base passages were surfaced to a user and " +
			"whether they helped. Feedback adjusts per-document effectiveness, which can " +
			"boost future rankings.",
	}, s.handleRecordUsage)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "kb_index_status",
		Description: "Report the knowledge base index state: lifecycle phase, document " +
			"and chunk counts, retrieval strategy and embedding model. Use it to verify " +
			"the index is ready before searching.",
	}, s.handleIndexStatus)

	s.logger.Info("mcp_tools_registered", slog.Int("count", 3))
}

// Run serves MCP over stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	opts := search.DefaultOptions(s.config)
	if input.TopK > 0 {
		opts.TopK = input.TopK
	}
	opts.Category = input.Category
	opts.UseEffectiveness = input.UseEffectiveness

	results, err := s.engine.HybridSearch(ctx, input.Query, opts)
	if err != nil {
		s.logger.Error("kb_search_failed",
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Debug("kb_search_complete",
		slog.String("query", input.Query),
		slog.Int("results", len(results)))
	return nil, toSearchOutput(results), nil
}

func (s *Server) handleRecordUsage(ctx context.Context, _ *mcp.CallToolRequest, input RecordUsageInput) (
	*mcp.CallToolResult,
	RecordUsageOutput,
	error,
) {
	if input.Query == "" {
		return nil, RecordUsageOutput{}, NewInvalidParamsError("query is required")
	}
	feedback, err := parseFeedback(input.Feedback)
	if err != nil {
		return nil, RecordUsageOutput{}, NewInvalidParamsError(err.Error())
	}
	if len(input.Chunks) == 0 {
		return nil, RecordUsageOutput{Recorded: 0}, nil
	}
	if s.recorder == nil {
		return nil, RecordUsageOutput{}, NewInvalidParamsError("usage tracking is disabled")
	}

	chunks := make([]usage.SurfacedChunk, 0, len(input.Chunks))
	for _, c := range input.Chunks {
		docID := c.DocumentID
		if docID == "" && c.ChunkID != "" {
			// kb_search results carry chunk IDs of the form doc:index.
			docID, _, err = store.ParseChunkID(c.ChunkID)
			if err != nil {
				return nil, RecordUsageOutput{}, NewInvalidParamsError(err.Error())
			}
		}
		if docID == "" {
			return nil, RecordUsageOutput{}, NewInvalidParamsError("every chunk needs a document_id or chunk_id")
		}
		chunks = append(chunks, usage.SurfacedChunk{
			DocumentID: docID,
			Excerpt:    usage.TruncateExcerpt(c.Excerpt),
		})
	}

	if err := s.recorder.Record(ctx, input.Query, chunks, feedback); err != nil {
		s.logger.Error("kb_record_usage_failed", slog.String("error", err.Error()))
		return nil, RecordUsageOutput{}, MapError(err)
	}
	return nil, RecordUsageOutput{Recorded: len(chunks)}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	status := s.engine.IndexStatus()
	stats := s.engine.Stats(ctx)
	return nil, toIndexStatusOutput(status, stats), nil
}
