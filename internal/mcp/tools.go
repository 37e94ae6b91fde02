package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/document"
	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
	"github.com/fyrsmithlabs/opsdocs/internal/vectorstore"
)

type searchDocsInput struct {
	Query          string   `json:"query" jsonschema:"Natural-language question about cloud operations"`
	K              int      `json:"k,omitempty" jsonschema:"Maximum number of chunks to return (default: server setting)"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty" jsonschema:"Minimum similarity score between 0 and 1 (default: server setting)"`
}

type searchDocsResult struct {
	Content  string            `json:"content" jsonschema:"Chunk text"`
	Metadata map[string]string `json:"metadata" jsonschema:"Source metadata such as source, category and page"`
	Score    float32           `json:"score" jsonschema:"Similarity score in [0,1], higher is more similar"`
}

type searchDocsOutput struct {
	Query   string             `json:"query" jsonschema:"Query that was searched"`
	Results []searchDocsResult `json:"results" jsonschema:"Matching chunks, best first"`
	Count   int                `json:"count" jsonschema:"Number of chunks returned"`
}

type indexStatsInput struct{}

type indexStatsOutput struct {
	Loaded        bool     `json:"loaded" jsonschema:"Whether an index is loaded"`
	IndexID       string   `json:"index_id,omitempty"`
	DocumentCount int      `json:"document_count"`
	ChunkCount    int      `json:"chunk_count"`
	Dimension     int      `json:"dimension"`
	Sources       []string `json:"sources,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Model         string   `json:"embedding_model,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search the cloud operations documentation for passages relevant to a question. Returns chunks with their source, category, page and similarity score.",
	}, s.searchDocs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_stats",
		Description: "Describe the loaded documentation index: document and chunk counts, sources, categories and embedding model.",
	}, s.indexStats)
}

func (s *Server) searchDocs(ctx context.Context, req *mcp.CallToolRequest, args searchDocsInput) (*mcp.CallToolResult, searchDocsOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, "search_docs")
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, "search_docs")
		s.metrics.RecordInvocation(ctx, "search_docs", time.Since(start), toolErr)
	}()

	if strings.TrimSpace(args.Query) == "" {
		toolErr = fmt.Errorf("%w: query is required", ragerr.ErrConfiguration)
		return nil, searchDocsOutput{}, toolErr
	}
	if args.K > s.maxK {
		toolErr = fmt.Errorf("%w: k must be <= %d", ragerr.ErrConfiguration, s.maxK)
		return nil, searchDocsOutput{}, toolErr
	}

	results, err := s.retriever.Query(ctx, args.Query, retriever.QueryOptions{
		K:              args.K,
		ScoreThreshold: args.ScoreThreshold,
	})
	if err != nil {
		if errors.Is(err, ragerr.ErrNotFound) {
			toolErr = fmt.Errorf("no documentation index is loaded: %w", err)
		} else {
			toolErr = fmt.Errorf("search failed: %w", err)
		}
		s.logger.Warn("search_docs failed", zap.String("kind", string(ragerr.KindOf(err))), zap.Error(err))
		return nil, searchDocsOutput{}, toolErr
	}

	output := searchDocsOutput{
		Query:   args.Query,
		Results: make([]searchDocsResult, len(results)),
		Count:   len(results),
	}
	for i, r := range results {
		md := r.Chunk.Metadata
		if md == nil {
			md = map[string]string{}
		}
		output.Results[i] = searchDocsResult{
			Content:  r.Chunk.Content,
			Metadata: md,
			Score:    r.Score,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: formatResults(output)},
		},
	}, output, nil
}

func (s *Server) indexStats(ctx context.Context, req *mcp.CallToolRequest, _ indexStatsInput) (*mcp.CallToolResult, indexStatsOutput, error) {
	start := time.Now()
	var toolErr error
	defer func() {
		s.metrics.RecordInvocation(ctx, "index_stats", time.Since(start), toolErr)
	}()

	meta, err := s.retriever.Stats()
	if errors.Is(err, ragerr.ErrNotFound) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "No index loaded. Run `opsdocs ingest` first."}},
		}, indexStatsOutput{}, nil
	}
	if err != nil {
		toolErr = fmt.Errorf("index stats failed: %w", err)
		return nil, indexStatsOutput{}, toolErr
	}

	output := statsOutput(meta)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Index %s: %d documents, %d chunks, dimension %d",
				output.IndexID, output.DocumentCount, output.ChunkCount, output.Dimension)},
		},
	}, output, nil
}

func statsOutput(meta *vectorstore.Metadata) indexStatsOutput {
	out := indexStatsOutput{
		Loaded:        true,
		IndexID:       meta.IndexID,
		DocumentCount: meta.DocumentCount,
		ChunkCount:    meta.ChunkCount,
		Dimension:     meta.Dimension,
		Sources:       meta.Sources,
		Categories:    meta.Categories,
		Model:         meta.EmbeddingModel,
	}
	if !meta.UpdatedAt.IsZero() {
		out.UpdatedAt = meta.UpdatedAt.Format(time.RFC3339)
	}
	return out
}

// formatResults renders results as numbered context blocks for clients that
// only read text content.
func formatResults(out searchDocsOutput) string {
	if out.Count == 0 {
		return fmt.Sprintf("No documentation found for: %s", out.Query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d passage(s) for %q\n", out.Count, out.Query)
	for i, r := range out.Results {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, r.Metadata[document.MetaSource])
		if p := r.Metadata[document.MetaPage]; p != "" {
			fmt.Fprintf(&b, " (page %s)", p)
		}
		fmt.Fprintf(&b, " score=%.3f\n%s\n", r.Score, r.Content)
	}
	return b.String()
}
