package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// QueryInput is the input schema shared by the search and build_context tools.
type QueryInput struct {
	Query         string   `json:"query" jsonschema:"the natural-language query"`
	DocumentIDs   []string `json:"document_ids,omitempty" jsonschema:"restrict to these document IDs"`
	CollectionIDs []string `json:"collection_ids,omitempty" jsonschema:"restrict to documents in these collections"`
	Languages     []string `json:"languages,omitempty" jsonschema:"restrict to documents in these languages"`
	DocumentTypes []string `json:"document_types,omitempty" jsonschema:"restrict to documents of these file types"`
	MaxTokens     int      `json:"max_tokens,omitempty" jsonschema:"token budget for the selected chunks"`
	MaxChunks     *int     `json:"max_chunks,omitempty" jsonschema:"maximum number of chunks, 0 for unlimited"`
	MinSimilarity *float64 `json:"min_similarity,omitempty" jsonschema:"discard chunks below this cosine similarity (0-1)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results     []SearchResultOutput `json:"results"`
	Count       int                  `json:"count"`
	TotalTokens int                  `json:"total_tokens"`
	Partial     bool                 `json:"partial"`
}

// SearchResultOutput represents a single selected chunk.
type SearchResultOutput struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkText     string  `json:"chunk_text"`
	Similarity    float64 `json:"similarity"`
	TokenCount    int     `json:"token_count"`
	Page          int     `json:"page,omitempty"`
}

// ContextOutput is the output schema for the build_context tool.
type ContextOutput struct {
	Context    string `json:"context"`
	TokenCount int    `json:"token_count"`
	Sections   int    `json:"sections"`
	Partial    bool   `json:"partial"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find the document chunks most relevant to a query within a token budget",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_context",
		Description: "Build a token-bounded context string with source titles for a query",
	}, s.handleBuildContext)
}

// query converts tool input to a SearchQuery, filling omitted fields from the defaults.
func (s *Server) query(input QueryInput) domain.SearchQuery {
	q := domain.SearchQuery{
		Query:         input.Query,
		DocumentIDs:   input.DocumentIDs,
		CollectionIDs: input.CollectionIDs,
		Languages:     input.Languages,
		DocumentTypes: input.DocumentTypes,
		MinSimilarity: s.ports.Defaults.MinSimilarity,
		MaxTokens:     input.MaxTokens,
		MaxChunks:     s.ports.Defaults.MaxChunks,
	}
	if input.MinSimilarity != nil {
		q.MinSimilarity = *input.MinSimilarity
	}
	if input.MaxChunks != nil {
		q.MaxChunks = *input.MaxChunks
	}
	return q
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	result, err := s.ports.Search.Search(ctx, s.query(input))
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results:     make([]SearchResultOutput, len(result.Items)),
		Count:       len(result.Items),
		TotalTokens: result.TotalTokens,
		Partial:     result.Partial,
	}

	for i, item := range result.Items {
		output.Results[i] = SearchResultOutput{
			DocumentID:    item.DocumentID,
			DocumentTitle: item.DocumentTitle,
			ChunkText:     item.Content,
			Similarity:    item.Similarity,
			TokenCount:    item.TokenCount,
			Page:          item.Page,
		}
	}

	return nil, output, nil
}

// handleBuildContext handles the build_context tool invocation.
func (s *Server) handleBuildContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, ContextOutput, error) {
	assembled, err := s.ports.Context.BuildContext(ctx, s.query(input))
	if err != nil {
		return nil, ContextOutput{}, err
	}

	return nil, ContextOutput{
		Context:    assembled.Text,
		TokenCount: assembled.TokenCount,
		Sections:   len(assembled.Result.Items),
		Partial:    assembled.Result.Partial,
	}, nil
}
