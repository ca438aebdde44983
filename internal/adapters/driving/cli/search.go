package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// queryFlags are the retrieval flags shared by search and context.
type queryFlags struct {
	documents     []string
	collections   []string
	languages     []string
	types         []string
	maxTokens     int
	maxChunks     int
	minSimilarity float64
	timeout       time.Duration
	json          bool
}

func (f *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&f.documents, "document", "d", nil, "restrict to document IDs")
	fs.StringSliceVarP(&f.collections, "collection", "c", nil, "restrict to collections")
	fs.StringSliceVar(&f.languages, "language", nil, "restrict to document languages")
	fs.StringSliceVar(&f.types, "type", nil, "restrict to document file types")
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "token budget (default from settings)")
	fs.IntVarP(&f.maxChunks, "max-chunks", "n", 0, "maximum chunks, 0 for unlimited (default from settings)")
	fs.Float64Var(&f.minSimilarity, "min-similarity", 0, "similarity threshold in [0, 1] (default from settings)")
	fs.DurationVar(&f.timeout, "timeout", 0, "candidate scan timeout (default from settings)")
	fs.BoolVar(&f.json, "json", false, "output as JSON")
}

// query builds a SearchQuery, taking unset flags from the search defaults.
func (f *queryFlags) query(cmd *cobra.Command, text string) domain.SearchQuery {
	q := domain.SearchQuery{
		Query:         text,
		DocumentIDs:   f.documents,
		CollectionIDs: f.collections,
		Languages:     f.languages,
		DocumentTypes: lowerAll(f.types),
		MinSimilarity: searchDefaults.MinSimilarity,
		MaxTokens:     searchDefaults.MaxTokens,
		MaxChunks:     searchDefaults.MaxChunks,
		Timeout:       searchDefaults.Timeout,
	}
	flags := cmd.Flags()
	if flags.Changed("min-similarity") {
		q.MinSimilarity = f.minSimilarity
	}
	if flags.Changed("max-tokens") {
		q.MaxTokens = f.maxTokens
	}
	if flags.Changed("max-chunks") {
		q.MaxChunks = f.maxChunks
	}
	if flags.Changed("timeout") {
		q.Timeout = f.timeout
	}
	return q
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimPrefix(v, ".")))
	}
	return out
}

var searchFlags queryFlags

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Embeds the query and ranks chunks of completed documents by cosine
similarity. Chunks below the similarity threshold are discarded and the
rest are selected greedily until the token budget is spent.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchFlags.register(searchCmd.Flags())
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	result, err := searchService.Search(cmd.Context(), searchFlags.query(cmd, args[0]))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchFlags.json {
		return outputJSON(cmd, newSearchResultJSON(result))
	}
	return outputSearchTable(cmd, result)
}

// searchItemJSON is the JSON form of one selected chunk.
type searchItemJSON struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkID       string  `json:"chunk_id"`
	Sequence      int     `json:"sequence"`
	Page          int     `json:"page,omitempty"`
	ChunkText     string  `json:"chunk_text"`
	Similarity    float64 `json:"similarity"`
	TokenCount    int     `json:"token_count"`
}

// searchResultJSON is the JSON form of a search result.
type searchResultJSON struct {
	Items        []searchItemJSON `json:"items"`
	MaxTokens    int              `json:"max_tokens"`
	TotalTokens  int              `json:"total_tokens"`
	ModelVersion string           `json:"model_version,omitempty"`
	Partial      bool             `json:"partial"`
}

func newSearchResultJSON(result *domain.SearchResult) searchResultJSON {
	out := searchResultJSON{
		Items:        make([]searchItemJSON, len(result.Items)),
		MaxTokens:    result.MaxTokens,
		TotalTokens:  result.TotalTokens,
		ModelVersion: result.ModelVersion,
		Partial:      result.Partial,
	}
	for i, item := range result.Items {
		out.Items[i] = searchItemJSON{
			DocumentID:    item.DocumentID,
			DocumentTitle: item.DocumentTitle,
			ChunkID:       item.ChunkID,
			Sequence:      item.Sequence,
			Page:          item.Page,
			ChunkText:     item.Content,
			Similarity:    item.Similarity,
			TokenCount:    item.TokenCount,
		}
	}
	return out
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, result *domain.SearchResult) error {
	if len(result.Items) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, item := range result.Items {
		cmd.Printf("  [%d] %s #%d (%.2f, %d tokens)\n",
			i+1, item.DocumentTitle, item.Sequence, item.Similarity, item.TokenCount)
		if item.Page > 0 {
			cmd.Printf("      Page: %d\n", item.Page)
		}
		cmd.Printf("      %s\n", snippet(item.Content, 160))
		cmd.Println()
	}

	cmd.Printf("%d chunk(s), %d of %d tokens\n", len(result.Items), result.TotalTokens, result.MaxTokens)
	if result.Partial {
		cmd.Println("Warning: the search timed out; results are partial.")
	}
	return nil
}

// snippet collapses whitespace and truncates to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
