package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// Ensure ContextService implements the interface.
var _ driving.ContextService = (*ContextService)(nil)

// sectionSeparator joins assembled sections.
const sectionSeparator = "\n\n"

// Assembler formats ranked chunks into a provenance-annotated context string.
type Assembler struct {
	tokenizer driven.Tokenizer
}

// NewAssembler creates an assembler that counts with tok.
func NewAssembler(tok driven.Tokenizer) *Assembler {
	return &Assembler{tokenizer: tok}
}

// header is the citation line that opens a section. The title is quoted
// with Go escaping so quotes and newlines cannot break the line.
func header(title string) string {
	return "[From document " + strconv.Quote(title) + "]\n"
}

// Reservation returns the tokens the section at position adds beyond its
// chunk text: the citation header, plus the separator in front of it for
// every section but the first.
func (a *Assembler) Reservation(title string, position int) int {
	n := a.tokenizer.Count(header(title))
	if position > 0 {
		n += a.tokenizer.Count(sectionSeparator)
	}
	return n
}

// Assemble joins the items of result in ranked order.
func (a *Assembler) Assemble(result *domain.SearchResult) string {
	if result == nil {
		return ""
	}
	sections := make([]string, len(result.Items))
	for i, item := range result.Items {
		sections[i] = header(item.DocumentTitle) + item.Content
	}
	return strings.Join(sections, sectionSeparator)
}

// AssembleContext assembles result and drops trailing sections until the
// text fits result.MaxTokens. Returned Result reflects the kept sections.
func (a *Assembler) AssembleContext(result *domain.SearchResult) *domain.AssembledContext {
	if result == nil {
		result = &domain.SearchResult{}
	}

	kept := *result
	kept.Items = append([]domain.SearchItem(nil), result.Items...)

	text := a.Assemble(&kept)
	count := a.tokenizer.Count(text)
	for kept.MaxTokens > 0 && count > kept.MaxTokens && len(kept.Items) > 0 {
		dropped := kept.Items[len(kept.Items)-1]
		kept.Items = kept.Items[:len(kept.Items)-1]
		kept.TotalTokens -= dropped.TokenCount
		logger.Warn("Context over budget (%d > %d), dropping chunk %s", count, kept.MaxTokens, dropped.ChunkID)

		text = a.Assemble(&kept)
		count = a.tokenizer.Count(text)
	}

	return &domain.AssembledContext{
		Text:       text,
		TokenCount: count,
		Result:     &kept,
	}
}

// reservingSearch is a search that can charge assembly overhead per chunk.
type reservingSearch interface {
	SearchReserving(ctx context.Context, q domain.SearchQuery, reserve Reserve) (*domain.SearchResult, error)
}

// ContextService searches and assembles in one call.
type ContextService struct {
	search    driving.SearchService
	assembler *Assembler
}

// NewContextService creates a context service.
func NewContextService(search driving.SearchService, assembler *Assembler) *ContextService {
	return &ContextService{search: search, assembler: assembler}
}

// BuildContext runs the query and assembles the selection. When the search
// supports it, citation headers and separators are charged during selection
// so the assembled text stays within MaxTokens; AssembleContext trims
// whatever still overflows.
func (s *ContextService) BuildContext(
	ctx context.Context, query domain.SearchQuery,
) (*domain.AssembledContext, error) {
	var (
		result *domain.SearchResult
		err    error
	)
	if rs, ok := s.search.(reservingSearch); ok {
		result, err = rs.SearchReserving(ctx, query, s.assembler.Reservation)
	} else {
		result, err = s.search.Search(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	assembled := s.assembler.AssembleContext(result)
	logger.Debug("Assembled %d section(s), %d tokens", len(assembled.Result.Items), assembled.TokenCount)
	return assembled, nil
}
