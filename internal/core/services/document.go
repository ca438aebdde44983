package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService exposes uploaded documents to management surfaces.
type DocumentService struct {
	docStore   driven.DocumentStore
	chunkStore driven.ChunkStore
	ingest     *IngestService

	// tagMu serializes read-modify-write of collection tags.
	tagMu sync.Mutex
}

// NewDocumentService creates a new document service.
func NewDocumentService(
	docStore driven.DocumentStore,
	chunkStore driven.ChunkStore,
	ingest *IngestService,
) *DocumentService {
	return &DocumentService{
		docStore:   docStore,
		chunkStore: chunkStore,
		ingest:     ingest,
	}
}

// List returns documents matching the filter, ordered by ID.
func (s *DocumentService) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	if len(filter.FileTypes) > 0 {
		types := make([]string, len(filter.FileTypes))
		for i, t := range filter.FileTypes {
			types[i] = domain.NormalizeFileType(t)
		}
		filter.FileTypes = types
	}
	return s.docStore.ListDocuments(ctx, filter)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docStore.GetDocument(ctx, documentID)
}

// Chunks returns the current chunk set of a document.
func (s *DocumentService) Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if _, err := s.docStore.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.chunkStore.GetChunks(ctx, documentID)
}

// Status reports the ingestion state with chunk counters. While a job runs
// the counters come from its live progress; otherwise they are derived
// from the stored chunk set.
func (s *DocumentService) Status(ctx context.Context, documentID string) (*domain.StatusReport, error) {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report := &domain.StatusReport{
		DocumentID:      doc.ID,
		Status:          doc.Status,
		ProcessingError: doc.ProcessingError,
		Generation:      doc.Generation,
		UpdatedAt:       doc.UpdatedAt,
	}

	if p := s.progress(doc); p != nil {
		pending, indexed, failed := p.Counts()
		report.TotalChunks = pending + indexed + failed
		report.IndexedChunks = indexed
		report.FailedChunks = failed
		return report, nil
	}

	if doc.Status == domain.StatusPending {
		return report, nil
	}

	chunks, err := s.chunkStore.GetChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	report.TotalChunks = len(chunks)
	if doc.Status == domain.StatusCompleted {
		report.IndexedChunks = len(chunks)
	}
	return report, nil
}

// Delete cancels in-flight ingestion and removes the document.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if s.ingest != nil {
		return s.ingest.Remove(ctx, documentID)
	}
	return s.docStore.DeleteDocument(ctx, documentID)
}

// SetCollections replaces the collection tags of a document. Content,
// status and generation are untouched, so no re-ingestion happens.
func (s *DocumentService) SetCollections(
	ctx context.Context, documentID string, collections []string,
) (*domain.Document, error) {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()
	if err := s.docStore.SetCollections(ctx, documentID, domain.NormalizeCollections(collections)); err != nil {
		return nil, err
	}
	return s.docStore.GetDocument(ctx, documentID)
}

// UpdateCollections adds and removes collection tags on a document.
// Removal wins when a tag appears in both lists.
func (s *DocumentService) UpdateCollections(
	ctx context.Context, documentID string, add, remove []string,
) (*domain.Document, error) {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	drop := domain.NormalizeCollections(remove)
	next := slices.DeleteFunc(
		domain.NormalizeCollections(append(slices.Clone(doc.Collections), add...)),
		func(tag string) bool { return slices.Contains(drop, tag) },
	)
	if err := s.docStore.SetCollections(ctx, documentID, next); err != nil {
		return nil, err
	}
	return s.docStore.GetDocument(ctx, documentID)
}

// Collections lists the distinct collection tags in use, ordered by name.
func (s *DocumentService) Collections(ctx context.Context) ([]domain.CollectionSummary, error) {
	docs, err := s.docStore.ListDocuments(ctx, domain.DocumentFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, doc := range docs {
		for _, tag := range domain.NormalizeCollections(doc.Collections) {
			counts[tag]++
		}
	}
	out := make([]domain.CollectionSummary, 0, len(counts))
	for name, n := range counts {
		out = append(out, domain.CollectionSummary{Name: name, Documents: n})
	}
	slices.SortFunc(out, func(a, b domain.CollectionSummary) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// DeleteCollection removes a collection tag from every document carrying
// it. Documents stay in the store. Returns the number of documents changed.
func (s *DocumentService) DeleteCollection(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}

	s.tagMu.Lock()
	defer s.tagMu.Unlock()

	docs, err := s.docStore.ListDocuments(ctx, domain.DocumentFilter{Collections: []string{name}})
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, doc := range docs {
		rest := slices.DeleteFunc(slices.Clone(doc.Collections), func(tag string) bool { return tag == name })
		err := s.docStore.SetCollections(ctx, doc.ID, rest)
		if errors.Is(err, domain.ErrNotFound) {
			continue // deleted meanwhile
		}
		if err != nil {
			return changed, fmt.Errorf("untagging %s: %w", doc.ID, err)
		}
		changed++
	}
	return changed, nil
}

func (s *DocumentService) progress(doc *domain.Document) *domain.IndexProgress {
	if s.ingest == nil {
		return nil
	}
	return s.ingest.Progress(doc.ID, doc.Generation)
}
