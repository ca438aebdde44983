package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.DocumentStore  = (*Store)(nil)
	_ driven.ChunkStore     = (*Store)(nil)
	_ driven.EmbeddingIndex = (*Store)(nil)
)

// Store is an in-memory implementation of the document store, chunk store
// and embedding index. One lock guards all three so chunk replacement and
// candidate reads are atomic with respect to each other.
type Store struct {
	mu         sync.RWMutex
	documents  map[string]domain.Document
	chunks     map[string][]domain.Chunk // by document, ordered by sequence
	chunkDocs  map[string]string         // chunk ID to document ID
	embeddings map[string]map[string]domain.Embedding
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		documents:  make(map[string]domain.Document),
		chunks:     make(map[string][]domain.Chunk),
		chunkDocs:  make(map[string]string),
		embeddings: make(map[string]map[string]domain.Embedding),
	}
}

// SaveDocument stores or updates a document.
func (s *Store) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = cloneDocument(*doc)
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc = cloneDocument(doc)
	return &doc, nil
}

// ListDocuments returns the documents matching filter, ordered by ID.
func (s *Store) ListDocuments(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Document
	for id := range s.documents {
		doc := s.documents[id]
		if filter.Matches(&doc) {
			result = append(result, cloneDocument(doc))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateStatus applies a status transition for the current generation.
func (s *Store) UpdateStatus(
	_ context.Context, id string, generation int, status domain.DocumentStatus, reason string,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if doc.Generation != generation {
		return false, nil
	}
	if !doc.Status.CanTransitionTo(status) {
		return false, domain.ErrInvalidTransition
	}
	doc.Status = status
	doc.ProcessingError = reason
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return true, nil
}

// SetCollections replaces the collection tags of a document.
func (s *Store) SetCollections(_ context.Context, id string, collections []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Collections = slices.Clone(collections)
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return nil
}

// DeleteDocument removes a document, its chunks and their embeddings.
func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return domain.ErrNotFound
	}
	for _, c := range s.chunks[id] {
		delete(s.chunkDocs, c.ID)
		delete(s.embeddings, c.ID)
	}
	delete(s.chunks, id)
	delete(s.documents, id)
	return nil
}

// ReplaceChunks swaps the chunk set of a document. Embeddings of chunks
// that survive by ID are kept.
func (s *Store) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[documentID]; !ok {
		return domain.ErrNotFound
	}

	// Validate before mutating so a rejected set leaves the old one intact.
	keep := make(map[string]bool, len(chunks))
	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.Sequence] {
			return fmt.Errorf("%w: chunk sequence %d repeated", domain.ErrInvalidInput, c.Sequence)
		}
		seen[c.Sequence] = true
		keep[c.ID] = true
	}
	for _, old := range s.chunks[documentID] {
		if !keep[old.ID] {
			delete(s.chunkDocs, old.ID)
			delete(s.embeddings, old.ID)
		}
	}

	now := time.Now()
	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.DocumentID = documentID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.Metadata = maps.Clone(c.Metadata)
		stored[i] = c
		s.chunkDocs[c.ID] = documentID
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Sequence < stored[j].Sequence })
	s.chunks[documentID] = stored
	return nil
}

// GetChunks retrieves all chunks for a document ordered by sequence.
func (s *Store) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chunks[documentID]), nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *Store) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docID, ok := s.chunkDocs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, chunk := range s.chunks[docID] {
		if chunk.ID == id {
			return &chunk, nil
		}
	}
	return nil, domain.ErrNotFound
}

// PutEmbedding upserts an embedding for an existing chunk.
func (s *Store) PutEmbedding(_ context.Context, emb domain.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunkDocs[emb.ChunkID]; !ok {
		return domain.ErrNotFound
	}
	byModel, ok := s.embeddings[emb.ChunkID]
	if !ok {
		byModel = make(map[string]domain.Embedding)
		s.embeddings[emb.ChunkID] = byModel
	}
	emb.Vector = slices.Clone(emb.Vector)
	emb.Dimensions = len(emb.Vector)
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now()
	}
	byModel[emb.ModelVersion] = emb
	return nil
}

// HasEmbedding reports whether the chunk has a vector for modelVersion.
func (s *Store) HasEmbedding(_ context.Context, chunkID, modelVersion string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.embeddings[chunkID][modelVersion]
	return ok, nil
}

// Candidates returns a document's chunks joined with their vectors.
func (s *Store) Candidates(_ context.Context, documentID, modelVersion string) ([]domain.IndexedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.chunks[documentID]
	result := make([]domain.IndexedChunk, 0, len(chunks))
	for _, c := range chunks {
		ic := domain.IndexedChunk{Chunk: c}
		if emb, ok := s.embeddings[c.ID][modelVersion]; ok {
			ic.Vector = slices.Clone(emb.Vector)
		}
		result = append(result, ic)
	}
	return result, nil
}

func cloneDocument(doc domain.Document) domain.Document {
	doc.Collections = slices.Clone(doc.Collections)
	doc.Metadata = maps.Clone(doc.Metadata)
	return doc
}
