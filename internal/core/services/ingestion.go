package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// ErrServiceClosed is returned when work is submitted after Close.
var ErrServiceClosed = errors.New("ingest service closed")

// job is the background ingestion of one document generation.
type job struct {
	generation int
	cancel     context.CancelFunc
	done       chan struct{}
}

// IngestService chunks and indexes documents on background goroutines.
// At most one job runs per document: a new ingest cancels the previous
// job and waits for it, so chunk replacement has a single writer.
type IngestService struct {
	docStore   driven.DocumentStore
	chunkStore driven.ChunkStore
	chunker    driven.Chunker
	indexer    *Indexer
	defaults   domain.ChunkConfig

	// mu guards jobs and closed. It is held while a superseded job drains;
	// jobs never take it before closing their done channel.
	mu     sync.Mutex
	jobs   map[string]*job
	closed bool

	progressMu sync.Mutex
	progress   map[string]*domain.IndexProgress

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// NewIngestService creates an ingest service. A zero defaults value selects
// domain.DefaultChunkConfig.
func NewIngestService(
	docStore driven.DocumentStore,
	chunkStore driven.ChunkStore,
	chunker driven.Chunker,
	indexer *Indexer,
	defaults domain.ChunkConfig,
) *IngestService {
	if defaults == (domain.ChunkConfig{}) {
		defaults = domain.DefaultChunkConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IngestService{
		docStore:   docStore,
		chunkStore: chunkStore,
		chunker:    chunker,
		indexer:    indexer,
		defaults:   defaults,
		jobs:       make(map[string]*job),
		progress:   make(map[string]*domain.IndexProgress),
		baseCtx:    ctx,
		cancelAll:  cancel,
	}
}

// Upload stores a new pending document and schedules its ingestion.
func (s *IngestService) Upload(
	ctx context.Context, in domain.NewDocument, cfg domain.ChunkConfig,
) (*domain.Document, error) {
	cfg = s.resolveConfig(cfg, domain.ChunkConfig{})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: document title is required", domain.ErrInvalidInput)
	}

	now := time.Now()
	doc := &domain.Document{
		ID:          uuid.NewString(),
		Title:       title,
		FileType:    domain.NormalizeFileType(in.FileType),
		Language:    in.Language,
		Content:     in.Content,
		ContentHash: domain.ContentHash(in.Content),
		Collections: domain.NormalizeCollections(in.Collections),
		Metadata:    in.Metadata,
		Status:      domain.StatusPending,
		Generation:  1,
		ChunkConfig: cfg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}

	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	logger.Info("Uploaded document %s (%q, %d bytes)", doc.ID, doc.Title, len(doc.Content))

	s.scheduleLocked(doc)
	return doc, nil
}

// Ingest starts a new generation for an existing document. Empty content
// re-chunks the stored text; a zero cfg keeps the document's configuration.
func (s *IngestService) Ingest(
	ctx context.Context, documentID, content string, cfg domain.ChunkConfig,
) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}

	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	cfg = s.resolveConfig(cfg, doc.ChunkConfig)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := s.stopLocked(ctx, documentID); err != nil {
		return nil, err
	}

	if content != "" {
		doc.Content = content
		doc.ContentHash = domain.ContentHash(content)
	}
	doc.ChunkConfig = cfg
	doc.Generation++
	doc.Status = domain.StatusPending
	doc.ProcessingError = ""
	doc.UpdatedAt = time.Now()

	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	logger.Info("Re-ingesting document %s as generation %d", doc.ID, doc.Generation)

	s.scheduleLocked(doc)
	return doc, nil
}

// Wait blocks until the document's current job ends or ctx is done.
func (s *IngestService) Wait(ctx context.Context, documentID string) error {
	s.mu.Lock()
	j := s.jobs[documentID]
	s.mu.Unlock()

	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume schedules documents left pending or processing by an earlier
// process. Each one restarts as a new generation from its stored content.
func (s *IngestService) Resume(ctx context.Context) (int, error) {
	docs, err := s.docStore.ListDocuments(ctx, domain.DocumentFilter{
		Statuses: []domain.DocumentStatus{domain.StatusPending, domain.StatusProcessing},
	})
	if err != nil {
		return 0, fmt.Errorf("list unfinished documents: %w", err)
	}

	resumed := 0
	for _, doc := range docs {
		s.mu.Lock()
		running := s.jobs[doc.ID] != nil
		s.mu.Unlock()
		if running {
			continue
		}
		if _, err := s.Ingest(ctx, doc.ID, "", domain.ChunkConfig{}); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return resumed, fmt.Errorf("resume %s: %w", doc.ID, err)
		}
		resumed++
	}

	if resumed > 0 {
		logger.Info("Resumed %d unfinished document(s)", resumed)
	}
	return resumed, nil
}

// Remove cancels the document's job, waits for it and deletes the document
// with its chunks and embeddings.
func (s *IngestService) Remove(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stopLocked(ctx, documentID); err != nil {
		return err
	}
	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.progressMu.Lock()
	delete(s.progress, documentID)
	s.progressMu.Unlock()

	logger.Info("Deleted document %s", documentID)
	return nil
}

// Progress returns a copy of the per-chunk indexing state of the given
// generation, or nil when none is tracked.
func (s *IngestService) Progress(documentID string, generation int) *domain.IndexProgress {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()

	p := s.progress[documentID]
	if p == nil || p.Generation != generation {
		return nil
	}
	cp := &domain.IndexProgress{
		DocumentID: p.DocumentID,
		Generation: p.Generation,
		Chunks:     make(map[string]domain.ChunkIndexState, len(p.Chunks)),
	}
	for id, st := range p.Chunks {
		cp.Chunks[id] = st
	}
	return cp
}

// Close cancels all background work and waits for it to exit.
// Interrupted documents stay pending or processing and are picked up by Resume.
func (s *IngestService) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancelAll()
	s.wg.Wait()
	return nil
}

// resolveConfig fills a zero cfg from fallback, then from the service default.
func (s *IngestService) resolveConfig(cfg, fallback domain.ChunkConfig) domain.ChunkConfig {
	if cfg != (domain.ChunkConfig{}) {
		return cfg
	}
	if fallback != (domain.ChunkConfig{}) {
		return fallback
	}
	return s.defaults
}

// stopLocked cancels the running job of a document and waits for it.
// Caller holds s.mu.
func (s *IngestService) stopLocked(ctx context.Context, documentID string) error {
	j := s.jobs[documentID]
	if j == nil {
		return nil
	}
	j.cancel()
	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	delete(s.jobs, documentID)
	return nil
}

// scheduleLocked starts the background job for doc. Caller holds s.mu.
func (s *IngestService) scheduleLocked(doc *domain.Document) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	j := &job{generation: doc.Generation, cancel: cancel, done: make(chan struct{})}
	s.jobs[doc.ID] = j

	snapshot := *doc
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(doc.ID, j)
		defer close(j.done)
		defer cancel()
		s.run(ctx, &snapshot)
	}()
}

// forget drops the job entry unless a newer job replaced it.
func (s *IngestService) forget(documentID string, j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[documentID] == j {
		delete(s.jobs, documentID)
	}
}

// run executes the pipeline for one generation:
// processing, chunk, replace chunks, index, then completed or failed.
func (s *IngestService) run(ctx context.Context, doc *domain.Document) {
	logger.Section("Ingestion " + doc.ID)
	start := time.Now()
	defer logger.Since("ingestion of "+doc.ID, start)

	applied, err := s.docStore.UpdateStatus(ctx, doc.ID, doc.Generation, domain.StatusProcessing, "")
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Error("ingest %s: mark processing: %v", doc.ID, err)
		}
		return
	}
	if !applied {
		logger.Debug("Generation %d of %s is stale, skipping", doc.Generation, doc.ID)
		return
	}

	chunks, err := s.chunker.Chunk(doc.ID, doc.Content, doc.ChunkConfig)
	if err != nil {
		s.fail(ctx, doc, fmt.Errorf("chunking: %w", err))
		return
	}
	logger.Debug("Chunked %s into %d chunk(s) (size=%d overlap=%d)",
		doc.ID, len(chunks), doc.ChunkConfig.Size, doc.ChunkConfig.Overlap)

	if err := s.chunkStore.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		if s.cancelled(ctx, err) {
			return
		}
		s.fail(ctx, doc, fmt.Errorf("storing chunks: %w", err))
		return
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	s.progressMu.Lock()
	s.progress[doc.ID] = domain.NewIndexProgress(doc.ID, doc.Generation, ids)
	s.progressMu.Unlock()

	if len(chunks) > 0 {
		err = s.indexer.IndexDocument(ctx, chunks, func(chunkID string, state domain.ChunkIndexState) {
			s.progressMu.Lock()
			defer s.progressMu.Unlock()
			if p := s.progress[doc.ID]; p != nil && p.Generation == doc.Generation {
				p.Mark(chunkID, state)
			}
		})
		if err != nil {
			if s.cancelled(ctx, err) {
				logger.Debug("Indexing of %s generation %d cancelled", doc.ID, doc.Generation)
				return
			}
			s.fail(ctx, doc, fmt.Errorf("indexing: %w", err))
			return
		}
	}

	if _, err := s.docStore.UpdateStatus(ctx, doc.ID, doc.Generation, domain.StatusCompleted, ""); err != nil {
		if !s.cancelled(ctx, err) {
			logger.Error("ingest %s: mark completed: %v", doc.ID, err)
		}
		return
	}
	logger.Info("Document %s completed with %d chunk(s)", doc.ID, len(chunks))
}

// cancelled reports whether err means the job was superseded or stopped
// rather than failed. A chunk that vanished mid-indexing was replaced by a
// newer generation or deleted.
func (s *IngestService) cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrNotFound)
}

// fail records a permanent failure for the document's generation.
func (s *IngestService) fail(ctx context.Context, doc *domain.Document, cause error) {
	logger.Error("ingest %s failed: %v", doc.ID, cause)
	if _, err := s.docStore.UpdateStatus(ctx, doc.ID, doc.Generation, domain.StatusFailed, cause.Error()); err != nil {
		if !s.cancelled(ctx, err) {
			logger.Error("ingest %s: mark failed: %v", doc.ID, err)
		}
	}
}
