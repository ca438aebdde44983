package httpapi

import (
	"context"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

type mockIngestService struct {
	doc       *domain.Document
	err       error
	uploaded  domain.NewDocument
	uploadCfg domain.ChunkConfig
	ingestID  string
	content   string
}

func (m *mockIngestService) Upload(_ context.Context, doc domain.NewDocument, cfg domain.ChunkConfig) (*domain.Document, error) {
	m.uploaded = doc
	m.uploadCfg = cfg
	return m.doc, m.err
}

func (m *mockIngestService) Ingest(_ context.Context, id, content string, _ domain.ChunkConfig) (*domain.Document, error) {
	m.ingestID = id
	m.content = content
	return m.doc, m.err
}

func (m *mockIngestService) Wait(_ context.Context, _ string) error { return nil }

func (m *mockIngestService) Resume(_ context.Context) (int, error) { return 0, nil }

type mockDocumentService struct {
	docs    []domain.Document
	doc     *domain.Document
	chunks  []domain.Chunk
	report  *domain.StatusReport
	err     error
	filter  domain.DocumentFilter
	deleted string

	collections []domain.CollectionSummary
	tagged      []string
	added       []string
	removed     []string
	untagged    int
}

func (m *mockDocumentService) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	m.filter = filter
	return m.docs, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.doc, m.err
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

func (m *mockDocumentService) Status(_ context.Context, _ string) (*domain.StatusReport, error) {
	return m.report, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *mockDocumentService) SetCollections(_ context.Context, _ string, tags []string) (*domain.Document, error) {
	m.tagged = tags
	return m.doc, m.err
}

func (m *mockDocumentService) UpdateCollections(_ context.Context, _ string, add, remove []string) (*domain.Document, error) {
	m.added = add
	m.removed = remove
	return m.doc, m.err
}

func (m *mockDocumentService) Collections(_ context.Context) ([]domain.CollectionSummary, error) {
	return m.collections, m.err
}

func (m *mockDocumentService) DeleteCollection(_ context.Context, _ string) (int, error) {
	return m.untagged, m.err
}

type mockSearchService struct {
	result *domain.SearchResult
	err    error
	query  domain.SearchQuery
}

func (m *mockSearchService) Search(_ context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	m.query = q
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.SearchResult{Items: []domain.SearchItem{}, MaxTokens: q.MaxTokens}, nil
	}
	return m.result, nil
}

type mockContextService struct {
	assembled *domain.AssembledContext
	err       error
}

func (m *mockContextService) BuildContext(_ context.Context, _ domain.SearchQuery) (*domain.AssembledContext, error) {
	return m.assembled, m.err
}
