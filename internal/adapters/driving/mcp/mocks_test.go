package mcp

import (
	"context"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
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

// mockContextService is a mock implementation of driving.ContextService.
type mockContextService struct {
	assembled *domain.AssembledContext
	err       error
	query     domain.SearchQuery
}

func (m *mockContextService) BuildContext(_ context.Context, q domain.SearchQuery) (*domain.AssembledContext, error) {
	m.query = q
	if m.err != nil {
		return nil, m.err
	}
	return m.assembled, nil
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	document  *domain.Document
	report    *domain.StatusReport
	err       error
}

func (m *mockDocumentService) List(_ context.Context, _ domain.DocumentFilter) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return nil, m.err
}

func (m *mockDocumentService) Status(_ context.Context, _ string) (*domain.StatusReport, error) {
	return m.report, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockDocumentService) SetCollections(_ context.Context, _ string, _ []string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) UpdateCollections(_ context.Context, _ string, _, _ []string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) Collections(_ context.Context) ([]domain.CollectionSummary, error) {
	return nil, m.err
}

func (m *mockDocumentService) DeleteCollection(_ context.Context, _ string) (int, error) {
	return 0, m.err
}

func validPorts() *Ports {
	return &Ports{
		Search:   &mockSearchService{},
		Context:  &mockContextService{},
		Defaults: domain.DefaultAppSettings().Search,
	}
}
