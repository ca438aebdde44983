package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for ragctx resources.
	uriScheme = "ragctx://"
)

// documentInfo is the JSON form of a document in resource listings.
type documentInfo struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	FileType        string    `json:"file_type,omitempty"`
	Language        string    `json:"language,omitempty"`
	Collections     []string  `json:"collections,omitempty"`
	Status          string    `json:"status"`
	ProcessingError string    `json:"processing_error,omitempty"`
	Generation      int       `json:"generation"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// documentDetail adds chunk counters to documentInfo.
type documentDetail struct {
	documentInfo
	TotalChunks   int `json:"total_chunks"`
	IndexedChunks int `json:"indexed_chunks"`
	FailedChunks  int `json:"failed_chunks"`
}

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "All ingested documents with their ingestion status",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}",
		Name:        "document",
		Description: "Metadata and indexing progress of a specific document",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)
}

// handleDocumentsResource returns all documents.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Document.List(ctx, domain.DocumentFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	infos := make([]documentInfo, len(docs))
	for i := range docs {
		infos[i] = newDocumentInfo(&docs[i])
	}
	return jsonResult(req.Params.URI, infos)
}

// handleDocumentResource returns one document with its chunk counters.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract documentId from URI: ragctx://documents/{documentId}
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Document.Get(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	report, err := s.ports.Document.Status(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("getting document status: %w", err)
	}

	return jsonResult(req.Params.URI, documentDetail{
		documentInfo:  newDocumentInfo(doc),
		TotalChunks:   report.TotalChunks,
		IndexedChunks: report.IndexedChunks,
		FailedChunks:  report.FailedChunks,
	})
}

func newDocumentInfo(doc *domain.Document) documentInfo {
	return documentInfo{
		ID:              doc.ID,
		Title:           doc.Title,
		FileType:        doc.FileType,
		Language:        doc.Language,
		Collections:     doc.Collections,
		Status:          doc.Status.String(),
		ProcessingError: doc.ProcessingError,
		Generation:      doc.Generation,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID extracts the document ID from a URI like ragctx://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
