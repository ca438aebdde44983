package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

// uploadRequest is the body of POST /api/documents.
type uploadRequest struct {
	Title        string         `json:"title"`
	FileType     string         `json:"fileType"`
	Language     string         `json:"language"`
	Content      string         `json:"content"`
	Collections  []string       `json:"collections"`
	Metadata     map[string]any `json:"metadata"`
	ChunkSize    int            `json:"chunkSize"`
	ChunkOverlap int            `json:"chunkOverlap"`
}

// contentRequest is the body of PUT /api/documents/:id/content.
type contentRequest struct {
	Content      string `json:"content"`
	ChunkSize    int    `json:"chunkSize"`
	ChunkOverlap int    `json:"chunkOverlap"`
}

// collectionsRequest is the body of PUT /api/documents/:id/collections.
// A missing list is rejected so a typo cannot clear every tag.
type collectionsRequest struct {
	Collections *[]string `json:"collections"`
}

// collectionChangeRequest is the body of PATCH /api/documents/:id/collections.
type collectionChangeRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

type collectionResponse struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

// searchRequest is the body of POST /api/search and POST /api/context.
// Pointer fields distinguish an explicit zero from an omitted value.
type searchRequest struct {
	Query         string   `json:"query"`
	DocumentIDs   []string `json:"documentIds"`
	CollectionIDs []string `json:"collectionIds"`
	MaxChunks     *int     `json:"maxChunks"`
	MaxTokens     *int     `json:"maxTokens"`
	MinSimilarity *float64 `json:"minSimilarity"`
	Languages     []string `json:"languages"`
	DocumentTypes []string `json:"documentTypes"`
	TimeoutMS     int      `json:"timeoutMs"`
}

type documentResponse struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	FileType        string         `json:"fileType,omitempty"`
	Language        string         `json:"language,omitempty"`
	Collections     []string       `json:"collections,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ContentHash     string         `json:"contentHash"`
	Status          string         `json:"status"`
	ProcessingError string         `json:"processingError,omitempty"`
	Generation      int            `json:"generation"`
	ChunkSize       int            `json:"chunkSize"`
	ChunkOverlap    int            `json:"chunkOverlap"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type statusResponse struct {
	DocumentID      string    `json:"documentId"`
	Status          string    `json:"status"`
	ProcessingError string    `json:"processingError,omitempty"`
	Generation      int       `json:"generation"`
	TotalChunks     int       `json:"totalChunks"`
	IndexedChunks   int       `json:"indexedChunks"`
	FailedChunks    int       `json:"failedChunks"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type chunkResponse struct {
	ID          string `json:"id"`
	Sequence    int    `json:"sequence"`
	Content     string `json:"content"`
	TokenCount  int    `json:"tokenCount"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
	Page        int    `json:"page,omitempty"`
}

type searchItemResponse struct {
	DocumentID    string  `json:"documentId"`
	DocumentTitle string  `json:"documentTitle"`
	ChunkID       string  `json:"chunkId"`
	ChunkText     string  `json:"chunkText"`
	Similarity    float64 `json:"similarity"`
	TokenCount    int     `json:"tokenCount"`
	Page          int     `json:"page,omitempty"`
}

type searchResponse struct {
	Items        []searchItemResponse `json:"items"`
	MaxTokens    int                  `json:"maxTokens"`
	TotalTokens  int                  `json:"totalTokens"`
	ModelVersion string               `json:"modelVersion,omitempty"`
	Partial      bool                 `json:"partial"`
}

type contextResponse struct {
	Context    string         `json:"context"`
	TokenCount int            `json:"tokenCount"`
	Result     searchResponse `json:"result"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) uploadDocument(c echo.Context) error {
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}

	doc, err := s.services.Ingest.Upload(c.Request().Context(), domain.NewDocument{
		Title:       strings.TrimSpace(req.Title),
		FileType:    req.FileType,
		Language:    req.Language,
		Content:     req.Content,
		Collections: req.Collections,
		Metadata:    req.Metadata,
	}, domain.ChunkConfig{Size: req.ChunkSize, Overlap: req.ChunkOverlap})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, newDocumentResponse(doc))
}

func (s *Server) replaceContent(c echo.Context) error {
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}

	doc, err := s.services.Ingest.Ingest(c.Request().Context(), c.Param("id"), req.Content,
		domain.ChunkConfig{Size: req.ChunkSize, Overlap: req.ChunkOverlap})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, newDocumentResponse(doc))
}

func (s *Server) listDocuments(c echo.Context) error {
	filter := domain.DocumentFilter{
		Collections: queryList(c, "collection"),
		Languages:   queryList(c, "language"),
		FileTypes:   queryList(c, "type"),
	}
	for _, st := range queryList(c, "status") {
		status := domain.DocumentStatus(st)
		if !status.IsValid() {
			return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, st)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	docs, err := s.services.Document.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	out := make([]documentResponse, len(docs))
	for i := range docs {
		out[i] = newDocumentResponse(&docs[i])
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getDocument(c echo.Context) error {
	doc, err := s.services.Document.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDocumentResponse(doc))
}

func (s *Server) documentStatus(c echo.Context) error {
	report, err := s.services.Document.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{
		DocumentID:      report.DocumentID,
		Status:          report.Status.String(),
		ProcessingError: report.ProcessingError,
		Generation:      report.Generation,
		TotalChunks:     report.TotalChunks,
		IndexedChunks:   report.IndexedChunks,
		FailedChunks:    report.FailedChunks,
		UpdatedAt:       report.UpdatedAt,
	})
}

func (s *Server) documentChunks(c echo.Context) error {
	chunks, err := s.services.Document.Chunks(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	out := make([]chunkResponse, len(chunks))
	for i := range chunks {
		out[i] = chunkResponse{
			ID:          chunks[i].ID,
			Sequence:    chunks[i].Sequence,
			Content:     chunks[i].Content,
			TokenCount:  chunks[i].TokenCount,
			StartOffset: chunks[i].StartOffset,
			EndOffset:   chunks[i].EndOffset,
			Page:        chunks[i].Page,
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deleteDocument(c echo.Context) error {
	if err := s.services.Document.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) setCollections(c echo.Context) error {
	var req collectionsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	if req.Collections == nil {
		return fmt.Errorf("%w: collections is required", domain.ErrInvalidInput)
	}

	doc, err := s.services.Document.SetCollections(c.Request().Context(), c.Param("id"), *req.Collections)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDocumentResponse(doc))
}

func (s *Server) updateCollections(c echo.Context) error {
	var req collectionChangeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}

	doc, err := s.services.Document.UpdateCollections(c.Request().Context(), c.Param("id"), req.Add, req.Remove)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDocumentResponse(doc))
}

func (s *Server) listCollections(c echo.Context) error {
	summary, err := s.services.Document.Collections(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]collectionResponse, len(summary))
	for i, cs := range summary {
		out[i] = collectionResponse{Name: cs.Name, Documents: cs.Documents}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deleteCollection(c echo.Context) error {
	n, err := s.services.Document.DeleteCollection(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"name": c.Param("name"), "documentsUpdated": n})
}

func (s *Server) search(c echo.Context) error {
	q, err := s.bindQuery(c)
	if err != nil {
		return err
	}
	result, err := s.services.Search.Search(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSearchResponse(result))
}

func (s *Server) buildContext(c echo.Context) error {
	q, err := s.bindQuery(c)
	if err != nil {
		return err
	}
	assembled, err := s.services.Context.BuildContext(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, contextResponse{
		Context:    assembled.Text,
		TokenCount: assembled.TokenCount,
		Result:     newSearchResponse(assembled.Result),
	})
}

// bindQuery decodes a search request, filling omitted fields from the defaults.
func (s *Server) bindQuery(c echo.Context) (domain.SearchQuery, error) {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return domain.SearchQuery{}, badRequest(err)
	}

	q := domain.SearchQuery{
		Query:         req.Query,
		DocumentIDs:   req.DocumentIDs,
		CollectionIDs: req.CollectionIDs,
		Languages:     req.Languages,
		DocumentTypes: req.DocumentTypes,
		MinSimilarity: s.services.Defaults.MinSimilarity,
		MaxTokens:     s.services.Defaults.MaxTokens,
		MaxChunks:     s.services.Defaults.MaxChunks,
		Timeout:       s.services.Defaults.Timeout,
	}
	if req.MinSimilarity != nil {
		q.MinSimilarity = *req.MinSimilarity
	}
	if req.MaxTokens != nil {
		q.MaxTokens = *req.MaxTokens
	}
	if req.MaxChunks != nil {
		q.MaxChunks = *req.MaxChunks
	}
	if req.TimeoutMS > 0 {
		q.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	return q, nil
}

func newDocumentResponse(doc *domain.Document) documentResponse {
	return documentResponse{
		ID:              doc.ID,
		Title:           doc.Title,
		FileType:        doc.FileType,
		Language:        doc.Language,
		Collections:     doc.Collections,
		Metadata:        doc.Metadata,
		ContentHash:     doc.ContentHash,
		Status:          doc.Status.String(),
		ProcessingError: doc.ProcessingError,
		Generation:      doc.Generation,
		ChunkSize:       doc.ChunkConfig.Size,
		ChunkOverlap:    doc.ChunkConfig.Overlap,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func newSearchResponse(result *domain.SearchResult) searchResponse {
	out := searchResponse{
		Items:        make([]searchItemResponse, len(result.Items)),
		MaxTokens:    result.MaxTokens,
		TotalTokens:  result.TotalTokens,
		ModelVersion: result.ModelVersion,
		Partial:      result.Partial,
	}
	for i, item := range result.Items {
		out.Items[i] = searchItemResponse{
			DocumentID:    item.DocumentID,
			DocumentTitle: item.DocumentTitle,
			ChunkID:       item.ChunkID,
			ChunkText:     item.Content,
			Similarity:    item.Similarity,
			TokenCount:    item.TokenCount,
			Page:          item.Page,
		}
	}
	return out
}

// queryList reads a repeated or comma-separated query parameter.
func queryList(c echo.Context, name string) []string {
	var out []string
	for _, v := range c.QueryParams()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}
