package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// SourcePathKey is the document metadata key holding the absolute file path.
const SourcePathKey = "source_path"

// Action is what the syncer did with a change.
type Action string

// Sync actions.
const (
	ActionUploaded  Action = "uploaded"
	ActionReingest  Action = "reingested"
	ActionDeleted   Action = "deleted"
	ActionUnchanged Action = "unchanged"
	ActionIgnored   Action = "ignored"
)

// Options are the document attributes applied to uploaded files.
type Options struct {
	Language    string
	Collections []string
	ChunkConfig domain.ChunkConfig
}

// Documents is the part of driving.DocumentService the syncer needs.
type Documents interface {
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	Get(ctx context.Context, documentID string) (*domain.Document, error)
	Delete(ctx context.Context, documentID string) error
}

// Syncer applies file changes to the ingest pipeline. It is not safe for
// concurrent use; the watch loop drives it from one goroutine.
type Syncer struct {
	ingest driving.IngestService
	docs   Documents
	opts   Options
	paths  map[string]string // absolute path to document ID
}

// NewSyncer creates a syncer.
func NewSyncer(ingest driving.IngestService, docs Documents, opts Options) *Syncer {
	return &Syncer{
		ingest: ingest,
		docs:   docs,
		opts:   opts,
		paths:  make(map[string]string),
	}
}

// Load maps existing documents to their source files so a restarted
// watch reuses them instead of uploading duplicates.
func (s *Syncer) Load(ctx context.Context) error {
	docs, err := s.docs.List(ctx, domain.DocumentFilter{})
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for i := range docs {
		if path, ok := docs[i].Metadata[SourcePathKey].(string); ok && path != "" {
			s.paths[path] = docs[i].ID
		}
	}
	return nil
}

// Reconcile upserts every supported file under root and deletes documents
// whose source file under root no longer exists.
func (s *Syncer) Reconcile(ctx context.Context, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	files, err := Scan(root)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
		if _, err := s.Apply(ctx, Change{Type: ChangeUpserted, Path: f}); err != nil {
			logger.Warn("sync %s: %v", f, err)
		}
	}

	prefix := root + string(filepath.Separator)
	for path := range s.paths {
		if strings.HasPrefix(path, prefix) && !present[path] {
			if _, err := s.Apply(ctx, Change{Type: ChangeDeleted, Path: path}); err != nil {
				logger.Warn("sync %s: %v", path, err)
			}
		}
	}
	return nil
}

// Apply performs the ingest operation for one change.
func (s *Syncer) Apply(ctx context.Context, change Change) (Action, error) {
	path, err := filepath.Abs(change.Path)
	if err != nil {
		return ActionIgnored, err
	}

	switch change.Type {
	case ChangeDeleted:
		return s.remove(ctx, path)
	case ChangeUpserted:
		return s.upsert(ctx, path)
	default:
		return ActionIgnored, nil
	}
}

func (s *Syncer) remove(ctx context.Context, path string) (Action, error) {
	id, ok := s.paths[path]
	if !ok {
		return ActionIgnored, nil
	}
	delete(s.paths, path)
	if err := s.docs.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return ActionDeleted, fmt.Errorf("delete %s: %w", id, err)
	}
	return ActionDeleted, nil
}

func (s *Syncer) upsert(ctx context.Context, path string) (Action, error) {
	content, err := ReadText(path)
	if errors.Is(err, os.ErrNotExist) {
		// Removed again before the change was applied.
		return s.remove(ctx, path)
	}
	if err != nil {
		return ActionIgnored, err
	}

	if id, ok := s.paths[path]; ok {
		action, err := s.reingest(ctx, id, content)
		if !errors.Is(err, domain.ErrNotFound) {
			return action, err
		}
		// The document was deleted behind our back; upload it again.
		delete(s.paths, path)
	}

	doc, err := s.ingest.Upload(ctx, domain.NewDocument{
		Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FileType:    filepath.Ext(path),
		Language:    s.opts.Language,
		Content:     content,
		Collections: s.opts.Collections,
		Metadata:    map[string]any{SourcePathKey: path},
	}, s.opts.ChunkConfig)
	if err != nil {
		return ActionIgnored, fmt.Errorf("upload %s: %w", path, err)
	}
	s.paths[path] = doc.ID
	return ActionUploaded, nil
}

func (s *Syncer) reingest(ctx context.Context, id, content string) (Action, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return ActionIgnored, err
	}
	if doc.ContentHash == domain.ContentHash(content) && doc.Status != domain.StatusFailed {
		return ActionUnchanged, nil
	}
	if _, err := s.ingest.Ingest(ctx, id, content, s.opts.ChunkConfig); err != nil {
		return ActionIgnored, fmt.Errorf("re-ingest %s: %w", id, err)
	}
	return ActionReingest, nil
}

// ReadText reads a UTF-8 text file.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", domain.ErrInvalidInput, path)
	}
	return string(data), nil
}
