package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/schema"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// dbFile is the database file name inside the data directory.
const dbFile = "ragctx.db"

// Store is a unified SQLite-based storage that provides access to
// the document, chunk and embedding ports through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.ragctx/data/ragctx.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, domain.StorageError("getting home directory", err)
		}
		dataDir = filepath.Join(home, ".ragctx", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, domain.StorageError("creating data directory", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	// WAL for concurrent readers; foreign_keys must be set per connection.
	// Immediate transactions take the write lock up front so concurrent
	// writers wait on busy_timeout instead of failing on lock upgrade.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.StorageError("opening database", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, domain.StorageError("running migrations", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// EmbeddingIndex returns an EmbeddingIndex interface backed by this store.
func (s *Store) EmbeddingIndex() driven.EmbeddingIndex {
	return &embeddingIndex{store: s}
}

// migrate runs all pending migrations, recording each applied version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return domain.StorageError("creating schema_migrations table", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return domain.StorageError("getting current version", err)
	}

	if err := schema.CheckApplied(fsys, currentVersion); err != nil {
		return err
	}
	pending, err := schema.Pending(fsys, currentVersion)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := s.applyMigration(m.Version, m.Script); err != nil {
			return domain.StorageError("executing migration "+m.Name, err)
		}
	}

	return nil
}

func (s *Store) applyMigration(version int, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, title, file_type, language, content, content_hash, collections, metadata,
	status, processing_error, generation, chunk_size, chunk_overlap, created_at, updated_at`

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	collectionsJSON, err := json.Marshal(nonNil(doc.Collections))
	if err != nil {
		return domain.StorageError("marshalling collections", err)
	}
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return domain.StorageError("marshalling metadata", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			file_type = excluded.file_type,
			language = excluded.language,
			content = excluded.content,
			content_hash = excluded.content_hash,
			collections = excluded.collections,
			metadata = excluded.metadata,
			status = excluded.status,
			processing_error = excluded.processing_error,
			generation = excluded.generation,
			chunk_size = excluded.chunk_size,
			chunk_overlap = excluded.chunk_overlap,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Title, doc.FileType, doc.Language, doc.Content, doc.ContentHash,
		string(collectionsJSON), string(metadataJSON), string(doc.Status), doc.ProcessingError,
		doc.Generation, doc.ChunkConfig.Size, doc.ChunkConfig.Overlap, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return domain.StorageError("saving document", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns the documents matching filter, ordered by ID.
func (s *documentStore) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	var (
		where []string
		args  []any
	)
	in := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		where = append(where, column+" IN ("+placeholders(len(values))+")")
		for _, v := range values {
			args = append(args, v)
		}
	}

	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}

	in("id", filter.IDs)
	in("status", statuses)
	in("language", filter.Languages)
	in("file_type", filter.FileTypes)
	if len(filter.Collections) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(documents.collections) WHERE value IN ("+
			placeholders(len(filter.Collections))+"))")
		for _, c := range filter.Collections {
			args = append(args, c)
		}
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("querying documents", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterating documents", err)
	}

	return docs, nil
}

// UpdateStatus applies a status transition for the current generation.
// The generation and predecessor checks run in the UPDATE itself.
func (s *documentStore) UpdateStatus(
	ctx context.Context, id string, generation int, status domain.DocumentStatus, reason string,
) (bool, error) {
	var from []string
	for _, st := range []domain.DocumentStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed,
	} {
		if st.CanTransitionTo(status) {
			from = append(from, string(st))
		}
	}

	if len(from) > 0 {
		args := []any{string(status), reason, time.Now().UTC(), id, generation}
		for _, f := range from {
			args = append(args, f)
		}
		res, err := s.store.db.ExecContext(ctx, `
			UPDATE documents SET status = ?, processing_error = ?, updated_at = ?
			WHERE id = ? AND generation = ? AND status IN (`+placeholders(len(from))+`)
		`, args...)
		if err != nil {
			return false, domain.StorageError("updating status", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return true, nil
		}
	}

	var current int
	err := s.store.db.QueryRowContext(ctx, "SELECT generation FROM documents WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, domain.StorageError("reading generation", err)
	}
	if current != generation {
		return false, nil
	}
	return false, fmt.Errorf("%w: to %s", domain.ErrInvalidTransition, status)
}

// SetCollections rewrites the collections column only.
func (s *documentStore) SetCollections(ctx context.Context, id string, collections []string) error {
	collectionsJSON, err := json.Marshal(nonNil(collections))
	if err != nil {
		return domain.StorageError("marshalling collections", err)
	}
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE documents SET collections = ?, updated_at = ? WHERE id = ?",
		string(collectionsJSON), time.Now().UTC(), id)
	if err != nil {
		return domain.StorageError("updating collections", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document; chunks and embeddings cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return domain.StorageError("deleting document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ==================== Chunk Store ====================

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

const chunkColumns = `id, document_id, sequence, content, token_count, start_offset, end_offset,
	page, metadata, created_at`

// ReplaceChunks swaps the chunk set of a document in one transaction.
// Chunks that survive by ID keep their embeddings.
func (s *chunkStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return domain.StorageError("checking document", err)
	}

	keep := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = true
	}

	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return domain.StorageError("querying chunk ids", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return domain.StorageError("scanning chunk id", err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.StorageError("iterating chunk ids", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", id); err != nil {
			return domain.StorageError("deleting chunk", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sequence = excluded.sequence,
			content = excluded.content,
			token_count = excluded.token_count,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			page = excluded.page,
			metadata = excluded.metadata
	`)
	if err != nil {
		return domain.StorageError("preparing statement", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return domain.StorageError("marshalling chunk metadata", err)
		}
		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		if _, err := stmt.ExecContext(ctx, chunk.ID, documentID, chunk.Sequence, chunk.Content,
			chunk.TokenCount, chunk.StartOffset, chunk.EndOffset, chunk.Page,
			string(metadataJSON), createdAt); err != nil {
			return domain.StorageError("saving chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.StorageError("committing transaction", err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document ordered by sequence.
func (s *chunkStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY sequence
	`, documentID)
	if err != nil {
		return nil, domain.StorageError("querying chunks", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterating chunks", err)
	}

	return chunks, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *chunkStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	return scanChunk(row)
}

// ==================== Embedding Index ====================

// embeddingIndex implements driven.EmbeddingIndex.
type embeddingIndex struct {
	store *Store
}

var _ driven.EmbeddingIndex = (*embeddingIndex)(nil)

// PutEmbedding upserts an embedding. The insert only happens while the
// chunk exists, so a vector never outlives a replaced chunk.
func (s *embeddingIndex) PutEmbedding(ctx context.Context, emb domain.Embedding) error {
	createdAt := emb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, model_version, dimensions, vector, created_at)
		SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM chunks WHERE id = ?)
		ON CONFLICT(chunk_id, model_version) DO UPDATE SET
			dimensions = excluded.dimensions,
			vector = excluded.vector,
			created_at = excluded.created_at
	`, emb.ChunkID, emb.ModelVersion, len(emb.Vector), float32SliceToBytes(emb.Vector), createdAt, emb.ChunkID)
	if err != nil {
		return domain.StorageError("saving embedding", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// HasEmbedding reports whether the chunk has a vector for modelVersion.
func (s *embeddingIndex) HasEmbedding(ctx context.Context, chunkID, modelVersion string) (bool, error) {
	var one int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT 1 FROM embeddings WHERE chunk_id = ? AND model_version = ?", chunkID, modelVersion,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.StorageError("checking embedding", err)
	}
	return true, nil
}

// Candidates joins a document's chunks with their vectors in one query.
func (s *embeddingIndex) Candidates(
	ctx context.Context, documentID, modelVersion string,
) ([]domain.IndexedChunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.sequence, c.content, c.token_count, c.start_offset,
			c.end_offset, c.page, c.metadata, c.created_at, e.vector
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id AND e.model_version = ?
		WHERE c.document_id = ?
		ORDER BY c.sequence
	`, modelVersion, documentID)
	if err != nil {
		return nil, domain.StorageError("querying candidates", err)
	}
	defer rows.Close()

	var result []domain.IndexedChunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			chunk        domain.Chunk
			metadataJSON string
			vectorBlob   []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Sequence, &chunk.Content,
			&chunk.TokenCount, &chunk.StartOffset, &chunk.EndOffset, &chunk.Page,
			&metadataJSON, &chunk.CreatedAt, &vectorBlob); err != nil {
			return nil, domain.StorageError("scanning candidate", err)
		}
		if err := unmarshalMetadata(metadataJSON, &chunk.Metadata); err != nil {
			return nil, err
		}
		result = append(result, domain.IndexedChunk{Chunk: chunk, Vector: bytesToFloat32Slice(vectorBlob)})
	}

	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterating candidates", err)
	}

	return result, nil
}

// ==================== Helper Functions ====================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// scanDocument scans a document; sql.ErrNoRows maps to domain.ErrNotFound.
func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc             domain.Document
		collectionsJSON string
		metadataJSON    string
		status          string
	)

	if err := row.Scan(&doc.ID, &doc.Title, &doc.FileType, &doc.Language, &doc.Content,
		&doc.ContentHash, &collectionsJSON, &metadataJSON, &status, &doc.ProcessingError,
		&doc.Generation, &doc.ChunkConfig.Size, &doc.ChunkConfig.Overlap,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("scanning document", err)
	}
	doc.Status = domain.DocumentStatus(status)

	if collectionsJSON != "" {
		if err := json.Unmarshal([]byte(collectionsJSON), &doc.Collections); err != nil {
			return nil, domain.StorageError("unmarshaling collections", err)
		}
	}
	if err := unmarshalMetadata(metadataJSON, &doc.Metadata); err != nil {
		return nil, err
	}

	return &doc, nil
}

// scanChunk scans a chunk; sql.ErrNoRows maps to domain.ErrNotFound.
func scanChunk(row scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var metadataJSON string

	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Sequence, &chunk.Content,
		&chunk.TokenCount, &chunk.StartOffset, &chunk.EndOffset, &chunk.Page,
		&metadataJSON, &chunk.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("scanning chunk", err)
	}

	if err := unmarshalMetadata(metadataJSON, &chunk.Metadata); err != nil {
		return nil, err
	}

	return &chunk, nil
}

func unmarshalMetadata(raw string, dst *map[string]any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return domain.StorageError("unmarshaling metadata", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
