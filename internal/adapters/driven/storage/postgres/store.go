// Package postgres provides a PostgreSQL storage backend for deployments
// that share one index between several ragctx processes.
//
// Vectors are stored in pgvector columns. Similarity is still computed by
// the retrieval service so every backend ranks identically; the pgvector
// type keeps the data usable by SQL-side tooling.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/schema"
	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
)

// Store wraps a connection pool and exposes the storage ports.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to connString and applies pending migrations.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, domain.StorageError("parsing connection string", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, domain.StorageError("creating connection pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, domain.StorageError("pinging database", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		pool.Close()
		return nil, domain.StorageError("running migrations", err)
	}

	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{pool: s.pool}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{pool: s.pool}
}

// EmbeddingIndex returns an EmbeddingIndex interface backed by this store.
func (s *Store) EmbeddingIndex() driven.EmbeddingIndex {
	return &embeddingIndex{pool: s.pool}
}

// migrate applies *.up.sql files newer than the recorded version.
func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return domain.StorageError("creating schema_migrations table", err)
	}

	var currentVersion int
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").
		Scan(&currentVersion); err != nil {
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
		if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Script); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version)
			return err
		}); err != nil {
			return domain.StorageError("executing migration "+m.Name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

type documentStore struct {
	pool *pgxpool.Pool
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, title, file_type, language, content, content_hash, collections, metadata,
	status, processing_error, generation, chunk_size, chunk_overlap, created_at, updated_at`

func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			file_type = EXCLUDED.file_type,
			language = EXCLUDED.language,
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			collections = EXCLUDED.collections,
			metadata = EXCLUDED.metadata,
			status = EXCLUDED.status,
			processing_error = EXCLUDED.processing_error,
			generation = EXCLUDED.generation,
			chunk_size = EXCLUDED.chunk_size,
			chunk_overlap = EXCLUDED.chunk_overlap,
			updated_at = EXCLUDED.updated_at
	`, doc.ID, doc.Title, doc.FileType, doc.Language, doc.Content, doc.ContentHash,
		nonNil(doc.Collections), metadataJSON, string(doc.Status), doc.ProcessingError,
		doc.Generation, doc.ChunkConfig.Size, doc.ChunkConfig.Overlap, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return domain.StorageError("saving document", err)
	}
	return nil
}

func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (s *documentStore) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if len(filter.IDs) > 0 {
		add("id = ANY($%d)", filter.IDs)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if len(filter.Languages) > 0 {
		add("language = ANY($%d)", filter.Languages)
	}
	if len(filter.FileTypes) > 0 {
		add("file_type = ANY($%d)", filter.FileTypes)
	}
	if len(filter.Collections) > 0 {
		add("collections && $%d", filter.Collections)
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("querying documents", err)
	}
	defer rows.Close()

	var docs []domain.Document
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
		tag, err := s.pool.Exec(ctx, `
			UPDATE documents SET status = $1, processing_error = $2, updated_at = NOW()
			WHERE id = $3 AND generation = $4 AND status = ANY($5)
		`, string(status), reason, id, generation, from)
		if err != nil {
			return false, domain.StorageError("updating status", err)
		}
		if tag.RowsAffected() > 0 {
			return true, nil
		}
	}

	var current int
	err := s.pool.QueryRow(ctx, "SELECT generation FROM documents WHERE id = $1", id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *documentStore) SetCollections(ctx context.Context, id string, collections []string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE documents SET collections = $1, updated_at = NOW() WHERE id = $2",
		nonNil(collections), id)
	if err != nil {
		return domain.StorageError("updating collections", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return domain.StorageError("deleting document", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ==================== Chunk Store ====================

type chunkStore struct {
	pool *pgxpool.Pool
}

var _ driven.ChunkStore = (*chunkStore)(nil)

const chunkColumns = `id, document_id, sequence, content, token_count, start_offset, end_offset,
	page, metadata, created_at`

// ReplaceChunks locks the document row, drops chunks missing from the new
// set and upserts the rest in one batch.
func (s *chunkStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, "SELECT 1 FROM documents WHERE id = $1 FOR UPDATE", documentID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return domain.StorageError("locking document", err)
		}

		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if _, err := tx.Exec(ctx,
			"DELETE FROM chunks WHERE document_id = $1 AND NOT (id = ANY($2))", documentID, ids,
		); err != nil {
			return domain.StorageError("deleting stale chunks", err)
		}

		if len(chunks) == 0 {
			return nil
		}

		now := time.Now().UTC()
		batch := &pgx.Batch{}
		for _, c := range chunks {
			metadataJSON, err := marshalMetadata(c.Metadata)
			if err != nil {
				return err
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			batch.Queue(`
				INSERT INTO chunks (`+chunkColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (id) DO UPDATE SET
					sequence = EXCLUDED.sequence,
					content = EXCLUDED.content,
					token_count = EXCLUDED.token_count,
					start_offset = EXCLUDED.start_offset,
					end_offset = EXCLUDED.end_offset,
					page = EXCLUDED.page,
					metadata = EXCLUDED.metadata
			`, c.ID, documentID, c.Sequence, c.Content, c.TokenCount, c.StartOffset, c.EndOffset,
				c.Page, metadataJSON, createdAt)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return domain.StorageError(fmt.Sprintf("saving chunk %d", i), err)
			}
		}
		return br.Close()
	})
	return domain.StorageError("replacing chunks", err)
}

func (s *chunkStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = $1 ORDER BY sequence`, documentID)
	if err != nil {
		return nil, domain.StorageError("querying chunks", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
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

func (s *chunkStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	return scanChunk(s.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, id))
}

// ==================== Embedding Index ====================

type embeddingIndex struct {
	pool *pgxpool.Pool
}

var _ driven.EmbeddingIndex = (*embeddingIndex)(nil)

func (s *embeddingIndex) PutEmbedding(ctx context.Context, emb domain.Embedding) error {
	createdAt := emb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (chunk_id, model_version, dimensions, vector, created_at)
		SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM chunks WHERE id = $1)
		ON CONFLICT (chunk_id, model_version) DO UPDATE SET
			dimensions = EXCLUDED.dimensions,
			vector = EXCLUDED.vector,
			created_at = EXCLUDED.created_at
	`, emb.ChunkID, emb.ModelVersion, len(emb.Vector), pgvector.NewVector(emb.Vector), createdAt)
	if err != nil {
		return domain.StorageError("saving embedding", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *embeddingIndex) HasEmbedding(ctx context.Context, chunkID, modelVersion string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM embeddings WHERE chunk_id = $1 AND model_version = $2)",
		chunkID, modelVersion,
	).Scan(&exists)
	if err != nil {
		return false, domain.StorageError("checking embedding", err)
	}
	return exists, nil
}

func (s *embeddingIndex) Candidates(
	ctx context.Context, documentID, modelVersion string,
) ([]domain.IndexedChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.sequence, c.content, c.token_count, c.start_offset,
			c.end_offset, c.page, c.metadata, c.created_at, e.vector
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id AND e.model_version = $1
		WHERE c.document_id = $2
		ORDER BY c.sequence
	`, modelVersion, documentID)
	if err != nil {
		return nil, domain.StorageError("querying candidates", err)
	}
	defer rows.Close()

	var result []domain.IndexedChunk
	for rows.Next() {
		var (
			chunk        domain.Chunk
			metadataJSON []byte
			vec          *pgvector.Vector
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Sequence, &chunk.Content,
			&chunk.TokenCount, &chunk.StartOffset, &chunk.EndOffset, &chunk.Page,
			&metadataJSON, &chunk.CreatedAt, &vec); err != nil {
			return nil, domain.StorageError("scanning candidate", err)
		}
		if err := unmarshalMetadata(metadataJSON, &chunk.Metadata); err != nil {
			return nil, err
		}
		ic := domain.IndexedChunk{Chunk: chunk}
		if vec != nil {
			ic.Vector = vec.Slice()
		}
		result = append(result, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterating candidates", err)
	}

	return result, nil
}

// ==================== Helper Functions ====================

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		doc          domain.Document
		metadataJSON []byte
		status       string
	)

	if err := row.Scan(&doc.ID, &doc.Title, &doc.FileType, &doc.Language, &doc.Content,
		&doc.ContentHash, &doc.Collections, &metadataJSON, &status, &doc.ProcessingError,
		&doc.Generation, &doc.ChunkConfig.Size, &doc.ChunkConfig.Overlap,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("scanning document", err)
	}
	doc.Status = domain.DocumentStatus(status)

	if err := unmarshalMetadata(metadataJSON, &doc.Metadata); err != nil {
		return nil, err
	}

	return &doc, nil
}

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var metadataJSON []byte

	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Sequence, &chunk.Content,
		&chunk.TokenCount, &chunk.StartOffset, &chunk.EndOffset, &chunk.Page,
		&metadataJSON, &chunk.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StorageError("scanning chunk", err)
	}

	if err := unmarshalMetadata(metadataJSON, &chunk.Metadata); err != nil {
		return nil, err
	}

	return &chunk, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", domain.StorageError("marshalling metadata", err)
	}
	return string(data), nil
}

func unmarshalMetadata(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.StorageError("unmarshaling metadata", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
