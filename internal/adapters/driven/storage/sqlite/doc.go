// Package sqlite provides the default persistent storage backend.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database connection pool backs
// three port implementations:
//
//   - DocumentStore: documents and their ingestion status
//   - ChunkStore: chunk sets, replaced atomically per document
//   - EmbeddingIndex: little-endian float32 vectors keyed by chunk and model version
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.ragctx/data/ragctx.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. SQLite runs in WAL mode, so
// readers see a consistent snapshot while a chunk set is being replaced.
package sqlite
