// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Document persistence and status transitions
//   - ChunkStore: Atomic per-document chunk set replacement
//   - EmbeddingIndex: Embeddings keyed by (chunk, model version)
//   - Tokenizer: Model-token spans used for chunking and budgets
//   - Chunker: Splits normalized text into overlapping chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, documents
//     can be uploaded and chunked but never indexed, and Search fails with
//     domain.ErrEmbeddingUnavailable.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
