// Package domain defines the core business entities for ragctx.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded text document and its ingestion state
//   - Chunk: A token-bounded, immutable slice of a document
//   - Embedding: A chunk vector keyed by model version
//   - SearchQuery / SearchResult: Retrieval request and ranked selection
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
