package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfiguration indicates a chunking configuration that cannot
	// be applied, e.g. an overlap that is not smaller than the chunk size.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidTransition indicates a document status change that the
	// ingestion state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorage indicates the persistence layer failed.
	// It is always surfaced to the caller.
	ErrStorage = errors.New("storage failure")

	// ErrEmbeddingUnavailable indicates no compatible embedding model is configured.
	// Semantic retrieval is impossible without one.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrEmbeddingService indicates a transient embedding failure (network,
	// rate limit, 5xx). Callers may retry.
	ErrEmbeddingService = errors.New("embedding service error")
)

// StorageError tags a persistence failure from op with ErrStorage while
// keeping the driver error matchable. Errors that already carry
// ErrStorage, ErrNotFound or ErrInvalidTransition pass through unchanged.
func StorageError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStorage), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidTransition):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
