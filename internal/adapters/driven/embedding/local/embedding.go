// Package local provides a deterministic, dependency-free embedder.
//
// Words are found with UAX #29 segmentation, lower-cased and hashed into a
// fixed number of buckets together with adjacent word pairs (signed feature
// hashing). The vector is L2-normalized, so cosine similarity reflects
// lexical overlap. It needs no network and suits tests, demos and offline use.
package local

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/blevesearch/segment"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/vector"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "hashing-v1"
	DefaultDimensions = 256
)

// bigramWeight scales word-pair features relative to single words.
const bigramWeight = 0.5

// EmbeddingService hashes text into a fixed-size vector.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a hashing embedder with the given size.
// Non-positive sizes fall back to DefaultDimensions.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed hashes text into a unit vector. Text without words yields a zero vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, s.dimensions)
	prev := ""
	for _, w := range words(text) {
		s.add(vec, w, 1)
		if prev != "" {
			s.add(vec, prev+" "+w, bigramWeight)
		}
		prev = w
	}

	return vector.Normalize(vec), nil
}

// EmbedBatch embeds each text in turn.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model.
func (s *EmbeddingService) ModelName() string {
	return DefaultModel
}

// ModelVersion returns "local/hashing-v1".
func (s *EmbeddingService) ModelVersion() string {
	return domain.ModelVersion(domain.AIProviderLocal, DefaultModel)
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

// add folds one feature into vec. The top hash bit picks the sign so
// collisions tend to cancel rather than accumulate.
func (s *EmbeddingService) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(vec)))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// words returns the lower-cased letter, number and ideograph segments of text.
func words(text string) []string {
	seg := segment.NewWordSegmenterDirect([]byte(text))
	var out []string
	for seg.Segment() {
		if seg.Type() == segment.None {
			continue
		}
		out = append(out, strings.ToLower(seg.Text()))
	}
	return out
}
