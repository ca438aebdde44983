// Package ai provides factory functions for creating embedding adapters
// and the tokenizer that matches them.
package ai

import (
	"context"
	"fmt"
	"time"

	localembed "github.com/custodia-labs/ragctx/internal/adapters/driven/embedding/local"
	ollamaembed "github.com/custodia-labs/ragctx/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/ragctx/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/tokenizer/tiktoken"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/tokenizer/words"
	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	// EmbeddingService is nil when no provider is usable. Ingestion then
	// fails documents and search reports domain.ErrEmbeddingUnavailable.
	EmbeddingService driven.EmbeddingService

	// Tokenizer always matches the configured model, even when the
	// embedding service could not be reached.
	Tokenizer driven.Tokenizer

	Warnings []string // Non-fatal issues that caused fallback.
	FellBack bool     // True if the embedding service was dropped.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
}

// Initialise builds the tokenizer and a validated embedding service.
// An unreachable provider is a warning rather than an error so documents
// can still be uploaded and inspected.
func Initialise(settings *domain.EmbeddingSettings) (*InitResult, error) {
	tok, err := CreateTokenizer(settings)
	if err != nil {
		return nil, err
	}

	result := &InitResult{Tokenizer: tok}

	svc, err := CreateAndValidateEmbeddingService(settings)
	if err != nil {
		logger.Warn("embedding service disabled: %v", err)
		result.Warnings = append(result.Warnings, err.Error())
		result.FellBack = true
		return result, nil
	}
	if svc == nil {
		result.Warnings = append(result.Warnings, "no embedding provider configured")
		result.FellBack = true
		return result, nil
	}

	logger.Debug("embedding service ready: %s (%d dims)", svc.ModelVersion(), svc.Dimensions())
	result.EmbeddingService = svc
	return result, nil
}

// CreateAndValidateEmbeddingService builds the configured embedding service
// and pings it. Errors wrap domain.ErrEmbeddingUnavailable and say how to
// fix the settings. A nil service with a nil error means nothing is
// configured.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'ragctx settings embedding' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}

	if err := ping(svc); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Run 'ragctx settings embedding' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// ValidateEmbeddingConfig checks that settings reach a working service and
// returns the provider's own error. The settings command calls it right
// after saving.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return ping(svc)
}

// CreateEmbeddingService returns the service for the configured provider,
// or nil when the provider is unset or lacks its API key.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	dims := domain.EmbeddingDimensions()[settings.Model]
	switch settings.Provider {
	case domain.AIProviderOllama:
		if dims == 0 {
			dims = ollamaembed.DefaultDimensions
		}
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: dims,
		}), nil

	case domain.AIProviderOpenAI:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: dims,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	case domain.AIProviderLocal:
		return localembed.NewEmbeddingService(dims), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateTokenizer returns the tokenizer whose counts match the embedding model.
// OpenAI models use BPE; everything else is counted in words.
func CreateTokenizer(settings *domain.EmbeddingSettings) (driven.Tokenizer, error) {
	if settings == nil || settings.Provider != domain.AIProviderOpenAI {
		return words.New(), nil
	}
	tok, err := tiktoken.ForModel(settings.Model)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}
	return tok, nil
}

func ping(svc driven.EmbeddingService) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}
