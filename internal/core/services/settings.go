package services

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"

	keyChunkSize    = "chunking.size"
	keyChunkOverlap = "chunking.overlap"

	keySearchMinSimilarity = "search.min_similarity"
	keySearchMaxTokens     = "search.max_tokens"
	keySearchMaxChunks     = "search.max_chunks"
	keySearchTimeout       = "search.timeout"

	keyIndexerConcurrency = "indexer.concurrency"
	keyIndexerAttempts    = "indexer.max_attempts"
	keyIndexerBackoff     = "indexer.base_backoff"
	keyIndexerRate        = "indexer.requests_per_second"
	keyIndexerBurst       = "indexer.burst"

	keyStorageBackend = "storage.backend"
	keyStorageDSN     = "storage.dsn"
)

// Environment variables that fill settings left empty in the config file.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvPostgresURL  = "RAGCTX_POSTGRES_URL"
)

const defaultOllamaURL = "http://localhost:11434"

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings. Keys absent from the store
// take their defaults; a stored zero is kept.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()
	c := s.configStore

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider: storedEnum(c, keyEmbedProvider, d.Embedding.Provider),
			BaseURL:  c.GetString(keyEmbedBaseURL),
			APIKey:   c.GetString(keyEmbedAPIKey),
		},
		Chunking: domain.ChunkConfig{
			Size:    stored(c, keyChunkSize, d.Chunking.Size, c.GetInt),
			Overlap: stored(c, keyChunkOverlap, d.Chunking.Overlap, c.GetInt),
		},
		Search: domain.SearchSettings{
			MinSimilarity: stored(c, keySearchMinSimilarity, d.Search.MinSimilarity, c.GetFloat),
			MaxTokens:     stored(c, keySearchMaxTokens, d.Search.MaxTokens, c.GetInt),
			MaxChunks:     stored(c, keySearchMaxChunks, d.Search.MaxChunks, c.GetInt),
			Timeout:       positive(c.GetDuration(keySearchTimeout), d.Search.Timeout),
		},
		Indexer: domain.IndexerSettings{
			Concurrency:       stored(c, keyIndexerConcurrency, d.Indexer.Concurrency, c.GetInt),
			MaxAttempts:       stored(c, keyIndexerAttempts, d.Indexer.MaxAttempts, c.GetInt),
			BaseBackoff:       positive(c.GetDuration(keyIndexerBackoff), d.Indexer.BaseBackoff),
			RequestsPerSecond: stored(c, keyIndexerRate, d.Indexer.RequestsPerSecond, c.GetFloat),
			Burst:             stored(c, keyIndexerBurst, d.Indexer.Burst, c.GetInt),
		},
		Storage: domain.StorageSettings{
			Backend: storedEnum(c, keyStorageBackend, d.Storage.Backend),
			DSN:     c.GetString(keyStorageDSN),
		},
	}

	settings.Embedding.Model = c.GetString(keyEmbedModel)
	if settings.Embedding.Model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}

	// Secrets may come from the environment instead of the config file.
	if settings.Embedding.APIKey == "" && settings.Embedding.Provider == domain.AIProviderOpenAI {
		settings.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if settings.Storage.DSN == "" {
		settings.Storage.DSN = os.Getenv(EnvPostgresURL)
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	entries := []struct {
		label string
		key   string
		value any
	}{
		{"embedding provider", keyEmbedProvider, settings.Embedding.Provider.String()},
		{"embedding model", keyEmbedModel, settings.Embedding.Model},
		{"embedding base_url", keyEmbedBaseURL, settings.Embedding.BaseURL},
		{"chunk size", keyChunkSize, settings.Chunking.Size},
		{"chunk overlap", keyChunkOverlap, settings.Chunking.Overlap},
		{"min similarity", keySearchMinSimilarity, settings.Search.MinSimilarity},
		{"max tokens", keySearchMaxTokens, settings.Search.MaxTokens},
		{"max chunks", keySearchMaxChunks, settings.Search.MaxChunks},
		{"search timeout", keySearchTimeout, settings.Search.Timeout},
		{"indexer concurrency", keyIndexerConcurrency, settings.Indexer.Concurrency},
		{"indexer attempts", keyIndexerAttempts, settings.Indexer.MaxAttempts},
		{"indexer backoff", keyIndexerBackoff, settings.Indexer.BaseBackoff},
		{"indexer rate", keyIndexerRate, settings.Indexer.RequestsPerSecond},
		{"indexer burst", keyIndexerBurst, settings.Indexer.Burst},
		{"storage backend", keyStorageBackend, string(settings.Storage.Backend)},
	}

	for _, e := range entries {
		if err := s.configStore.Set(e.key, e.value); err != nil {
			return fmt.Errorf("save %s: %w", e.label, err)
		}
	}

	// Secrets are only written when given, so env-provided values stay out of the file.
	if settings.Embedding.APIKey != "" && settings.Embedding.APIKey != os.Getenv(EnvOpenAIAPIKey) {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}
	if settings.Storage.DSN != "" && settings.Storage.DSN != os.Getenv(EnvPostgresURL) {
		if err := s.configStore.Set(keyStorageDSN, settings.Storage.DSN); err != nil {
			return fmt.Errorf("save storage dsn: %w", err)
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	// An empty key keeps the stored one when the provider is unchanged.
	if apiKey == "" && provider == settings.Embedding.Provider {
		apiKey = settings.Embedding.APIKey
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s (or set %s)", provider, EnvOpenAIAPIKey)
	}

	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	baseURL := ""
	if provider == domain.AIProviderOllama {
		baseURL = cmp.Or(settings.Embedding.BaseURL, defaultOllamaURL)
	}

	settings.Embedding = domain.EmbeddingSettings{
		Provider: provider,
		Model:    model,
		BaseURL:  baseURL,
		APIKey:   apiKey,
	}
	return s.Save(settings)
}

// SetChunking updates the default chunk size and overlap.
func (s *SettingsService) SetChunking(cfg domain.ChunkConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Chunking = cfg
	return s.Save(settings)
}

// SetStorage selects the storage backend. Postgres needs a DSN, either
// here or in the environment.
func (s *SettingsService) SetStorage(backend domain.StorageBackend, dsn string) error {
	if !backend.IsValid() {
		return fmt.Errorf("invalid storage backend: %s", backend)
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if dsn != "" {
		settings.Storage.DSN = dsn
	}
	if backend == domain.StoragePostgres && settings.Storage.DSN == "" {
		return fmt.Errorf("postgres storage requires a connection string (or set %s)", EnvPostgresURL)
	}
	settings.Storage.Backend = backend
	return s.Save(settings)
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// stored reads key with get, or returns def when the key was never set.
func stored[T any](c driven.ConfigStore, key string, def T, get func(string) T) T {
	if _, ok := c.Get(key); !ok {
		return def
	}
	return get(key)
}

// storedEnum reads a string enum, falling back to def when the key is
// unset or holds an unknown value.
func storedEnum[T interface {
	~string
	IsValid() bool
}](c driven.ConfigStore, key string, def T) T {
	v := T(c.GetString(key))
	if !v.IsValid() {
		return def
	}
	return v
}

// positive returns d, or def when d is not a usable duration.
func positive(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
