package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderLocal is the built-in deterministic hashing embedder.
	// It needs no network and is meant for tests and offline use.
	AIProviderLocal AIProvider = "local"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderLocal:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderLocal
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderLocal:
		return "Built-in hashing embedder (offline)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or OpenAI-compatible APIs).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ModelVersion returns "provider/model", the key embeddings are stored under.
func (e EmbeddingSettings) ModelVersion() string {
	return ModelVersion(e.Provider, e.Model)
}

// ModelVersion joins a provider and a model name.
func ModelVersion(provider AIProvider, model string) string {
	return provider.String() + "/" + model
}

// SearchSettings holds retrieval defaults applied to queries that leave them unset.
type SearchSettings struct {
	MinSimilarity float64
	MaxTokens     int
	MaxChunks     int
	Timeout       time.Duration
}

// IndexerSettings controls embedding concurrency and retries.
type IndexerSettings struct {
	// Concurrency is the number of chunks embedded in parallel per document.
	Concurrency int

	// MaxAttempts is the number of tries per embedding call.
	MaxAttempts int

	// BaseBackoff is the delay before the first retry; it doubles each time.
	BaseBackoff time.Duration

	// RequestsPerSecond throttles calls to the embedding service.
	RequestsPerSecond float64

	// Burst is the token bucket size of the throttle.
	Burst int
}

// StorageBackend selects the persistence adapter.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite   StorageBackend = "sqlite"
	StorageMemory   StorageBackend = "memory"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageSQLite, StorageMemory, StoragePostgres:
		return true
	default:
		return false
	}
}

// StorageSettings holds persistence configuration.
type StorageSettings struct {
	Backend StorageBackend

	// DSN is the Postgres connection string. Unused by other backends.
	DSN string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	Chunking  ChunkConfig
	Search    SearchSettings
	Indexer   IndexerSettings
	Storage   StorageSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The local embedder is selected so a fresh install works offline.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderLocal,
			Model:    DefaultEmbeddingModels()[AIProviderLocal],
		},
		Chunking: DefaultChunkConfig(),
		Search: SearchSettings{
			MinSimilarity: DefaultMinSimilarity,
			MaxTokens:     DefaultMaxTokens,
			MaxChunks:     DefaultMaxChunks,
			Timeout:       10 * time.Second,
		},
		Indexer: IndexerSettings{
			Concurrency:       4,
			MaxAttempts:       3,
			BaseBackoff:       200 * time.Millisecond,
			RequestsPerSecond: 10,
			Burst:             10,
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderLocal,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderLocal:  "hashing-v1",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Built-in
		"hashing-v1": 256,
	}
}
