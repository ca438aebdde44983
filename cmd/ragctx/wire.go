package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/ragctx/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/ragctx/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ragctx/internal/adapters/driving/cli"
	"github.com/custodia-labs/ragctx/internal/chunker"
	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driven"
	"github.com/custodia-labs/ragctx/internal/core/services"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// storage is a persistence backend providing the three stores.
type storage interface {
	DocumentStore() driven.DocumentStore
	ChunkStore() driven.ChunkStore
	EmbeddingIndex() driven.EmbeddingIndex
	Close() error
}

// memoryStorage adapts the in-memory store, which implements all three
// ports itself.
type memoryStorage struct {
	*memory.Store
}

func (m memoryStorage) DocumentStore() driven.DocumentStore   { return m.Store }
func (m memoryStorage) ChunkStore() driven.ChunkStore         { return m.Store }
func (m memoryStorage) EmbeddingIndex() driven.EmbeddingIndex { return m.Store }
func (m memoryStorage) Close() error                          { return nil }

// wire builds the services for one command run from the data directory and
// the settings stored there.
func wire(ctx context.Context, opts cli.Options) (*cli.Services, func(), error) {
	dataDir := opts.DataDir
	if dataDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolving data directory: %w", err)
		}
		dataDir = dir
	}

	configStore, err := openConfig(dataDir, opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	if opts.SettingsOnly {
		return &cli.Services{Settings: settingsService}, func() {}, nil
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}

	store, err := openStorage(ctx, settings.Storage, dataDir)
	if err != nil {
		return nil, nil, err
	}

	models, err := ai.Initialise(&settings.Embedding)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("initialising embedding model: %w", err)
	}
	if models.FellBack {
		logger.Warn("Search is unavailable until the embedding provider is reachable; run 'ragctx settings embedding'")
	}

	indexer := services.NewIndexer(store.EmbeddingIndex(), models.EmbeddingService, settings.Indexer)
	ingest := services.NewIngestService(
		store.DocumentStore(),
		store.ChunkStore(),
		chunker.New(models.Tokenizer),
		indexer,
		settings.Chunking,
	)
	assembler := services.NewAssembler(models.Tokenizer)
	retrieval := services.NewRetrievalService(store.DocumentStore(), store.EmbeddingIndex(), indexer, settings.Search)

	if opts.Resume {
		if _, err := ingest.Resume(ctx); err != nil {
			logger.Warn("resuming interrupted ingestion: %v", err)
		}
	}

	release := func() {
		if err := ingest.Close(); err != nil {
			logger.Warn("stopping ingestion: %v", err)
		}
		models.Close()
		if err := store.Close(); err != nil {
			logger.Warn("closing storage: %v", err)
		}
	}

	return &cli.Services{
		Ingest:         ingest,
		Document:       services.NewDocumentService(store.DocumentStore(), store.ChunkStore(), ingest),
		Search:         retrieval,
		Context:        services.NewContextService(retrieval, assembler),
		Settings:       settingsService,
		SearchDefaults: settings.Search,
	}, release, nil
}

func openConfig(dataDir, configPath string) (*file.ConfigStore, error) {
	if configPath != "" {
		return file.OpenConfigFile(configPath)
	}
	return file.NewConfigStore(dataDir)
}

func openStorage(ctx context.Context, cfg domain.StorageSettings, dataDir string) (storage, error) {
	switch cfg.Backend {
	case domain.StorageMemory:
		return memoryStorage{memory.NewStore()}, nil
	case domain.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return store, nil
	case domain.StorageSQLite, "":
		store, err := sqlite.NewStore(filepath.Join(dataDir, "data"))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", domain.ErrInvalidConfiguration, cfg.Backend)
	}
}
