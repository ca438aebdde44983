package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the embedding provider, chunking defaults and the
storage backend.`,
	Annotations: map[string]string{settingsOnly: "true"},
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long: `Configure the embedding provider interactively.

Changing the provider or model changes the model version embeddings are
stored under. Re-ingest documents afterwards so they are searchable with
the new model.`,
	RunE: runSettingsEmbedding,
}

var settingsChunkingCmd = &cobra.Command{
	Use:   "chunking",
	Short: "Set default chunk size and overlap",
	RunE:  runSettingsChunking,
}

var settingsStorageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Select the storage backend",
	Long: `Select where documents, chunks and embeddings are stored.

Backends:
  sqlite   - embedded database in the data directory (default)
  memory   - in-process only, lost on exit
  postgres - PostgreSQL with pgvector, requires --dsn or RAGCTX_POSTGRES_URL`,
	RunE: runSettingsStorage,
}

var (
	chunkingSize    int
	chunkingOverlap int
	storageBackend  string
	storageDSN      string
)

func init() {
	settingsChunkingCmd.Flags().IntVar(&chunkingSize, "size", domain.DefaultChunkSize, "chunk size in tokens")
	settingsChunkingCmd.Flags().IntVar(&chunkingOverlap, "overlap", domain.DefaultChunkOverlap, "chunk overlap in tokens")
	settingsStorageCmd.Flags().StringVar(&storageBackend, "backend", string(domain.StorageSQLite), "sqlite, memory or postgres")
	settingsStorageCmd.Flags().StringVar(&storageDSN, "dsn", "", "Postgres connection string")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsChunkingCmd)
	settingsCmd.AddCommand(settingsStorageCmd)
	rootCmd.AddCommand(settingsCmd)
}

// settingField is one "name: value" line of settings show.
type settingField struct {
	name, value string
}

// settingSection groups the fields printed under a "[Name]" header.
type settingSection struct {
	name   string
	fields []settingField
}

func describeSettings(settings *domain.AppSettings) []settingSection {
	emb := settings.Embedding
	embedding := []settingField{
		{"Provider", emb.Provider.Description()},
		{"Model", emb.Model},
	}
	if emb.BaseURL != "" {
		embedding = append(embedding, settingField{"Base URL", emb.BaseURL})
	}
	if emb.Provider.RequiresAPIKey() {
		key := "(not set)"
		if emb.APIKey != "" {
			key = maskAPIKey(emb.APIKey)
		}
		embedding = append(embedding, settingField{"API Key", key})
	}
	status := "configured"
	if !emb.IsConfigured() {
		status = "not configured"
	}
	embedding = append(embedding, settingField{"Status", status})

	storage := []settingField{{"Backend", string(settings.Storage.Backend)}}
	if settings.Storage.DSN != "" {
		storage = append(storage, settingField{"DSN", maskAPIKey(settings.Storage.DSN)})
	}

	idx := settings.Indexer
	return []settingSection{
		{"Embedding", embedding},
		{"Chunking", []settingField{
			{"Size", fmt.Sprintf("%d tokens", settings.Chunking.Size)},
			{"Overlap", fmt.Sprintf("%d tokens", settings.Chunking.Overlap)},
		}},
		{"Search", []settingField{
			{"Min similarity", fmt.Sprintf("%.2f", settings.Search.MinSimilarity)},
			{"Max tokens", strconv.Itoa(settings.Search.MaxTokens)},
			{"Max chunks", strconv.Itoa(settings.Search.MaxChunks)},
			{"Timeout", settings.Search.Timeout.String()},
		}},
		{"Indexer", []settingField{
			{"Concurrency", strconv.Itoa(idx.Concurrency)},
			{"Attempts", fmt.Sprintf("%d (backoff %s)", idx.MaxAttempts, idx.BaseBackoff)},
			{"Rate", fmt.Sprintf("%.1f/s (burst %d)", idx.RequestsPerSecond, idx.Burst)},
		}},
		{"Storage", storage},
	}
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "Current Settings")
	fmt.Fprintln(w, "================")
	for _, section := range describeSettings(settings) {
		fmt.Fprintf(w, "\n[%s]\n", section.name)
		for _, f := range section.fields {
			fmt.Fprintf(w, "  %s:\t%s\n", f.name, f.value)
		}
	}
	fmt.Fprintln(w)

	switch {
	case settings.Chunking.Validate() != nil:
		fmt.Fprintf(w, "Warning: %v\n", settings.Chunking.Validate())
		fmt.Fprintln(w, "Run 'ragctx settings chunking' to fix configuration issues.")
	case !settings.Embedding.IsConfigured():
		fmt.Fprintln(w, "Warning: embedding provider is not configured.")
		fmt.Fprintln(w, "Run 'ragctx settings embedding' to fix configuration issues.")
	default:
		fmt.Fprintln(w, "Configuration is valid.")
	}
	return w.Flush()
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureEmbeddingProvider(cmd, reader)
}

func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := domain.AllEmbeddingProviders()
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	defaults := domain.DefaultEmbeddingModels()
	defaultModel := defaults[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if selectedProvider.RequiresAPIKey() {
		cmd.Print("Enter API key (empty keeps the current key): ")
		apiKey = readPassword(reader)
		cmd.Println()
	}

	if err := settingsService.SetEmbeddingProvider(selectedProvider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	// Validate the configuration by pinging the service
	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n", selectedProvider.Description(), model)
	cmd.Println("Re-ingest existing documents to index them with this model.")
	return nil
}

func runSettingsChunking(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	cfg := domain.ChunkConfig{Size: chunkingSize, Overlap: chunkingOverlap}
	if err := settingsService.SetChunking(cfg); err != nil {
		return fmt.Errorf("failed to set chunking: %w", err)
	}

	cmd.Printf("Default chunking set to size %d, overlap %d.\n", cfg.Size, cfg.Overlap)
	return nil
}

func runSettingsStorage(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	backend := domain.StorageBackend(strings.ToLower(storageBackend))
	if err := settingsService.SetStorage(backend, storageDSN); err != nil {
		return fmt.Errorf("failed to set storage: %w", err)
	}

	cmd.Printf("Storage backend set to %s. It takes effect on the next run.\n", backend)
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
