// Package cli provides the cobra command tree for ragctx.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Command annotations read by initServices.
const (
	// skipInit marks commands that run without services.
	skipInit = "skip-init"
	// settingsOnly marks commands that need the settings service alone,
	// so they work while the storage backend or provider is unreachable.
	settingsOnly = "settings-only"
	// resumeIngest marks long-running commands that pick up ingestion
	// left unfinished by an earlier process.
	resumeIngest = "resume-ingest"
)

// Services holds the driving ports the commands use.
type Services struct {
	Ingest         driving.IngestService
	Document       driving.DocumentService
	Search         driving.SearchService
	Context        driving.ContextService
	Settings       driving.SettingsService
	SearchDefaults domain.SearchSettings
}

// Options are the global flags passed to the initializer.
type Options struct {
	DataDir    string
	ConfigPath string
	Resume     bool

	// SettingsOnly asks for Services with only Settings set.
	SettingsOnly bool
}

// Initializer builds services for a command run. The returned cleanup
// releases stores and drains background ingestion.
type Initializer func(ctx context.Context, opts Options) (*Services, func(), error)

var (
	ingestService   driving.IngestService
	documentService driving.DocumentService
	searchService   driving.SearchService
	contextService  driving.ContextService
	settingsService driving.SettingsService
	searchDefaults  = domain.DefaultAppSettings().Search

	initializer Initializer
	cleanup     func()

	verbose    bool
	dataDir    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "ragctx",
	Short: "Document-grounded context retrieval",
	Long: `ragctx ingests documents, indexes their chunks with an embedding model
and retrieves the passages most relevant to a query, packed into a
token-bounded context string for an LLM prompt.`,
	SilenceUsage:      true,
	PersistentPreRunE: initServices,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.ragctx)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <data-dir>/config.toml)")
}

// SetServices installs the services used by the commands.
func SetServices(s *Services) {
	ingestService = s.Ingest
	documentService = s.Document
	searchService = s.Search
	contextService = s.Context
	settingsService = s.Settings
	if s.SearchDefaults != (domain.SearchSettings{}) {
		searchDefaults = s.SearchDefaults
	}
}

// SetInitializer registers the function that builds services once the
// global flags are parsed.
func SetInitializer(fn Initializer) {
	initializer = fn
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and releases services afterwards.
func Execute(ctx context.Context) error {
	defer func() {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func initServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if initializer == nil || annotated(cmd, skipInit) || cleanup != nil {
		return nil
	}
	services, release, err := initializer(cmd.Context(), Options{
		DataDir:      dataDir,
		ConfigPath:   configPath,
		Resume:       annotated(cmd, resumeIngest),
		SettingsOnly: annotated(cmd, settingsOnly),
	})
	if err != nil {
		return err
	}
	SetServices(services)
	cleanup = release
	return nil
}

// annotated reports whether cmd or one of its parents carries the annotation.
func annotated(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[key] == "true" {
			return true
		}
	}
	return false
}
