package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragctx/internal/adapters/driving/watch"
	"github.com/custodia-labs/ragctx/internal/core/domain"
)

var (
	ingestTitle       string
	ingestLanguage    string
	ingestType        string
	ingestCollections []string
	ingestSize        int
	ingestOverlap     int
	ingestDetach      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Upload and index a text document",
	Long: `Uploads a UTF-8 text file, splits it into overlapping token-bounded
chunks and embeds every chunk. By default the command waits until the
document is completed or failed. With --detach it returns immediately;
work cut short by the exit is resumed by the next serve, mcp serve or
watch.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var reingestCmd = &cobra.Command{
	Use:   "reingest [doc-id] [file]",
	Short: "Replace a document's content and re-index it",
	Long: `Re-ingests an existing document as a new generation. Without a file
the stored text is re-chunked, which applies a new chunk size or overlap.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runReingest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTitle, "title", "t", "", "document title (default file name)")
	ingestCmd.Flags().StringVar(&ingestLanguage, "language", "", "document language code")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "document file type (default file extension)")
	ingestCmd.Flags().StringSliceVarP(&ingestCollections, "collection", "c", nil, "collection tags")
	for _, c := range []*cobra.Command{ingestCmd, reingestCmd} {
		c.Flags().IntVar(&ingestSize, "size", 0, "chunk size in tokens (default from settings)")
		c.Flags().IntVar(&ingestOverlap, "overlap", 0, "chunk overlap in tokens (default from settings)")
		c.Flags().BoolVar(&ingestDetach, "detach", false, "return without waiting for indexing")
	}
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	path := args[0]
	content, err := watch.ReadText(path)
	if err != nil {
		return err
	}

	title := ingestTitle
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	fileType := ingestType
	if fileType == "" {
		fileType = filepath.Ext(path)
	}

	doc, err := ingestService.Upload(cmd.Context(), domain.NewDocument{
		Title:       title,
		FileType:    fileType,
		Language:    ingestLanguage,
		Content:     content,
		Collections: ingestCollections,
		Metadata:    map[string]any{watch.SourcePathKey: absPath(path)},
	}, chunkConfigFlags(cmd, defaultChunkConfig()))
	if err != nil {
		return fmt.Errorf("failed to upload document: %w", err)
	}

	cmd.Printf("Uploaded document %s (%s)\n", doc.ID, doc.Title)
	return waitAndReport(cmd, doc.ID)
}

func runReingest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	var content string
	if len(args) == 2 {
		text, err := watch.ReadText(args[1])
		if err != nil {
			return err
		}
		content = text
	}

	base := defaultChunkConfig()
	if documentService != nil {
		if current, err := documentService.Get(cmd.Context(), args[0]); err == nil {
			base = current.ChunkConfig
		}
	}

	doc, err := ingestService.Ingest(cmd.Context(), args[0], content, chunkConfigFlags(cmd, base))
	if err != nil {
		return fmt.Errorf("failed to re-ingest document: %w", err)
	}

	cmd.Printf("Re-ingesting document %s (generation %d)\n", doc.ID, doc.Generation)
	return waitAndReport(cmd, doc.ID)
}

// chunkConfigFlags returns the chunk config from flags, or the zero value
// when neither flag is set so the service picks the config. A single flag
// overrides that field of base.
func chunkConfigFlags(cmd *cobra.Command, base domain.ChunkConfig) domain.ChunkConfig {
	flags := cmd.Flags()
	if !flags.Changed("size") && !flags.Changed("overlap") {
		return domain.ChunkConfig{}
	}
	cfg := base
	if flags.Changed("size") {
		cfg.Size = ingestSize
	}
	if flags.Changed("overlap") {
		cfg.Overlap = ingestOverlap
	}
	return cfg
}

func defaultChunkConfig() domain.ChunkConfig {
	if settingsService != nil {
		if settings, err := settingsService.Get(); err == nil {
			return settings.Chunking
		}
	}
	return domain.DefaultChunkConfig()
}

func waitAndReport(cmd *cobra.Command, documentID string) error {
	if ingestDetach {
		cmd.Println("Indexing continues in the background.")
		return nil
	}
	if err := ingestService.Wait(cmd.Context(), documentID); err != nil {
		return fmt.Errorf("waiting for ingestion: %w", err)
	}
	if documentService == nil {
		return nil
	}
	report, err := documentService.Status(context.WithoutCancel(cmd.Context()), documentID)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	printStatus(cmd, report)
	if report.Status == domain.StatusFailed {
		return fmt.Errorf("ingestion failed: %s", report.ProcessingError)
	}
	return nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
